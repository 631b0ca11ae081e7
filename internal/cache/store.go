package cache

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// ChannelStore is a read-through cache in front of another store. Only
// single-channel reads are cached. Every write bumps the channel's
// generation and invalidates its key before and after touching the store,
// and a fill is dropped when the generation moved while it was reading, so
// a slow reader cannot put a pre-write snapshot back into the cache.
// Cache failures are logged and fall through to the backing store.
type ChannelStore struct {
	provisioning.Store
	cache  *Cache
	ttl    time.Duration
	logger *logging.Logger
}

var (
	_ provisioning.Store            = (*ChannelStore)(nil)
	_ provisioning.ConsistentReader = (*ChannelStore)(nil)
)

// NewChannelStore wraps store with a channel cache
func NewChannelStore(store provisioning.Store, cache *Cache, ttl time.Duration, logger *logging.Logger) *ChannelStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ChannelStore{Store: store, cache: cache, ttl: ttl, logger: logger}
}

// GetChannel serves from cache when possible
func (s *ChannelStore) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	cached, err := s.cache.GetChannel(ctx, id)
	if err != nil {
		s.logger.WithChannelID(id).WithError(err).Warn("Channel cache read failed")
	}
	if cached != nil {
		metrics.RecordCacheAccess("channel", true)
		return cached, nil
	}
	metrics.RecordCacheAccess("channel", false)

	gen, genErr := s.cache.ChannelGeneration(ctx, id)
	if genErr != nil {
		s.logger.WithChannelID(id).WithError(genErr).Warn("Channel generation read failed")
	}

	ch, err := s.Store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		stored, err := s.cache.FillChannel(ctx, ch, gen, s.ttl)
		if err != nil {
			s.logger.WithChannelID(id).WithError(err).Warn("Channel cache write failed")
		} else if !stored {
			s.logger.WithChannelID(id).Debug("Dropped channel cache fill raced by a write")
		}
	}
	return ch, nil
}

// GetChannelConsistent reads the backing store and leaves the cache alone
func (s *ChannelStore) GetChannelConsistent(ctx context.Context, id string) (*models.Channel, error) {
	return s.Store.GetChannel(ctx, id)
}

// UpdateChannel writes through and drops the cached copy
func (s *ChannelStore) UpdateChannel(ctx context.Context, id string, patch models.ChannelPatch) error {
	s.beginWrite(ctx, id)
	err := s.Store.UpdateChannel(ctx, id, patch)
	s.invalidate(ctx, id)
	return err
}

// DeleteChannel deletes and drops the cached copy
func (s *ChannelStore) DeleteChannel(ctx context.Context, id string) error {
	s.beginWrite(ctx, id)
	err := s.Store.DeleteChannel(ctx, id)
	s.invalidate(ctx, id)
	return err
}

func (s *ChannelStore) beginWrite(ctx context.Context, id string) {
	if err := s.cache.BumpChannelGeneration(ctx, id); err != nil {
		s.logger.WithChannelID(id).WithError(err).Warn("Channel generation bump failed")
	}
	s.invalidate(ctx, id)
}

func (s *ChannelStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.DeleteChannel(ctx, id); err != nil {
		s.logger.WithChannelID(id).WithError(err).Warn("Channel cache invalidation failed")
	}
}
