package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// MemoryStore keeps channels in process memory. It backs the "memory"
// database driver for local demos; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	channels map[string]models.Channel
	usage    map[string]models.UsageRecord
}

var _ provisioning.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels: make(map[string]models.Channel),
		usage:    make(map[string]models.UsageRecord),
	}
}

// CreateChannel stores a copy of the channel
func (s *MemoryStore) CreateChannel(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ch.CreatedAt, ch.UpdatedAt = now, now
	s.channels[ch.ID] = copyChannel(*ch)
	return nil
}

// UpdateChannel applies a patch
func (s *MemoryStore) UpdateChannel(ctx context.Context, id string, patch models.ChannelPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return provisioning.ErrChannelNotFound
	}
	patch.Apply(&ch)
	ch.UpdatedAt = time.Now().UTC()
	s.channels[id] = ch
	return nil
}

// GetChannel returns a copy of the channel
func (s *MemoryStore) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, provisioning.ErrChannelNotFound
	}
	c := copyChannel(ch)
	return &c, nil
}

// ListChannelsByTenant returns the tenant's channels, newest first
func (s *MemoryStore) ListChannelsByTenant(ctx context.Context, tenantID string) ([]*models.Channel, error) {
	return s.list(func(ch models.Channel) bool { return ch.TenantID == tenantID }), nil
}

// ListChannelsByStatus returns channels in any of the given statuses
func (s *MemoryStore) ListChannelsByStatus(ctx context.Context, statuses ...models.ChannelStatus) ([]*models.Channel, error) {
	want := make(map[models.ChannelStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.list(func(ch models.Channel) bool { return want[ch.Status] }), nil
}

func (s *MemoryStore) list(match func(models.Channel) bool) []*models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Channel
	for _, ch := range s.channels {
		if match(ch) {
			c := copyChannel(ch)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// DeleteChannel removes a channel
func (s *MemoryStore) DeleteChannel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return provisioning.ErrChannelNotFound
	}
	delete(s.channels, id)
	return nil
}

// CreateUsageRecord creates or resets a usage record
func (s *MemoryStore) CreateUsageRecord(ctx context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.usage[rec.ChannelID] = *rec
	return nil
}

// GetUsageRecord returns a channel's usage record
func (s *MemoryStore) GetUsageRecord(ctx context.Context, channelID string) (*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.usage[channelID]
	if !ok {
		return nil, provisioning.ErrUsageRecordNotFound
	}
	return &rec, nil
}

// DeleteUsageRecord removes a usage record
func (s *MemoryStore) DeleteUsageRecord(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.usage, channelID)
	return nil
}

func copyChannel(ch models.Channel) models.Channel {
	ch.HLSSettings = ch.HLSSettings.Clone()
	if ch.LastCheckedAt != nil {
		t := *ch.LastCheckedAt
		ch.LastCheckedAt = &t
	}
	if ch.TerminatedAt != nil {
		t := *ch.TerminatedAt
		ch.TerminatedAt = &t
	}
	return ch
}
