// Package app wires the channel lifecycle components from configuration.
// The API server and the worker share it.
package app

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/streamflow/internal/cache"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/compute"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/database"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/health"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/queue"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/storage"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/webhook"
)

// Services holds the wired components
type Services struct {
	Store          provisioning.Store
	Orchestrator   *provisioning.Orchestrator
	Decommissioner *provisioning.Decommissioner
	Checker        *health.Checker
	// Queue is nil when the queue is disabled
	Queue *queue.Queue

	ping    func(ctx context.Context) error
	closers []func()
}

// New connects every enabled backend and builds the orchestrators
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Services, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Services{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	// Initialize store
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory channel store; data is lost on restart")
		s.Store = database.NewMemoryStore()
	default:
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		s.Store = database.NewChannelRepository(db)
		s.ping = db.Health
	}

	// Initialize cache and lock
	var locker provisioning.Locker
	if cfg.Redis.Enabled {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { c.Close() })

		s.Store = cache.NewChannelStore(s.Store, c, cfg.Redis.CacheTTL, logger)
		if cfg.Provisioning.ChannelLocking {
			locker = cache.NewChannelLocker(c.Client(), cfg.Provisioning.LockExpiry, logger)
		}
	} else if cfg.Provisioning.ChannelLocking {
		return nil, fmt.Errorf("provisioning.channelLocking requires redis")
	}

	// Initialize compute provider
	provider, err := compute.New(ctx, cfg.AWS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize compute provider: %w", err)
	}

	s.Orchestrator = provisioning.NewOrchestrator(s.Store, provider, provisioning.OptionsFromConfig(cfg.Provisioning), logger)
	s.Decommissioner = provisioning.NewDecommissioner(s.Store, provider, logger)
	s.Checker = health.NewChecker(s.Store, cfg.Health.Timeout, logger)

	if locker != nil {
		s.Orchestrator.SetLocker(locker)
		s.Decommissioner.SetLocker(locker)
	}

	// Initialize script archive
	if cfg.Storage.Enabled {
		archive, err := storage.New(cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		s.Orchestrator.SetScriptArchive(archive)
	}

	var publishers provisioning.Publishers

	// Initialize queue
	if cfg.Queue.Enabled {
		q, err := queue.New(cfg.Queue, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { q.Close() })

		s.Queue = q
		publishers = append(publishers, q)
	}

	// Initialize webhook notifier
	if cfg.Webhook.Enabled {
		n := webhook.NewNotifier(cfg.Webhook, logger)
		// Let in-flight deliveries finish before the process exits.
		s.closers = append(s.closers, n.Wait)
		publishers = append(publishers, n)
	}

	if len(publishers) > 0 {
		s.Orchestrator.SetEventPublisher(publishers)
		s.Decommissioner.SetEventPublisher(publishers)
	}

	ok = true
	return s, nil
}

// Ping checks the backing database. The in-memory store is always healthy.
func (s *Services) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases connections in reverse order of opening
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
