package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Summary holds the counts from the most recent sweep
type Summary struct {
	Checked     int       `json:"checked"`
	Healthy     int       `json:"healthy"`
	Unhealthy   int       `json:"unhealthy"`
	Unknown     int       `json:"unknown"`
	Errors      int       `json:"errors"`
	LastUpdated time.Time `json:"last_updated"`
}

// Sweeper periodically checks every live channel
type Sweeper struct {
	checker *Checker
	store   provisioning.Store
	cron    *cron.Cron
	logger  *logging.Logger

	mu      sync.RWMutex
	summary Summary
}

// NewSweeper creates a sweeper running on a six-field cron schedule
func NewSweeper(checker *Checker, store provisioning.Store, schedule string, logger *logging.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Sweeper{
		checker: checker,
		store:   store,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.WithError(err).Error("Health sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start begins the schedule
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep checks every active or streaming channel once
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	channels, err := s.store.ListChannelsByStatus(ctx, models.ChannelStatusActive, models.ChannelStatusStreaming)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list live channels: %w", err)
	}

	var sum Summary
	for _, ch := range channels {
		result, err := s.checker.check(ctx, ch)
		if err != nil {
			// Channels deleted mid-sweep are not errors
			if !errors.Is(err, provisioning.ErrChannelNotFound) {
				s.logger.WithChannelID(ch.ID).WithError(err).Warn("Health check failed")
				sum.Errors++
			}
			continue
		}

		sum.Checked++
		switch result.Status {
		case models.TranscodingHealthy:
			sum.Healthy++
		case models.TranscodingUnhealthy:
			sum.Unhealthy++
		default:
			sum.Unknown++
		}
	}
	sum.LastUpdated = time.Now()

	s.mu.Lock()
	s.summary = sum
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"checked":   sum.Checked,
		"healthy":   sum.Healthy,
		"unhealthy": sum.Unhealthy,
		"unknown":   sum.Unknown,
	}).Info("Health sweep completed")

	return sum, nil
}

// LastSummary returns the counts from the most recent sweep
func (s *Sweeper) LastSummary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}
