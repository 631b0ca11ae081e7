package main

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/queue"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// ingestTracker is the part of the orchestrator ingest events drive
type ingestTracker interface {
	MarkStreaming(ctx context.Context, channelID string) error
	MarkIngestStopped(ctx context.Context, channelID string) error
}

// ingestHandler maps publisher connect/disconnect events onto channel status
func ingestHandler(tracker ingestTracker, logger *logging.Logger) queue.IngestHandler {
	return func(ctx context.Context, event models.IngestEvent) error {
		log := logger.WithChannelID(event.ChannelID).WithField("event", event.Event)

		var err error
		switch event.Event {
		case models.IngestStreamStarted:
			err = tracker.MarkStreaming(ctx, event.ChannelID)
		case models.IngestStreamStopped:
			err = tracker.MarkIngestStopped(ctx, event.ChannelID)
		default:
			return fmt.Errorf("%w: unknown ingest event %q", provisioning.ErrInvalidInput, event.Event)
		}

		if err != nil {
			log.WithError(err).Warn("Failed to apply ingest event")
			return err
		}

		log.Info("Applied ingest event")
		return nil
	}
}
