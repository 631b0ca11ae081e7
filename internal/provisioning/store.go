package provisioning

import (
	"context"

	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Store persists channels and their usage records. Writes are last-writer-wins
// per document; there is no transaction spanning a channel and its usage record.
type Store interface {
	// CreateChannel assigns an ID when empty and sets timestamps
	CreateChannel(ctx context.Context, ch *models.Channel) error
	UpdateChannel(ctx context.Context, id string, patch models.ChannelPatch) error
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	ListChannelsByTenant(ctx context.Context, tenantID string) ([]*models.Channel, error)
	ListChannelsByStatus(ctx context.Context, statuses ...models.ChannelStatus) ([]*models.Channel, error)
	DeleteChannel(ctx context.Context, id string) error

	CreateUsageRecord(ctx context.Context, rec *models.UsageRecord) error
	GetUsageRecord(ctx context.Context, channelID string) (*models.UsageRecord, error)
	DeleteUsageRecord(ctx context.Context, channelID string) error
}

// EventPublisher announces lifecycle changes to other services
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, event models.LifecycleEvent) error
}

// ConsistentReader is implemented by stores that put a cache in front of
// the system of record. GetChannelConsistent always reads the record.
type ConsistentReader interface {
	GetChannelConsistent(ctx context.Context, id string) (*models.Channel, error)
}

// readChannel reads a channel for a state change, skipping any cache
func readChannel(ctx context.Context, store Store, id string) (*models.Channel, error) {
	if r, ok := store.(ConsistentReader); ok {
		return r.GetChannelConsistent(ctx, id)
	}
	return store.GetChannel(ctx, id)
}

// Locker serializes operations on one channel across processes
type Locker interface {
	Acquire(ctx context.Context, channelID string) (release func(), err error)
}

// ScriptArchive keeps a copy of each rendered bootstrap script
type ScriptArchive interface {
	Archive(ctx context.Context, channelID, script string) error
}
