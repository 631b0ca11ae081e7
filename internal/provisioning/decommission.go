package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/streamflow/internal/compute"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/tracing"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Decommission result messages
const (
	MessageDeletedWithTermination = "Channel deleted and instance termination initiated"
	MessageDeleted                = "Channel deleted successfully"
	MessageTerminated             = "Stream terminated successfully"
	MessageAlreadyTerminated      = "Stream already terminated"
)

// DecommissionResult reports what a decommission did
type DecommissionResult struct {
	InstanceTerminated bool
	Message            string
}

// Decommissioner tears channels down. Termination and usage-record failures
// are logged and do not stop the channel record from being deleted.
type Decommissioner struct {
	store   Store
	compute compute.Provisioner
	events  EventPublisher
	locker  Locker
	logger  *logging.Logger
	now     func() time.Time
}

// NewDecommissioner creates a new decommissioner
func NewDecommissioner(store Store, provisioner compute.Provisioner, logger *logging.Logger) *Decommissioner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Decommissioner{store: store, compute: provisioner, logger: logger, now: time.Now}
}

// SetEventPublisher enables lifecycle event publishing
func (d *Decommissioner) SetEventPublisher(p EventPublisher) {
	d.events = p
}

// SetLocker serializes decommission with provisioning of the same channel
func (d *Decommissioner) SetLocker(l Locker) {
	d.locker = l
}

func (d *Decommissioner) lock(ctx context.Context, channelID string) (func(), error) {
	if d.locker == nil {
		return func() {}, nil
	}
	release, err := d.locker.Acquire(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelBusy, err)
	}
	return release, nil
}

// Decommission deletes a channel owned by the tenant, terminating its
// instance when it has a real one
func (d *Decommissioner) Decommission(ctx context.Context, tenant models.Tenant, channelID string) (*DecommissionResult, error) {
	span, ctx := tracing.StartChannelSpan(ctx, "channel.decommission", channelID, tenant.TenantID)
	defer tracing.FinishSpan(span)

	logger := d.logger.WithChannelID(channelID).WithTenantID(tenant.TenantID)

	release, err := d.lock(ctx, channelID)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	defer release()

	ch, err := readChannel(ctx, d.store, channelID)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenant.TenantID {
		return nil, ErrForbidden
	}

	if ch.Status != models.ChannelStatusTerminating {
		if !models.CanTransition(ch.Status, models.ChannelStatusTerminating) {
			logger.Warnf("Decommissioning channel in status %s", ch.Status)
		}
		if err := d.store.UpdateChannel(ctx, ch.ID, models.StatusPatch(models.ChannelStatusTerminating)); err != nil {
			return nil, fmt.Errorf("failed to mark channel terminating: %w", err)
		}
		metrics.RecordStatusTransition(string(ch.Status), string(models.ChannelStatusTerminating))
		logger.LogLifecycleEvent(ch.ID, string(ch.Status), string(models.ChannelStatusTerminating), nil)
		ch.Status = models.ChannelStatusTerminating
	}

	attempted := ch.InstanceID != "" && !ch.IsMock
	if attempted {
		res := d.compute.Terminate(ctx, ch.InstanceID)
		if !res.Success {
			// An orphaned instance is preferred over a channel the tenant cannot remove.
			metrics.RecordTerminationFailure()
			tracing.SetTag(span, "termination.failed", true)
			logger.Errorf("Failed to terminate instance %s: %s", ch.InstanceID, res.Error)
		}
	}

	if err := d.store.DeleteChannel(ctx, ch.ID); err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to delete channel: %w", err)
	}

	if err := d.store.DeleteUsageRecord(ctx, ch.ID); err != nil {
		logger.WithError(err).Warn("Failed to delete usage record")
	}

	metrics.RecordDecommission(attempted)
	d.publish(ctx, ch)

	message := MessageDeleted
	if attempted {
		message = MessageDeletedWithTermination
	}
	logger.Info(message)

	return &DecommissionResult{InstanceTerminated: attempted, Message: message}, nil
}

// Terminate stops a channel's stream without deleting the channel: the
// instance is released and the channel is left TERMINATING with its
// termination time recorded. Admin only. A failed provider call keeps the
// instance id on the channel so the termination can be retried.
func (d *Decommissioner) Terminate(ctx context.Context, actor models.Tenant, channelID string) (*DecommissionResult, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	span, ctx := tracing.StartChannelSpan(ctx, "channel.terminate", channelID, actor.TenantID)
	defer tracing.FinishSpan(span)

	logger := d.logger.WithChannelID(channelID).WithTenantID(actor.TenantID)

	release, err := d.lock(ctx, channelID)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	defer release()

	ch, err := readChannel(ctx, d.store, channelID)
	if err != nil {
		return nil, err
	}

	attempted := ch.InstanceID != "" && !ch.IsMock
	if ch.Status == models.ChannelStatusTerminating && !attempted {
		return &DecommissionResult{Message: MessageAlreadyTerminated}, nil
	}

	terminated := true
	if attempted {
		res := d.compute.Terminate(ctx, ch.InstanceID)
		if !res.Success {
			terminated = false
			metrics.RecordTerminationFailure()
			tracing.SetTag(span, "termination.failed", true)
			logger.Errorf("Failed to terminate instance %s: %s", ch.InstanceID, res.Error)
		}
	}

	from := ch.Status
	status := models.ChannelStatusTerminating
	if from != status && !models.CanTransition(from, status) {
		logger.Warnf("Terminating channel in status %s", from)
	}
	now := d.now().UTC()
	patch := models.ChannelPatch{Status: &status, TerminatedAt: &now}
	if terminated {
		none := ""
		noEndpoints := models.Endpoints{}
		patch.InstanceID = &none
		patch.InstanceType = &none
		patch.Endpoints = &noEndpoints
	}
	if err := d.store.UpdateChannel(ctx, ch.ID, patch); err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to mark channel terminated: %w", err)
	}
	patch.Apply(ch)

	if from != status {
		metrics.RecordStatusTransition(string(from), string(status))
		logger.LogLifecycleEvent(ch.ID, string(from), string(status), map[string]interface{}{"actor": actor.TenantID})
	}
	d.emit(ctx, ch, models.EventChannelStatusChanged, MessageTerminated)

	logger.Info(MessageTerminated)
	return &DecommissionResult{InstanceTerminated: attempted && terminated, Message: MessageTerminated}, nil
}

func (d *Decommissioner) publish(ctx context.Context, ch *models.Channel) {
	d.emit(ctx, ch, models.EventChannelDecommission, "")
}

func (d *Decommissioner) emit(ctx context.Context, ch *models.Channel, event, message string) {
	if d.events == nil {
		return
	}

	err := d.events.PublishLifecycle(ctx, models.LifecycleEvent{
		Event:      event,
		ChannelID:  ch.ID,
		TenantID:   ch.TenantID,
		Status:     ch.Status,
		InstanceID: ch.InstanceID,
		IsMock:     ch.IsMock,
		Message:    message,
	})
	metrics.RecordEventPublished(event, err)
	if err != nil {
		d.logger.WithChannelID(ch.ID).WithError(err).Warnf("Failed to publish %s", event)
	}
}
