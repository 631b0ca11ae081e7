// Package provisioning drives the channel lifecycle: creation under plan
// quota, compute allocation with readiness polling and mock fallback,
// ingest and maintenance transitions, and decommission.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/compute"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/entitlement"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/plans"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/tracing"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Result messages
const (
	MessageProvisioned        = "Streaming instance provisioned successfully"
	MessageMockProvisioned    = "Demo instance created (compute provider unavailable)"
	MessageAlreadyProvisioned = "Channel already provisioned"
)

// Options are the orchestration constants
type Options struct {
	MaxPollAttempts int
	PollInterval    time.Duration
	MockFallback    bool
	RepositoryURL   string
}

// OptionsFromConfig maps the provisioning config section
func OptionsFromConfig(cfg config.ProvisioningConfig) Options {
	return Options{
		MaxPollAttempts: cfg.MaxPollAttempts,
		PollInterval:    cfg.PollInterval,
		MockFallback:    cfg.MockFallback,
		RepositoryURL:   cfg.RepositoryURL,
	}
}

// ChannelDraft is a caller's channel creation request
type ChannelDraft struct {
	Name        string
	Description string
	HLSSettings models.HLSSettings
}

// ProvisionResult is returned by Create and Provision
type ProvisionResult struct {
	Channel *models.Channel
	// EffectiveSettings is the snapshot re-filtered against the tenant's current plan
	EffectiveSettings  models.HLSSettings
	IsMock             bool
	Message            string
	AlreadyProvisioned bool
}

// ChannelView is a channel together with its currently effective settings
type ChannelView struct {
	Channel           *models.Channel
	EffectiveSettings models.HLSSettings
	// Violations lists snapshot features the current plan no longer grants
	Violations []string
	// SettingsUnfiltered is set when EffectiveSettings is the stored snapshot
	// because the owner's plan was not available to filter it
	SettingsUnfiltered bool
}

// Orchestrator provisions channels
type Orchestrator struct {
	store   Store
	compute compute.Provisioner
	events  EventPublisher
	locker  Locker
	archive ScriptArchive
	opts    Options
	logger  *logging.Logger
	sleep   func(time.Duration)
}

// NewOrchestrator creates a new provisioning orchestrator
func NewOrchestrator(store Store, provisioner compute.Provisioner, opts Options, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxPollAttempts < 1 {
		opts.MaxPollAttempts = 1
	}

	return &Orchestrator{
		store:   store,
		compute: provisioner,
		opts:    opts,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// SetEventPublisher enables lifecycle event publishing
func (o *Orchestrator) SetEventPublisher(p EventPublisher) {
	o.events = p
}

// SetLocker enables per-channel locking around provisioning
func (o *Orchestrator) SetLocker(l Locker) {
	o.locker = l
}

// SetScriptArchive enables bootstrap script archiving
func (o *Orchestrator) SetScriptArchive(a ScriptArchive) {
	o.archive = a
}

// Create checks the quota, stores a sanitized channel and provisions it
func (o *Orchestrator) Create(ctx context.Context, tenant models.Tenant, draft ChannelDraft) (*ProvisionResult, error) {
	// Provisioning runs to success or fallback once started.
	ctx = context.WithoutCancel(ctx)

	if draft.Name == "" {
		return nil, fmt.Errorf("%w: channel name is required", ErrInvalidInput)
	}

	existing, err := o.store.ListChannelsByTenant(ctx, tenant.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count channels: %w", err)
	}
	if err := checkQuota(tenant.PlanKey, len(existing)); err != nil {
		metrics.RecordQuotaRejection(planLabel(tenant.PlanKey))
		o.logger.WithTenantID(tenant.TenantID).Warnf("Channel creation rejected: %v", err)
		return nil, err
	}

	ch := &models.Channel{
		ID:                uuid.New().String(),
		TenantID:          tenant.TenantID,
		Name:              draft.Name,
		Description:       draft.Description,
		Status:            models.ChannelStatusCreating,
		HLSSettings:       entitlement.ForPlan(tenant.PlanKey, draft.HLSSettings),
		TranscodingStatus: models.TranscodingUnknown,
	}
	if err := o.store.CreateChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	metrics.RecordChannelCreated(planLabel(tenant.PlanKey))

	return o.provision(ctx, tenant, ch.ID, false)
}

// Provision allocates compute for an existing channel. Calling it on a
// channel that is already ACTIVE or STREAMING returns the stored endpoints.
func (o *Orchestrator) Provision(ctx context.Context, tenant models.Tenant, channelID string) (*ProvisionResult, error) {
	ctx = context.WithoutCancel(ctx)

	ch, err := readChannel(ctx, o.store, channelID)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenant.TenantID {
		return nil, ErrForbidden
	}

	return o.provision(ctx, tenant, channelID, true)
}

func (o *Orchestrator) provision(ctx context.Context, tenant models.Tenant, channelID string, checkOthers bool) (*ProvisionResult, error) {
	span, ctx := tracing.StartChannelSpan(ctx, "channel.provision", channelID, tenant.TenantID)
	defer tracing.FinishSpan(span)

	logger := o.logger.WithChannelID(channelID).WithTenantID(tenant.TenantID)

	if o.locker != nil {
		release, err := o.locker.Acquire(ctx, channelID)
		if err != nil {
			tracing.LogError(span, err)
			return nil, fmt.Errorf("%w: %v", ErrChannelBusy, err)
		}
		defer release()
	}

	// Read under the lock so a concurrent provision is observed.
	ch, err := readChannel(ctx, o.store, channelID)
	if err != nil {
		return nil, err
	}

	if ch.Status.IsReady() {
		return &ProvisionResult{
			Channel:            ch,
			EffectiveSettings:  entitlement.ForPlan(tenant.PlanKey, ch.HLSSettings),
			IsMock:             ch.IsMock,
			Message:            MessageAlreadyProvisioned,
			AlreadyProvisioned: true,
		}, nil
	}

	if !models.CanTransition(ch.Status, models.ChannelStatusProvisioning) {
		return nil, fmt.Errorf("%w: cannot provision a channel in status %s", ErrInvalidTransition, ch.Status)
	}

	if checkOthers {
		others, err := o.countOtherChannels(ctx, tenant.TenantID, ch.ID)
		if err != nil {
			return nil, err
		}
		if err := checkQuota(tenant.PlanKey, others); err != nil {
			metrics.RecordQuotaRejection(planLabel(tenant.PlanKey))
			return nil, err
		}
	}

	if err := o.transition(ctx, ch, models.ChannelStatusProvisioning, models.ChannelPatch{}); err != nil {
		return nil, err
	}

	effective := entitlement.ForPlan(tenant.PlanKey, ch.HLSSettings)

	start := time.Now()
	inst, allocErr := o.allocate(ctx, ch, logger)
	isMock := false
	if errors.Is(allocErr, ErrChannelNotFound) {
		// Decommissioned mid-flight; allocate has already released the instance.
		tracing.LogError(span, allocErr)
		return nil, allocErr
	}
	if allocErr != nil {
		// Provider errors are logged, never returned.
		logger.WithError(allocErr).Warn("Compute allocation failed")
		tracing.LogError(span, allocErr)

		if !o.opts.MockFallback {
			metrics.RecordProvision(metrics.ModeFailed, time.Since(start).Seconds())
			none := ""
			cleared := models.ChannelPatch{InstanceID: &none, InstanceType: &none}
			if err := o.transition(ctx, ch, models.ChannelStatusFailed, cleared); err != nil {
				return nil, err
			}
			o.publish(ctx, ch, models.EventChannelStatusChanged, "")
			return nil, ErrProvisioningFailed
		}

		inst = mockInstance()
		isMock = true
	}

	endpoints := DeriveEndpoints(ch.ID, inst.PublicAddress, inst.PrivateAddress)
	patch := models.ChannelPatch{
		InstanceID:   &inst.ID,
		InstanceType: &inst.Type,
		Endpoints:    &endpoints,
		IsMock:       &isMock,
	}
	if err := o.transition(ctx, ch, models.ChannelStatusActive, patch); err != nil {
		if !isMock {
			o.release(ctx, inst.ID, logger)
		}
		return nil, err
	}

	if err := o.store.CreateUsageRecord(ctx, models.NewUsageRecord(ch.ID)); err != nil {
		logger.WithError(err).Warn("Failed to seed usage record")
	}

	mode, message := metrics.ModeReal, MessageProvisioned
	if isMock {
		mode, message = metrics.ModeMock, MessageMockProvisioned
	}
	metrics.RecordProvision(mode, time.Since(start).Seconds())
	tracing.SetTag(span, "channel.mock", isMock)
	o.publish(ctx, ch, models.EventChannelProvisioned, message)

	logger.WithFields(map[string]interface{}{
		"instance_id": inst.ID,
		"is_mock":     isMock,
	}).Info(message)

	return &ProvisionResult{
		Channel:           ch,
		EffectiveSettings: effective,
		IsMock:            isMock,
		Message:           message,
	}, nil
}

// allocate requests an instance and polls until it is running with a
// public address or the attempts run out. The instance id is stored on the
// channel as soon as it exists so a concurrent decommission can find it.
func (o *Orchestrator) allocate(ctx context.Context, ch *models.Channel, logger *logging.Logger) (*compute.Instance, error) {
	channelID := ch.ID
	script, err := compute.RenderBootstrap(compute.BootstrapParams{
		ChannelID:     channelID,
		RepositoryURL: o.opts.RepositoryURL,
	})
	if err != nil {
		return nil, err
	}

	if o.archive != nil {
		if err := o.archive.Archive(ctx, channelID, script); err != nil {
			logger.WithError(err).Warn("Failed to archive bootstrap script")
		}
	}

	alloc, err := o.compute.Allocate(ctx, channelID, script)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate instance: %w", err)
	}

	notMock := false
	record := models.ChannelPatch{
		InstanceID:   &alloc.InstanceID,
		InstanceType: &alloc.InstanceType,
		IsMock:       &notMock,
	}
	if err := o.store.UpdateChannel(ctx, channelID, record); err != nil {
		o.release(ctx, alloc.InstanceID, logger)
		return nil, fmt.Errorf("failed to record instance %s: %w", alloc.InstanceID, err)
	}
	record.Apply(ch)

	for attempt := 1; attempt <= o.opts.MaxPollAttempts; attempt++ {
		inst, err := o.compute.Describe(ctx, alloc.InstanceID)
		if err != nil {
			logger.WithError(err).Debugf("Readiness poll %d failed", attempt)
		} else if inst.Ready() {
			metrics.RecordPollAttempts(attempt)
			inst.ID = alloc.InstanceID
			if inst.Type == "" {
				inst.Type = alloc.InstanceType
			}
			return inst, nil
		}

		if attempt < o.opts.MaxPollAttempts {
			o.sleep(o.opts.PollInterval)
		}
	}
	metrics.RecordPollAttempts(o.opts.MaxPollAttempts)

	// The instance may still come up later; release it rather than leave it billed.
	o.release(ctx, alloc.InstanceID, logger)

	return nil, fmt.Errorf("instance %s did not become ready after %d attempts", alloc.InstanceID, o.opts.MaxPollAttempts)
}

// release terminates an instance the channel will not keep
func (o *Orchestrator) release(ctx context.Context, instanceID string, logger *logging.Logger) {
	if res := o.compute.Terminate(ctx, instanceID); !res.Success {
		metrics.RecordTerminationFailure()
		logger.Warnf("Failed to release instance %s: %s", instanceID, res.Error)
	}
}

// MarkStreaming records that ingest started on an ACTIVE channel
func (o *Orchestrator) MarkStreaming(ctx context.Context, channelID string) error {
	return o.ingestTransition(ctx, channelID, models.ChannelStatusStreaming)
}

// MarkIngestStopped returns a STREAMING channel to ACTIVE
func (o *Orchestrator) MarkIngestStopped(ctx context.Context, channelID string) error {
	return o.ingestTransition(ctx, channelID, models.ChannelStatusActive)
}

func (o *Orchestrator) ingestTransition(ctx context.Context, channelID string, to models.ChannelStatus) error {
	ch, err := readChannel(ctx, o.store, channelID)
	if err != nil {
		return err
	}
	if ch.Status == to {
		return nil
	}

	from := ch.Status
	if !(from == models.ChannelStatusActive && to == models.ChannelStatusStreaming) &&
		!(from == models.ChannelStatusStreaming && to == models.ChannelStatusActive) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if err := o.transition(ctx, ch, to, models.ChannelPatch{}); err != nil {
		return err
	}
	o.publish(ctx, ch, models.EventChannelStatusChanged, "")
	return nil
}

// EnterMaintenance moves an ACTIVE channel into MAINTENANCE. Admin only.
func (o *Orchestrator) EnterMaintenance(ctx context.Context, actor models.Tenant, channelID string) (*models.Channel, error) {
	return o.maintenanceTransition(ctx, actor, channelID, models.ChannelStatusActive, models.ChannelStatusMaintenance)
}

// ExitMaintenance returns a MAINTENANCE channel to ACTIVE. Admin only.
func (o *Orchestrator) ExitMaintenance(ctx context.Context, actor models.Tenant, channelID string) (*models.Channel, error) {
	return o.maintenanceTransition(ctx, actor, channelID, models.ChannelStatusMaintenance, models.ChannelStatusActive)
}

func (o *Orchestrator) maintenanceTransition(ctx context.Context, actor models.Tenant, channelID string, from, to models.ChannelStatus) (*models.Channel, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	ch, err := readChannel(ctx, o.store, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Status != from {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ch.Status, to)
	}

	if err := o.transition(ctx, ch, to, models.ChannelPatch{}); err != nil {
		return nil, err
	}
	o.publish(ctx, ch, models.EventChannelStatusChanged, "")
	return ch, nil
}

// Get returns a channel the caller owns. Admins may read any channel.
func (o *Orchestrator) Get(ctx context.Context, tenant models.Tenant, channelID string) (*ChannelView, error) {
	ch, err := o.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenant.TenantID {
		if !tenant.IsAdmin {
			return nil, ErrForbidden
		}
		// The owner's plan is not known here; show the stored snapshot.
		return &ChannelView{Channel: ch, EffectiveSettings: ch.HLSSettings, SettingsUnfiltered: true}, nil
	}

	return o.view(tenant.PlanKey, ch), nil
}

// List returns the caller's channels
func (o *Orchestrator) List(ctx context.Context, tenant models.Tenant) ([]*ChannelView, error) {
	channels, err := o.store.ListChannelsByTenant(ctx, tenant.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	views := make([]*ChannelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, o.view(tenant.PlanKey, ch))
	}
	return views, nil
}

func (o *Orchestrator) view(planKey string, ch *models.Channel) *ChannelView {
	return &ChannelView{
		Channel:           ch,
		EffectiveSettings: entitlement.ForPlan(planKey, ch.HLSSettings),
		Violations:        entitlement.Violations(planKey, ch.HLSSettings),
	}
}

// transition persists a status change together with any extra fields and
// applies it to ch
func (o *Orchestrator) transition(ctx context.Context, ch *models.Channel, to models.ChannelStatus, patch models.ChannelPatch) error {
	from := ch.Status
	patch.Status = &to

	if err := o.store.UpdateChannel(ctx, ch.ID, patch); err != nil {
		return fmt.Errorf("failed to update channel status: %w", err)
	}
	patch.Apply(ch)

	metrics.RecordStatusTransition(string(from), string(to))
	o.logger.LogLifecycleEvent(ch.ID, string(from), string(to), nil)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, ch *models.Channel, event, message string) {
	if o.events == nil {
		return
	}

	err := o.events.PublishLifecycle(ctx, models.LifecycleEvent{
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
		o.logger.WithChannelID(ch.ID).WithError(err).Warnf("Failed to publish %s", event)
	}
}

func (o *Orchestrator) countOtherChannels(ctx context.Context, tenantID, channelID string) (int, error) {
	channels, err := o.store.ListChannelsByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to count channels: %w", err)
	}

	n := 0
	for _, c := range channels {
		if c.ID != channelID {
			n++
		}
	}
	return n, nil
}

// checkQuota rejects when the tenant already holds at least the plan quota
func checkQuota(planKey string, existing int) error {
	quota := plans.Quota(planKey)
	if existing >= quota {
		return &QuotaError{Plan: planLabel(planKey), Quota: quota}
	}
	return nil
}

func planLabel(planKey string) string {
	key, ok := plans.ParseKey(planKey)
	if !ok {
		return "unknown"
	}
	return string(key)
}
