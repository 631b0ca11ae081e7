package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// ChannelRepository stores channels and usage records in Postgres
type ChannelRepository struct {
	db *DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelColumns = `id, tenant_id, name, description, status, instance_id, instance_type, endpoints,
	hls_settings, is_mock, transcoding_status, last_checked_at, terminated_at, created_at, updated_at`

var _ provisioning.Store = (*ChannelRepository)(nil)

// observe records the operation when the returned func runs; err is read then
func observe(operation string, err *error) func() {
	start := time.Now()
	return func() {
		status := "success"
		if *err != nil {
			status = "error"
		}
		metrics.RecordDatabaseOperation(operation, status, time.Since(start).Seconds())
	}
}

// CreateChannel creates a new channel record
func (r *ChannelRepository) CreateChannel(ctx context.Context, ch *models.Channel) (err error) {
	defer observe("create_channel", &err)()

	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO channels (id, tenant_id, name, description, status, instance_id, instance_type, endpoints,
		                      hls_settings, is_mock, transcoding_status, last_checked_at, terminated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		ch.ID, ch.TenantID, ch.Name, ch.Description, string(ch.Status), ch.InstanceID, ch.InstanceType, ch.Endpoints,
		ch.HLSSettings, ch.IsMock, ch.TranscodingStatus, ch.LastCheckedAt, ch.TerminatedAt,
	).Scan(&ch.CreatedAt, &ch.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	return nil
}

// UpdateChannel applies the non-nil fields of a patch
func (r *ChannelRepository) UpdateChannel(ctx context.Context, id string, patch models.ChannelPatch) (err error) {
	defer observe("update_channel", &err)()

	args := []interface{}{id}
	var sets []string
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.InstanceID != nil {
		set("instance_id", *patch.InstanceID)
	}
	if patch.InstanceType != nil {
		set("instance_type", *patch.InstanceType)
	}
	if patch.Endpoints != nil {
		set("endpoints", *patch.Endpoints)
	}
	if patch.IsMock != nil {
		set("is_mock", *patch.IsMock)
	}
	if patch.TranscodingStatus != nil {
		set("transcoding_status", *patch.TranscodingStatus)
	}
	if patch.LastCheckedAt != nil {
		set("last_checked_at", *patch.LastCheckedAt)
	}
	if patch.TerminatedAt != nil {
		set("terminated_at", *patch.TerminatedAt)
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE channels SET %s WHERE id = $1", strings.Join(sets, ", "))

	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return provisioning.ErrChannelNotFound
	}

	return nil
}

// GetChannel retrieves a channel by ID
func (r *ChannelRepository) GetChannel(ctx context.Context, id string) (ch *models.Channel, err error) {
	defer observe("get_channel", &err)()

	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	ch, err = scanChannel(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, provisioning.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return ch, nil
}

// ListChannelsByTenant retrieves every channel a tenant owns
func (r *ChannelRepository) ListChannelsByTenant(ctx context.Context, tenantID string) (channels []*models.Channel, err error) {
	defer observe("list_channels_by_tenant", &err)()

	query := `SELECT ` + channelColumns + ` FROM channels WHERE tenant_id = $1 ORDER BY created_at DESC`

	channels, err = r.queryChannels(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// ListChannelsByStatus retrieves every channel in one of the given statuses
func (r *ChannelRepository) ListChannelsByStatus(ctx context.Context, statuses ...models.ChannelStatus) (channels []*models.Channel, err error) {
	defer observe("list_channels_by_status", &err)()

	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	query := `SELECT ` + channelColumns + ` FROM channels WHERE status = ANY($1) ORDER BY created_at`

	channels, err = r.queryChannels(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels by status: %w", err)
	}
	return channels, nil
}

// DeleteChannel deletes a channel record
func (r *ChannelRepository) DeleteChannel(ctx context.Context, id string) (err error) {
	defer observe("delete_channel", &err)()

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return provisioning.ErrChannelNotFound
	}

	return nil
}

// CreateUsageRecord creates or resets a channel's usage record
func (r *ChannelRepository) CreateUsageRecord(ctx context.Context, rec *models.UsageRecord) (err error) {
	defer observe("create_usage_record", &err)()

	query := `
		INSERT INTO usage_records (channel_id, viewer_count, peak_viewers, total_views, uptime,
		                           geo_distribution, device_distribution, quality_distribution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (channel_id) DO UPDATE SET
			viewer_count = EXCLUDED.viewer_count,
			peak_viewers = EXCLUDED.peak_viewers,
			total_views = EXCLUDED.total_views,
			uptime = EXCLUDED.uptime,
			geo_distribution = EXCLUDED.geo_distribution,
			device_distribution = EXCLUDED.device_distribution,
			quality_distribution = EXCLUDED.quality_distribution,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		rec.ChannelID, rec.ViewerCount, rec.PeakViewers, rec.TotalViews, rec.Uptime,
		rec.GeoDistribution, rec.DeviceDistribution, rec.QualityDistribution,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}

	return nil
}

// GetUsageRecord retrieves a channel's usage record
func (r *ChannelRepository) GetUsageRecord(ctx context.Context, channelID string) (rec *models.UsageRecord, err error) {
	defer observe("get_usage_record", &err)()

	query := `
		SELECT channel_id, viewer_count, peak_viewers, total_views, uptime,
		       geo_distribution, device_distribution, quality_distribution, created_at, updated_at
		FROM usage_records
		WHERE channel_id = $1
	`

	var u models.UsageRecord
	err = r.db.Pool.QueryRow(ctx, query, channelID).Scan(
		&u.ChannelID, &u.ViewerCount, &u.PeakViewers, &u.TotalViews, &u.Uptime,
		&u.GeoDistribution, &u.DeviceDistribution, &u.QualityDistribution, &u.CreatedAt, &u.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, provisioning.ErrUsageRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	return &u, nil
}

// DeleteUsageRecord deletes a channel's usage record. Deleting a missing
// record is not an error.
func (r *ChannelRepository) DeleteUsageRecord(ctx context.Context, channelID string) (err error) {
	defer observe("delete_usage_record", &err)()

	if _, err = r.db.Pool.Exec(ctx, `DELETE FROM usage_records WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("failed to delete usage record: %w", err)
	}

	return nil
}

func (r *ChannelRepository) queryChannels(ctx context.Context, query string, args ...interface{}) ([]*models.Channel, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var ch models.Channel
	err := row.Scan(
		&ch.ID, &ch.TenantID, &ch.Name, &ch.Description, &ch.Status, &ch.InstanceID, &ch.InstanceType, &ch.Endpoints,
		&ch.HLSSettings, &ch.IsMock, &ch.TranscodingStatus, &ch.LastCheckedAt, &ch.TerminatedAt, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
