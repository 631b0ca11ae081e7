package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// setupTestDB connects to the database named by STREAMFLOW_TEST_DB_HOST.
// Tests are skipped when it is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("STREAMFLOW_TEST_DB_HOST")
	if host == "" {
		t.Skip("STREAMFLOW_TEST_DB_HOST not set, skipping database integration test")
	}

	port := 5432
	if p := os.Getenv("STREAMFLOW_TEST_DB_PORT"); p != "" {
		port, _ = strconv.Atoi(p)
	}

	db, err := New(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     envOr("STREAMFLOW_TEST_DB_USER", "postgres"),
		Password: envOr("STREAMFLOW_TEST_DB_PASSWORD", "postgres"),
		DBName:   envOr("STREAMFLOW_TEST_DB_NAME", "streamflow_test"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestChannelRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChannelRepository(db)
	ctx := context.Background()

	ch := &models.Channel{
		TenantID:          "tenant-it",
		Name:              "integration",
		Status:            models.ChannelStatusCreating,
		TranscodingStatus: models.TranscodingUnknown,
		HLSSettings: models.HLSSettings{
			QualityProfiles: []models.QualityProfile{{Name: "720p", Resolution: "1280x720", Bitrate: 2800, FPS: 30, Enabled: true}},
		},
	}
	require.NoError(t, repo.CreateChannel(ctx, ch))
	t.Cleanup(func() { _ = repo.DeleteChannel(context.Background(), ch.ID) })

	got, err := repo.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "integration", got.Name)
	assert.Equal(t, models.ChannelStatusCreating, got.Status)
	require.Len(t, got.HLSSettings.QualityProfiles, 1)
	assert.Equal(t, "720p", got.HLSSettings.QualityProfiles[0].Name)

	active := models.ChannelStatusActive
	instanceID := "i-0123456789abcdef0"
	instanceType := "c5.xlarge"
	endpoints := models.Endpoints{PublicIP: "203.0.113.9", HLSURL: "http://203.0.113.9:8000/hls/x/playlist.m3u8"}
	checked := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateChannel(ctx, ch.ID, models.ChannelPatch{
		Status:        &active,
		InstanceID:    &instanceID,
		InstanceType:  &instanceType,
		Endpoints:     &endpoints,
		LastCheckedAt: &checked,
		TerminatedAt:  &checked,
	}))

	got, err = repo.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, got.Status)
	assert.Equal(t, instanceID, got.InstanceID)
	assert.Equal(t, endpoints, got.Endpoints)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, checked.Equal(*got.LastCheckedAt))
	assert.Equal(t, instanceType, got.InstanceType)
	require.NotNil(t, got.TerminatedAt)
	assert.True(t, checked.Equal(*got.TerminatedAt))

	byTenant, err := repo.ListChannelsByTenant(ctx, "tenant-it")
	require.NoError(t, err)
	assert.NotEmpty(t, byTenant)

	byStatus, err := repo.ListChannelsByStatus(ctx, models.ChannelStatusActive)
	require.NoError(t, err)
	found := false
	for _, c := range byStatus {
		if c.ID == ch.ID {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, repo.DeleteChannel(ctx, ch.ID))
	_, err = repo.GetChannel(ctx, ch.ID)
	assert.ErrorIs(t, err, provisioning.ErrChannelNotFound)
	assert.ErrorIs(t, repo.DeleteChannel(ctx, ch.ID), provisioning.ErrChannelNotFound)
	assert.ErrorIs(t, repo.UpdateChannel(ctx, ch.ID, models.StatusPatch(active)), provisioning.ErrChannelNotFound)
}

func TestChannelRepository_UsageRecords(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChannelRepository(db)
	ctx := context.Background()

	rec := models.NewUsageRecord("usage-it")
	rec.ViewerCount = 4
	require.NoError(t, repo.CreateUsageRecord(ctx, rec))

	// Re-seeding resets the counters.
	require.NoError(t, repo.CreateUsageRecord(ctx, models.NewUsageRecord("usage-it")))

	got, err := repo.GetUsageRecord(ctx, "usage-it")
	require.NoError(t, err)
	assert.Zero(t, got.ViewerCount)

	require.NoError(t, repo.DeleteUsageRecord(ctx, "usage-it"))
	require.NoError(t, repo.DeleteUsageRecord(ctx, "usage-it"))

	_, err = repo.GetUsageRecord(ctx, "usage-it")
	assert.ErrorIs(t, err, provisioning.ErrUsageRecordNotFound)
}
