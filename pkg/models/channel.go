package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ChannelStatus is the provisioning lifecycle state of a channel
type ChannelStatus string

// ChannelStatus constants
const (
	ChannelStatusCreating     ChannelStatus = "creating"     // Record exists, no compute yet
	ChannelStatusProvisioning ChannelStatus = "provisioning" // Allocation issued, polling for readiness
	ChannelStatusActive       ChannelStatus = "active"       // Endpoints ready (real or mock)
	ChannelStatusStreaming    ChannelStatus = "streaming"    // Ingest observed
	ChannelStatusMaintenance  ChannelStatus = "maintenance"  // Admin excursion from active
	ChannelStatusFailed       ChannelStatus = "failed"       // Provisioning failed without fallback
	ChannelStatusTerminating  ChannelStatus = "terminating"  // Being torn down
)

var channelTransitions = map[ChannelStatus][]ChannelStatus{
	ChannelStatusCreating:     {ChannelStatusProvisioning, ChannelStatusTerminating},
	ChannelStatusProvisioning: {ChannelStatusActive, ChannelStatusFailed},
	ChannelStatusActive:       {ChannelStatusStreaming, ChannelStatusMaintenance, ChannelStatusTerminating},
	ChannelStatusStreaming:    {ChannelStatusActive, ChannelStatusTerminating},
	ChannelStatusMaintenance:  {ChannelStatusActive},
	ChannelStatusFailed:       {ChannelStatusProvisioning, ChannelStatusTerminating},
	ChannelStatusTerminating:  {},
}

// CanTransition reports whether a channel may move from one status to another
func CanTransition(from, to ChannelStatus) bool {
	for _, next := range channelTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReady reports whether the channel already has usable endpoints
func (s ChannelStatus) IsReady() bool {
	return s == ChannelStatusActive || s == ChannelStatusStreaming
}

// Endpoints are the network addresses derived from an instance's public address
type Endpoints struct {
	PublicIP        string `json:"public_ip,omitempty"`
	PrivateIP       string `json:"private_ip,omitempty"`
	HLSURL          string `json:"hls_url,omitempty"`
	RTMPURL         string `json:"rtmp_url,omitempty"`
	TranscodingURL  string `json:"transcoding_url,omitempty"`
	HealthCheckURL  string `json:"health_check_url,omitempty"`
	StatusServerURL string `json:"status_server_url,omitempty"`
}

// Value implements driver.Valuer for database storage
func (e Endpoints) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Scan implements sql.Scanner for database retrieval
func (e *Endpoints) Scan(value interface{}) error {
	if value == nil {
		*e = Endpoints{}
		return nil
	}

	bytes, ok := asBytes(value)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, e)
}

// Channel is a tenant-owned live-stream endpoint backed by zero or one instance
type Channel struct {
	ID                string        `json:"id" db:"id"`
	TenantID          string        `json:"tenant_id" db:"tenant_id"`
	Name              string        `json:"name" db:"name"`
	Description       string        `json:"description,omitempty" db:"description"`
	Status            ChannelStatus `json:"status" db:"status"`
	InstanceID        string        `json:"instance_id,omitempty" db:"instance_id"`
	InstanceType      string        `json:"instance_type,omitempty" db:"instance_type"`
	Endpoints         Endpoints     `json:"endpoints"`
	HLSSettings       HLSSettings   `json:"hls_settings" db:"hls_settings"`
	IsMock            bool          `json:"is_mock" db:"is_mock"`
	TranscodingStatus string        `json:"transcoding_status,omitempty" db:"transcoding_status"`
	LastCheckedAt     *time.Time    `json:"last_checked_at,omitempty" db:"last_checked_at"`
	TerminatedAt      *time.Time    `json:"terminated_at,omitempty" db:"terminated_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// ChannelPatch carries a partial update; nil fields are left untouched
type ChannelPatch struct {
	Status            *ChannelStatus
	InstanceID        *string
	InstanceType      *string
	Endpoints         *Endpoints
	IsMock            *bool
	TranscodingStatus *string
	LastCheckedAt     *time.Time
	TerminatedAt      *time.Time
}

// Apply copies the non-nil fields of the patch onto the channel
func (p ChannelPatch) Apply(ch *Channel) {
	if p.Status != nil {
		ch.Status = *p.Status
	}
	if p.InstanceID != nil {
		ch.InstanceID = *p.InstanceID
	}
	if p.InstanceType != nil {
		ch.InstanceType = *p.InstanceType
	}
	if p.Endpoints != nil {
		ch.Endpoints = *p.Endpoints
	}
	if p.IsMock != nil {
		ch.IsMock = *p.IsMock
	}
	if p.TranscodingStatus != nil {
		ch.TranscodingStatus = *p.TranscodingStatus
	}
	if p.LastCheckedAt != nil {
		ch.LastCheckedAt = p.LastCheckedAt
	}
	if p.TerminatedAt != nil {
		ch.TerminatedAt = p.TerminatedAt
	}
}

// StatusPatch is a shorthand for a status-only patch
func StatusPatch(status ChannelStatus) ChannelPatch {
	return ChannelPatch{Status: &status}
}

// Distribution is a free-form breakdown map (country, device, quality)
type Distribution map[string]interface{}

// Value implements driver.Valuer for database storage
func (d Distribution) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for database retrieval
func (d *Distribution) Scan(value interface{}) error {
	if value == nil {
		*d = make(Distribution)
		return nil
	}

	bytes, ok := asBytes(value)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, d)
}

// UsageRecord holds per-channel audience counters fed by external telemetry
type UsageRecord struct {
	ChannelID           string       `json:"channel_id" db:"channel_id"`
	ViewerCount         int          `json:"viewer_count" db:"viewer_count"`
	PeakViewers         int          `json:"peak_viewers" db:"peak_viewers"`
	TotalViews          int64        `json:"total_views" db:"total_views"`
	Uptime              int64        `json:"uptime" db:"uptime"` // in seconds
	GeoDistribution     Distribution `json:"geo_distribution" db:"geo_distribution"`
	DeviceDistribution  Distribution `json:"device_distribution" db:"device_distribution"`
	QualityDistribution Distribution `json:"quality_distribution" db:"quality_distribution"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// NewUsageRecord returns a zeroed usage record for a channel
func NewUsageRecord(channelID string) *UsageRecord {
	return &UsageRecord{
		ChannelID:           channelID,
		GeoDistribution:     Distribution{},
		DeviceDistribution:  Distribution{},
		QualityDistribution: Distribution{},
	}
}

// asBytes accepts the JSON column representations drivers hand to Scan
func asBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// Transcoding service health values
const (
	TranscodingHealthy   = "healthy"
	TranscodingUnhealthy = "unhealthy"
	TranscodingUnknown   = "unknown"
)
