package models

// Tenant is the identity facts an authenticated caller carries. The core
// trusts these as given and never re-derives them.
type Tenant struct {
	TenantID string `json:"tenant_id"`
	PlanKey  string `json:"plan"`
	IsAdmin  bool   `json:"is_admin"`
}

// LifecycleEvent is published whenever a channel changes lifecycle state
type LifecycleEvent struct {
	Event      string        `json:"event"`
	ChannelID  string        `json:"channel_id"`
	TenantID   string        `json:"tenant_id"`
	Status     ChannelStatus `json:"status"`
	InstanceID string        `json:"instance_id,omitempty"`
	IsMock     bool          `json:"is_mock"`
	Message    string        `json:"message,omitempty"`
}

// LifecycleEvent names
const (
	EventChannelProvisioned   = "channel.provisioned"
	EventChannelStatusChanged = "channel.status_changed"
	EventChannelDecommission  = "channel.decommissioned"
)

// IngestEvent is emitted by the ingest edge when a publisher connects or leaves
type IngestEvent struct {
	Event     string `json:"event"`
	ChannelID string `json:"channel_id"`
}

// IngestEvent names
const (
	IngestStreamStarted = "stream.started"
	IngestStreamStopped = "stream.stopped"
)
