// Package compute allocates and releases the per-channel streaming instance.
package compute

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by every call on an Unconfigured provisioner
var ErrNotConfigured = errors.New("compute provider not configured")

// Instance states reported by Describe
const (
	StatePending    = "pending"
	StateRunning    = "running"
	StateTerminated = "terminated"
)

// Allocation is the result of a successful Allocate call. Addresses are
// usually empty until the instance reaches the running state.
type Allocation struct {
	InstanceID     string
	InstanceType   string
	PublicAddress  string
	PrivateAddress string
}

// Instance is the observed state of an allocated instance
type Instance struct {
	ID             string
	Type           string
	State          string
	PublicAddress  string
	PrivateAddress string
}

// Ready reports whether the instance is running and publicly addressable
func (i *Instance) Ready() bool {
	return i != nil && i.State == StateRunning && i.PublicAddress != ""
}

// TerminationResult reports the outcome of a Terminate call. Termination
// failures are returned as data so callers can log and move on.
type TerminationResult struct {
	Success bool
	Error   string
}

// Provisioner is the compute provider contract
type Provisioner interface {
	Allocate(ctx context.Context, channelID, bootstrapScript string) (*Allocation, error)
	Terminate(ctx context.Context, instanceID string) TerminationResult
	// Describe returns nil, nil when the provider does not know the instance.
	Describe(ctx context.Context, instanceID string) (*Instance, error)
}

// Unconfigured is used when no credentials are available. Every allocation
// fails, which sends provisioning down the fallback path.
type Unconfigured struct{}

// Allocate always fails
func (Unconfigured) Allocate(ctx context.Context, channelID, bootstrapScript string) (*Allocation, error) {
	return nil, ErrNotConfigured
}

// Terminate always reports failure
func (Unconfigured) Terminate(ctx context.Context, instanceID string) TerminationResult {
	return TerminationResult{Success: false, Error: ErrNotConfigured.Error()}
}

// Describe always fails
func (Unconfigured) Describe(ctx context.Context, instanceID string) (*Instance, error) {
	return nil, ErrNotConfigured
}
