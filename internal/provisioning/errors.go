package provisioning

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded is matched by every *QuotaError
	ErrQuotaExceeded = errors.New("channel quota exceeded")
	// ErrChannelNotFound is returned when no channel exists with the given id
	ErrChannelNotFound = errors.New("channel not found")
	// ErrUsageRecordNotFound is returned when a channel has no usage record
	ErrUsageRecordNotFound = errors.New("usage record not found")
	// ErrForbidden is returned when the caller does not own the channel or lacks admin rights
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition is returned when a status change is not allowed from the current status
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrProvisioningFailed is returned when allocation fails and mock fallback is disabled
	ErrProvisioningFailed = errors.New("provisioning failed")
	// ErrInvalidInput is returned for malformed requests
	ErrInvalidInput = errors.New("invalid input")
	// ErrChannelBusy is returned when another operation holds the channel lock
	ErrChannelBusy = errors.New("channel is busy")
)

// QuotaError reports a creation rejected by the plan's channel quota
type QuotaError struct {
	Plan  string
	Quota int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("channel limit reached: your %s plan allows %d channel(s)", e.Plan, e.Quota)
}

// Unwrap lets errors.Is match ErrQuotaExceeded
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// IsPermanent reports whether retrying the same request cannot succeed
func IsPermanent(err error) bool {
	return errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrQuotaExceeded)
}
