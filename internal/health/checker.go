package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// ErrNoEndpoints is returned for channels that have no public address yet
var ErrNoEndpoints = errors.New("channel has no public address")

// Result is the outcome of one transcoding health check
type Result struct {
	ChannelID string    `json:"channel_id"`
	PublicIP  string    `json:"public_ip"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
	// Source is the URL that answered, empty when none did
	Source string `json:"source,omitempty"`
}

// Checker probes a channel's transcoding service and records the result
type Checker struct {
	store  provisioning.Store
	client *http.Client
	logger *logging.Logger
	now    func() time.Time
}

// NewChecker creates a new health checker
func NewChecker(store provisioning.Store, timeout time.Duration, logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Checker{
		store:  store,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

// CheckForTenant checks a channel the caller owns. Admins may check any channel.
func (c *Checker) CheckForTenant(ctx context.Context, tenant models.Tenant, channelID string) (*Result, error) {
	ch, err := c.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenant.TenantID && !tenant.IsAdmin {
		return nil, provisioning.ErrForbidden
	}
	return c.check(ctx, ch)
}

// Check checks a channel by id without an ownership check
func (c *Checker) Check(ctx context.Context, channelID string) (*Result, error) {
	ch, err := c.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return c.check(ctx, ch)
}

func (c *Checker) check(ctx context.Context, ch *models.Channel) (*Result, error) {
	if ch.Endpoints.PublicIP == "" {
		return nil, ErrNoEndpoints
	}

	result := &Result{
		ChannelID: ch.ID,
		PublicIP:  ch.Endpoints.PublicIP,
		CheckedAt: c.now().UTC(),
	}

	// A demo instance has an address nobody answers on
	if ch.IsMock {
		result.Status = models.TranscodingUnknown
	} else {
		result.Status, result.Source = c.probe(ctx, ch.Endpoints)
	}

	status := result.Status
	checkedAt := result.CheckedAt
	if err := c.store.UpdateChannel(ctx, ch.ID, models.ChannelPatch{
		TranscodingStatus: &status,
		LastCheckedAt:     &checkedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record health check: %w", err)
	}

	metrics.RecordHealthCheck(result.Status)
	c.logger.WithChannelID(ch.ID).WithField("status", result.Status).Debug("Transcoding health checked")

	return result, nil
}

// probe tries the transcoding status API first and the status server second
func (c *Checker) probe(ctx context.Context, ep models.Endpoints) (string, string) {
	for _, url := range []string{ep.TranscodingURL, ep.StatusServerURL} {
		if url == "" {
			continue
		}
		if c.get(ctx, url) {
			return models.TranscodingHealthy, url
		}
	}
	return models.TranscodingUnhealthy, ""
}

func (c *Checker) get(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithField("url", url).WithError(err).Debug("Health probe failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
