package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

func TestPublishers_FanOut(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}

	event := models.LifecycleEvent{Event: models.EventChannelProvisioned, ChannelID: "ch-1"}
	err := Publishers{failing, ok}.PublishLifecycle(context.Background(), event)

	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, []string{models.EventChannelProvisioned}, failing.names())
	assert.Equal(t, []string{models.EventChannelProvisioned}, ok.names(), "a failing publisher must not block the others")
}

func TestPublishers_Empty(t *testing.T) {
	assert.NoError(t, Publishers{}.PublishLifecycle(context.Background(), models.LifecycleEvent{}))
}
