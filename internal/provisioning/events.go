package provisioning

import (
	"context"
	"errors"

	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Publishers fans one lifecycle event out to several publishers. Every
// publisher is tried; their errors are joined.
type Publishers []EventPublisher

// PublishLifecycle implements EventPublisher
func (ps Publishers) PublishLifecycle(ctx context.Context, event models.LifecycleEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishLifecycle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
