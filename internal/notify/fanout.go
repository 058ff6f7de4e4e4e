package notify

import (
	"context"
	"errors"
)

// Fanout publishes every event to all of its publishers.
// A failing publisher does not stop delivery to the others.
type Fanout []Publisher

// Publish returns the joined errors of the publishers that failed.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
