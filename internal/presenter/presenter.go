package presenter

import (
	"context"
	"errors"

	"makerwatch/internal/model"
)

// Presenter receives events from every job. Implementations must be safe for
// concurrent use since jobs run on independent goroutines.
type Presenter interface {
	Present(ctx context.Context, ev model.Event) error
}

// Func adapts a plain function to Presenter.
type Func func(ctx context.Context, ev model.Event) error

// Present calls f.
func (f Func) Present(ctx context.Context, ev model.Event) error { return f(ctx, ev) }

// Fanout delivers each event to every presenter, in order, and joins their errors.
type Fanout []Presenter

// Present implements Presenter.
func (f Fanout) Present(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Present(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Presenter = Func(nil)
	_ Presenter = Fanout(nil)
)
