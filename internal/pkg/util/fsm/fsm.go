package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning guard into a looplab callback. A non-nil
// error cancels the transition and is returned from fsm.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// IgnoreNoTransition drops the error returned when an event leaves the state unchanged.
func IgnoreNoTransition(err error) error {
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
