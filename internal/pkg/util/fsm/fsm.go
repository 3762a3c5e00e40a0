package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that returns an error into a looplab callback.
// A non-nil error is stored on the event, which makes fsm.Event return it.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsRealError reports whether err returned by fsm.Event is a genuine failure.
// Self transitions and transitions canceled by a before_ guard are not.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return false
	}
	var canceled fsm.CanceledError
	return !errors.As(err, &canceled)
}
