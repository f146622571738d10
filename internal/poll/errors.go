package poll

import (
	"errors"
	"fmt"

	"github.com/rzbill/flodq/pkg/id"
)

var (
	// ErrInvalidArgument rejects a request before any wait is issued.
	ErrInvalidArgument = errors.New("poll: invalid argument")
	// ErrConnectionFailure terminates a request whose store became
	// unreachable. It is never retried here.
	ErrConnectionFailure = errors.New("poll: connection failure")
	// ErrCancelled marks a request withdrawn by its caller.
	ErrCancelled = errors.New("poll: cancelled by caller")
	// ErrLostElement marks an element popped for a losing ticket that could
	// not be returned to its queue.
	ErrLostElement = errors.New("poll: lost element")
)

// ConnectionFailure wraps a transport error so it matches
// ErrConnectionFailure.
func ConnectionFailure(err error) error {
	if err == nil || errors.Is(err, ErrConnectionFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailure, err)
}

// LostElementError carries an element that left its queue without reaching
// a caller.
type LostElementError struct {
	RequestID id.ID
	Queue     string
	End       End
	Payload   []byte
	Cause     error
}

func (e *LostElementError) Error() string {
	msg := fmt.Sprintf("poll: lost element from %s (%s, %d bytes)", e.Queue, e.End, len(e.Payload))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LostElementError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrLostElement}
	}
	return []error{ErrLostElement, e.Cause}
}
