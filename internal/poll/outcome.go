package poll

import "fmt"

// OutcomeKind enumerates the terminal results of a request.
type OutcomeKind int

const (
	OutcomeElement OutcomeKind = iota + 1
	OutcomeEmpty
	OutcomeCancelled
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeElement:
		return "element"
	case OutcomeEmpty:
		return "empty"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the single result of a Request.
type Outcome struct {
	Kind  OutcomeKind
	Value []byte
	Queue string
	Err   error
}

func elementOutcome(value []byte, queue string) Outcome {
	return Outcome{Kind: OutcomeElement, Value: value, Queue: queue}
}

func emptyOutcome() Outcome { return Outcome{Kind: OutcomeEmpty} }

func cancelledOutcome(cause error) Outcome {
	err := ErrCancelled
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return Outcome{Kind: OutcomeCancelled, Err: err}
}

func errorOutcome(err error) Outcome { return Outcome{Kind: OutcomeError, Err: err} }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeElement:
		return fmt.Sprintf("element(%s, %d bytes)", o.Queue, len(o.Value))
	case OutcomeError, OutcomeCancelled:
		return fmt.Sprintf("%s(%v)", o.Kind, o.Err)
	default:
		return o.Kind.String()
	}
}
