package compute

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every *TimeoutError
	ErrTimeout = errors.New("embedding request timed out")

	// ErrClosed is returned for requests on a closed client or connection
	ErrClosed = errors.New("compute channel closed")

	// ErrWorkerGone is returned to pending requests when the worker end
	// of the connection goes away
	ErrWorkerGone = errors.New("compute worker exited")
)

// TimeoutError reports a request that got no response within the deadline.
type TimeoutError struct {
	ID    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("embedding request %s timed out after %s", e.ID, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// WorkerError is a failure reported by the worker. Broadcast errors carry
// no request id and fail every request pending at the time.
type WorkerError struct {
	ID        string
	Message   string
	Broadcast bool
}

func (e *WorkerError) Error() string {
	if e.Broadcast {
		return "compute worker: " + e.Message
	}
	return fmt.Sprintf("compute worker: request %s: %s", e.ID, e.Message)
}
