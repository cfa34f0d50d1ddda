package oracle

import (
	"fmt"
	"time"
)

// TimeoutError is returned when a call exceeds its time bound.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("oracle %s: timed out after %s", e.Op, e.Timeout)
}

// ResponseError is returned when the backend fails or answers with something
// that cannot be used.
type ResponseError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("oracle %s: %s", e.Op, e.Reason)
}

func (e *ResponseError) Unwrap() error { return e.Err }
