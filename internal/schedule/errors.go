package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("schedule: capacity exceeded")
	ErrIndexOutOfRange  = errors.New("schedule: index out of range")
	ErrInvalidEntry     = errors.New("schedule: invalid entry")
)

// ParseError reports a malformed time-of-day string.
type ParseError struct {
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schedule: invalid time %q: %s", e.Value, e.Reason)
}

// Is makes a ParseError match ErrInvalidEntry.
func (e *ParseError) Is(target error) bool { return target == ErrInvalidEntry }

// IOError reports a persistence failure. The in-memory document is
// unaffected; the next explicit save retries.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("schedule: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
