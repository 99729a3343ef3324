package query

import "fmt"

// Status describes the outcome of a query
type Status int

const (
	// StatusOK means the upstream answered with data
	StatusOK Status = iota
	// StatusEmpty means the upstream answered with nothing
	StatusEmpty
	// StatusError means the upstream could not be read
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText renders the status as its name in JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result carries a query value or the reason there is none. Callers render
// StatusEmpty and StatusError alike as "no data"; Err is only set for
// StatusError.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// HasData reports whether the upstream answered
func (r Result[T]) HasData() bool {
	return r.Status != StatusError
}

func failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err}
}
