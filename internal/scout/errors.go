package scout

import (
	"errors"
	"fmt"
)

// Kind classifies a failed action.
type Kind string

const (
	// KindInputMissing means the user supplied no usable input.
	KindInputMissing Kind = "input_missing"
	// KindFetch means a URL could not be fetched or parsed.
	KindFetch Kind = "fetch_failure"
	// KindNotReady means ask ran before any successful process.
	KindNotReady Kind = "not_ready"
	// KindInference means an embedding or generation call failed.
	KindInference Kind = "inference_failure"
	// KindIndex means the index could not be built.
	KindIndex Kind = "index_failure"
)

// Error attaches a Kind to a failure cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("scout: %s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
