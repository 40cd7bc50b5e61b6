package prediction

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed prediction input; handlers map it
	// to a client error.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrModelNotFound is returned when a model id has no registry row.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidToken is returned when a token has no session row.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenConsumed is returned when a token has already been used for a
	// successful execution.
	ErrTokenConsumed = errors.New("token already consumed")

	// ErrTimeout is returned when a model run exceeds its deadline and the
	// subprocess is killed.
	ErrTimeout = errors.New("model execution timed out")
)

// SpawnError wraps a failure to start the model subprocess at all.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("start model process: %v", e.Err) }

func (e *SpawnError) Unwrap() error { return e.Err }

// ExecutionError carries the exit code and diagnostic text of a model run
// that started but finished unsuccessfully.
type ExecutionError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("model process exited with code %d: %s", e.ExitCode, e.Stderr)
}

// OutputError marks a zero-exit run whose stdout could not be parsed as the
// expected result document.
type OutputError struct {
	Err error
	Raw []byte
}

func (e *OutputError) Error() string { return fmt.Sprintf("malformed model output: %v", e.Err) }

func (e *OutputError) Unwrap() error { return e.Err }
