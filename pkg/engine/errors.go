package engine

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
)

// as is a local shorthand for errors.As with a nil guard.
func as[T error](err error, target *T) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// BuildNotCalledError: the entry module finished evaluating without ever
// invoking the capture call.
type BuildNotCalledError struct {
	Entry string
}

func (e *BuildNotCalledError) Error() string {
	return fmt.Sprintf("%s: build() was never called", e.Entry)
}

// BuildCalledMultipleTimesError: the capture call ran more than once. The
// capture state is ambiguous and the pipeline never proceeds past it.
type BuildCalledMultipleTimesError struct {
	Entry string
	Calls int
}

func (e *BuildCalledMultipleTimesError) Error() string {
	return fmt.Sprintf("%s: build() called %d times, want exactly 1", e.Entry, e.Calls)
}

// ScriptRuntimeError is an uncaught script exception, carrying the
// script-level message and source location where available.
type ScriptRuntimeError struct {
	Message   string
	Backtrace string
	Err       error
}

func (e *ScriptRuntimeError) Error() string {
	return fmt.Sprintf("script error: %s", e.Message)
}

func (e *ScriptRuntimeError) Unwrap() error {
	return e.Err
}

func newScriptRuntimeError(err error) *ScriptRuntimeError {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return &ScriptRuntimeError{
			Message:   evalErr.Msg,
			Backtrace: evalErr.Backtrace(),
			Err:       err,
		}
	}
	return &ScriptRuntimeError{Message: err.Error(), Err: err}
}
