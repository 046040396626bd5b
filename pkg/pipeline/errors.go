package pipeline

import (
	"errors"
	"fmt"

	"github.com/kforge-dev/kforge/pkg/engine"
	"github.com/kforge-dev/kforge/pkg/loader"
	"github.com/kforge-dev/kforge/pkg/resolve"
)

// Error is a classified pipeline failure with the stage it occurred in.
type Error struct {
	// Outcome is the terminal classification for the CLI.
	Outcome Outcome

	// Stage is the pipeline stage that failed.
	Stage Stage

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Outcome, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyExecutionError maps an engine/loader/resolver failure to the
// outcome taxonomy. Everything here is terminal for the invocation: scripts
// are assumed deterministic, so a retry would reproduce the same failure.
func classifyExecutionError(err error) Outcome {
	var compileErr *loader.CompileError
	if errors.As(err, &compileErr) {
		return OutcomeCompileFailed
	}
	return OutcomeExecutionFailed
}

// executionStage separates failures of the module-loading phase (resolution,
// compilation, import cycles) from failures of evaluation proper.
func executionStage(err error) Stage {
	if IsResolution(err) || IsCompile(err) || IsCircularImport(err) {
		return StageLoading
	}
	return StageExecuting
}

// IsResolution reports whether err is a module-resolution failure.
func IsResolution(err error) bool {
	var resErr *resolve.Error
	return errors.As(err, &resErr)
}

// IsCompile reports whether err is a compiler failure.
func IsCompile(err error) bool {
	var compileErr *loader.CompileError
	return errors.As(err, &compileErr)
}

// IsCircularImport reports whether err is an import-cycle failure.
func IsCircularImport(err error) bool {
	var cycErr *loader.CircularImportError
	return errors.As(err, &cycErr)
}

// IsScriptRuntime reports whether err is an uncaught script exception.
func IsScriptRuntime(err error) bool {
	var rtErr *engine.ScriptRuntimeError
	return errors.As(err, &rtErr)
}

// IsCaptureViolation reports whether err is a zero-or-multiple capture-call
// failure.
func IsCaptureViolation(err error) bool {
	var none *engine.BuildNotCalledError
	var many *engine.BuildCalledMultipleTimesError
	return errors.As(err, &none) || errors.As(err, &many)
}
