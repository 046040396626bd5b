package pipeline

import (
	"time"

	"github.com/kforge-dev/kforge/pkg/diag"
)

// Outcome is the closed taxonomy consumed by the CLI layer. Each value is a
// distinct terminal state of the orchestrator's state machine and maps to a
// stable numeric exit code.
type Outcome string

const (
	// OutcomeSuccess: every document passed every validator.
	OutcomeSuccess Outcome = "success"

	// OutcomeInvalidInput: the invocation itself was malformed (bad
	// options, unreadable project root).
	OutcomeInvalidInput Outcome = "invalid-input"

	// OutcomeCompileFailed: the external compiler rejected a module.
	OutcomeCompileFailed Outcome = "compile-failed"

	// OutcomeExecutionFailed: resolution, import-graph or script failure
	// (unsupported specifier, circular import, uncaught exception,
	// zero/multiple capture calls).
	OutcomeExecutionFailed Outcome = "execution-failed"

	// OutcomeSchemaFetchFailed is produced by the external schema
	// acquisition layer, never by this core. The CLI reserves an exit
	// code for it.
	OutcomeSchemaFetchFailed Outcome = "schema-fetch-failed"

	// OutcomeContractRejected: one or more validators produced
	// diagnostics. The only outcome that aggregates multiple findings.
	OutcomeContractRejected Outcome = "contract-rejected"
)

// Stage names the pipeline states, in execution order.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageLoading    Stage = "loading"
	StageExecuting  Stage = "executing"
	StageStrictJSON Stage = "strict-json"
	StageQuantity   Stage = "quantity"
	StageSchema     Stage = "schema"
	StagePolicy     Stage = "policy"
	StageEmitReady  Stage = "emit-ready"
)

// Document is one member of the captured output array, immutable once it
// enters schema validation.
type Document struct {
	// Index is the document's position in the captured output.
	Index int

	// APIVersion and Kind are the declared type fields once extracted;
	// empty until the document reaches the quantity/schema stages.
	APIVersion string
	Kind       string

	// Value is the document's plain value tree.
	Value map[string]interface{}
}

// Result is the terminal state of one invocation. Documents is only
// populated on success: a document set is either entirely valid or entirely
// rejected, never partially emitted.
type Result struct {
	RunID string

	Outcome Outcome

	// Stage is the terminal stage: EmitReady on success, otherwise the
	// first stage that failed.
	Stage Stage

	// Documents are the validated documents, present only when Outcome
	// is OutcomeSuccess.
	Documents []Document

	// Diagnostics carries the aggregated findings for
	// OutcomeContractRejected; empty otherwise.
	Diagnostics []diag.Diagnostic

	// Err is the single terminal error for non-contract failures.
	Err error

	Duration time.Duration
}

// Ok reports whether the invocation reached the emit-ready state.
func (r *Result) Ok() bool {
	return r.Outcome == OutcomeSuccess
}
