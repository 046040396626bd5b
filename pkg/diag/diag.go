// Package diag defines the Diagnostic type shared by every validator in the
// pipeline. Validators produce Diagnostics; the orchestrator aggregates them
// without reinterpretation, and the CLI/LSP layers own all human formatting.
package diag

import (
	"fmt"
	"sort"
)

// Rule identifiers. Stable strings consumed by machine tooling; never
// reworded without a migration note.
const (
	RuleStrictFunction     = "strict.function"
	RuleStrictBuiltin      = "strict.builtin"
	RuleStrictNone         = "strict.none"
	RuleStrictBigInt       = "strict.bigint"
	RuleStrictOpaque       = "strict.opaque"
	RuleStrictSet          = "strict.set"
	RuleStrictNonStringKey = "strict.non-string-key"
	RuleStrictNonFinite    = "strict.non-finite-float"
	RuleStrictCycle        = "strict.cyclic-reference"

	RuleQuantityInvalid = "quantity.invalid"

	RuleSchemaNotFound = "schema.not-found"
	RuleSchemaInvalid  = "schema.invalid"

	RulePolicyDeny = "policy.deny"
)

// Diagnostic is one machine-actionable finding against one document.
type Diagnostic struct {
	// Document is the index of the document in the captured output array.
	Document int `json:"document"`

	// Path locates the offending node inside the document, in dot/bracket
	// notation rooted at the document (e.g. "spec.containers[0].image").
	// Empty means the document root.
	Path string `json:"path"`

	// Kind is the coarse category of the observed value
	// (e.g. "function", "cyclic-reference", "string").
	Kind string `json:"kind"`

	// Rule is the identifier of the violated rule.
	Rule string `json:"rule"`

	// Message is the human-readable description. The core never formats
	// prose beyond this single sentence.
	Message string `json:"message"`
}

// String renders the diagnostic for logs and test failures.
func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("doc[%d]: %s: %s", d.Document, d.Rule, d.Message)
	}
	return fmt.Sprintf("doc[%d] %s: %s: %s", d.Document, d.Path, d.Rule, d.Message)
}

// Sort orders diagnostics by document index, then by path. Validators emit
// in traversal order already; Sort is for aggregations that merge several
// validators' output for one stage.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Document != diags[j].Document {
			return diags[i].Document < diags[j].Document
		}
		return diags[i].Path < diags[j].Path
	})
}

// Documents returns the set of document indices that have at least one
// diagnostic. Used by the orchestrator to gate later stages.
func Documents(diags []Diagnostic) map[int]bool {
	out := make(map[int]bool, len(diags))
	for _, d := range diags {
		out[d.Document] = true
	}
	return out
}
