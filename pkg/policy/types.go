package policy

import "time"

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is for findings that should be reviewed but do not
	// block emission.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block emission.
	SeverityError Severity = "error"
)

// Policy is one named Rego deny rule set evaluated over rendered documents.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego source. The module must live under the
	// kforge.policies package and express findings as deny[msg] rules.
	Rego string `json:"rego"`

	// Severity is the severity applied to this policy's findings.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// CreatedAt is when the policy was registered.
	CreatedAt time.Time `json:"created_at"`
}

// Violation is a single policy finding against one document.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Document is the index of the offending document in the evaluated
	// set.
	Document int `json:"document"`

	// Path optionally locates the offending field.
	Path string `json:"path,omitempty"`

	// Message is the deny rule's message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}
