package policy

import "context"

// Builtin policies, disabled by default; the CLI enables them with
// --builtin-policies.

const noLatestTagRego = `
package kforge.policies

import rego.v1

deny contains msg if {
	input.document.kind == "Deployment"
	some container in input.document.spec.template.spec.containers
	endswith(container.image, ":latest")
	msg := sprintf("container %q uses the :latest image tag", [container.name])
}

deny contains msg if {
	input.document.kind == "Deployment"
	some container in input.document.spec.template.spec.containers
	not contains(container.image, ":")
	msg := sprintf("container %q has no image tag", [container.name])
}
`

const requireResourceLimitsRego = `
package kforge.policies

import rego.v1

deny contains msg if {
	input.document.kind == "Deployment"
	some container in input.document.spec.template.spec.containers
	not container.resources.limits
	msg := sprintf("container %q declares no resource limits", [container.name])
}
`

// BuiltinPolicies returns the bundled policies.
func BuiltinPolicies() []Policy {
	return []Policy{
		{
			Name:        "no-latest-tag",
			Description: "Container images must be pinned to an explicit tag.",
			Rego:        noLatestTagRego,
			Severity:    SeverityError,
			Enabled:     true,
		},
		{
			Name:        "require-resource-limits",
			Description: "Every container must declare resource limits.",
			Rego:        requireResourceLimitsRego,
			Severity:    SeverityError,
			Enabled:     true,
		},
	}
}

// AddBuiltin registers the bundled policies.
func (e *Engine) AddBuiltin(ctx context.Context) error {
	for _, p := range BuiltinPolicies() {
		if err := e.Add(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
