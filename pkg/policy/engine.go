// Package policy evaluates optional Rego deny rules over rendered
// documents. It sits after schema validation in the pipeline and is off
// unless policies are registered; violations become policy.deny
// diagnostics.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Query every policy module must answer: a set of deny messages.
const denyQuery = "data.kforge.policies.deny"

// Engine compiles and evaluates policies. Policies are registered during
// setup; Evaluate is read-only and safe for concurrent invocations.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy with its prepared query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an empty policy engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
}

// Add compiles and registers one policy, replacing any policy of the same
// name.
func (e *Engine) Add(ctx context.Context, p Policy) error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if p.Rego == "" {
		return fmt.Errorf("policy %s: rego source is required", p.Name)
	}
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	p.CreatedAt = time.Now()

	query, err := rego.New(
		rego.Query(denyQuery),
		rego.Module(p.Name+".rego", p.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compile policy %s: %w", p.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &compiledPolicy{
		policy:   &p,
		query:    query,
		compiled: p.CreatedAt,
	}
	e.logger.Debug().Str("policy", p.Name).Msg("policy registered")
	return nil
}

// Len returns the number of registered policies.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// Evaluate runs every enabled policy over every document. Violations are
// ordered by document index, then policy name; evaluation is exhaustive,
// not fail-fast, matching the validators' collect-all contract.
func (e *Engine) Evaluate(ctx context.Context, docs []map[string]interface{}) ([]Violation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for i, doc := range docs {
		input := map[string]interface{}{
			"document": doc,
			"index":    i,
		}
		for _, name := range names {
			cp := e.policies[name]
			if !cp.policy.Enabled {
				continue
			}
			msgs, err := e.evalOne(ctx, cp, input)
			if err != nil {
				return nil, fmt.Errorf("evaluate policy %s on document %d: %w", name, i, err)
			}
			for _, msg := range msgs {
				violations = append(violations, Violation{
					Policy:   cp.policy.Name,
					Document: i,
					Message:  msg,
					Severity: cp.policy.Severity,
				})
			}
		}
	}
	return violations, nil
}

func (e *Engine) evalOne(ctx context.Context, cp *compiledPolicy, input interface{}) ([]string, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var msgs []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range set {
				if msg, ok := item.(string); ok {
					msgs = append(msgs, msg)
				}
			}
		}
	}
	sort.Strings(msgs)
	return msgs, nil
}
