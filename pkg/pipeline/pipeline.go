// Package pipeline sequences the execute-and-validate stages and maps every
// outcome to a small, stable taxonomy. One Pipeline may serve many
// invocations; everything mutable (engine instance, module cache, capture
// state) is created per Run and destroyed with it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kforge-dev/kforge/pkg/contract"
	"github.com/kforge-dev/kforge/pkg/diag"
	"github.com/kforge-dev/kforge/pkg/engine"
	"github.com/kforge-dev/kforge/pkg/loader"
	"github.com/kforge-dev/kforge/pkg/policy"
	"github.com/kforge-dev/kforge/pkg/quantity"
	"github.com/kforge-dev/kforge/pkg/resolve"
	"github.com/kforge-dev/kforge/pkg/schema"
	"github.com/kforge-dev/kforge/pkg/telemetry"
)

// PolicyChecker evaluates optional deny policies over rendered documents.
type PolicyChecker interface {
	Evaluate(ctx context.Context, docs []map[string]interface{}) ([]policy.Violation, error)
}

// Pipeline holds the read-only collaborators shared by invocations: the
// virtual-module registry, the schema registry, telemetry, and an optional
// policy checker. None of them are mutated during a run.
type Pipeline struct {
	Modules  *resolve.Registry
	Schemas  *schema.Registry
	Compiler loader.Compiler
	Policies PolicyChecker

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Run executes one invocation of the full pipeline:
//
//	Idle -> Loading -> Executing -> StrictJSONCheck -> QuantityCheck ->
//	SchemaCheck -> [PolicyCheck] -> EmitReady
//
// Any stage's failure transitions directly to a terminal rejected state;
// there is no retry and no partial emission.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	start := time.Now()
	res := &Result{Outcome: OutcomeSuccess, Stage: StageIdle}
	defer func() { res.Duration = time.Since(start) }()

	if err := opts.Validate(); err != nil {
		res.Outcome = OutcomeInvalidInput
		res.Err = &Error{Outcome: OutcomeInvalidInput, Stage: StageIdle, Err: err}
		return res
	}

	eng := engine.New(engine.Options{
		ProjectRoot:      opts.ProjectRoot,
		AllowOutsideRoot: opts.AllowOutsideRoot,
		Registry:         p.Modules,
		Compiler:         p.Compiler,
		Timeout:          opts.Timeout,
		Logger:           p.Logger,
	})

	execStart := time.Now()
	execResult, err := eng.Execute(ctx, opts.Entry)
	p.observeStage(StageExecuting, execStart)
	if err != nil {
		outcome := classifyExecutionError(err)
		stage := executionStage(err)
		res.Outcome = outcome
		res.Stage = stage
		res.Err = &Error{Outcome: outcome, Stage: stage, Err: err}
		return res
	}
	res.RunID = execResult.RunID

	log := p.Logger.With().Str("run_id", execResult.RunID).Logger()
	ctx, runSpan := p.startRunSpan(ctx, execResult.RunID, opts.Entry)
	defer runSpan()

	// Strict serialization contract. Documents with violations never
	// reach a later stage; documents without proceed.
	strictStart := time.Now()
	strictDiags := contract.CheckAll(execResult.Documents)
	p.observeStage(StageStrictJSON, strictStart)
	res.Diagnostics = append(res.Diagnostics, strictDiags...)
	failed := diag.Documents(strictDiags)
	if len(strictDiags) > 0 {
		res.Stage = StageStrictJSON
	}

	// Convert the surviving documents to plain value trees and read their
	// declared type fields. Conversion cannot fail for a tree that passed
	// the contract walk.
	docs := make([]Document, 0, len(execResult.Documents))
	for i, sv := range execResult.Documents {
		if failed[i] {
			continue
		}
		value, err := engine.ToGoValue(sv)
		if err != nil {
			res.Outcome = OutcomeExecutionFailed
			res.Stage = StageStrictJSON
			res.Err = &Error{Outcome: OutcomeExecutionFailed, Stage: StageStrictJSON,
				Err: fmt.Errorf("convert document %d: %w", i, err)}
			return res
		}
		tree, ok := value.(map[string]interface{})
		if !ok {
			res.Diagnostics = append(res.Diagnostics, diag.Diagnostic{
				Document: i,
				Kind:     fmt.Sprintf("%T", value),
				Rule:     diag.RuleStrictOpaque,
				Message:  "document root must be a map",
			})
			failed[i] = true
			if res.Stage == StageIdle {
				res.Stage = StageStrictJSON
			}
			continue
		}
		doc := Document{Index: i, Value: tree}
		doc.APIVersion, doc.Kind, _ = schema.DeclaredType(tree)
		docs = append(docs, doc)
	}

	// Quantity grammar over schema-declared (or heuristic) fields.
	quantityStart := time.Now()
	quantityDiags := p.checkQuantities(docs, failed)
	p.observeStage(StageQuantity, quantityStart)
	res.Diagnostics = append(res.Diagnostics, quantityDiags...)
	for idx := range diag.Documents(quantityDiags) {
		failed[idx] = true
	}
	if len(quantityDiags) > 0 && res.Stage == StageIdle {
		res.Stage = StageQuantity
	}

	// Schema conformance for documents that survived every earlier stage.
	schemaStart := time.Now()
	var schemaDiags []diag.Diagnostic
	for _, doc := range docs {
		if failed[doc.Index] {
			continue
		}
		schemaDiags = append(schemaDiags, p.Schemas.Check(doc.Index, doc.Value)...)
	}
	p.observeStage(StageSchema, schemaStart)
	res.Diagnostics = append(res.Diagnostics, schemaDiags...)
	for idx := range diag.Documents(schemaDiags) {
		failed[idx] = true
	}
	if len(schemaDiags) > 0 && res.Stage == StageIdle {
		res.Stage = StageSchema
	}

	// Optional policy gate.
	if p.Policies != nil {
		policyStart := time.Now()
		policyDiags, err := p.checkPolicies(ctx, docs, failed)
		p.observeStage(StagePolicy, policyStart)
		if err != nil {
			res.Outcome = OutcomeExecutionFailed
			res.Stage = StagePolicy
			res.Err = &Error{Outcome: OutcomeExecutionFailed, Stage: StagePolicy, Err: err}
			return res
		}
		res.Diagnostics = append(res.Diagnostics, policyDiags...)
		for idx := range diag.Documents(policyDiags) {
			failed[idx] = true
		}
		if len(policyDiags) > 0 && res.Stage == StageIdle {
			res.Stage = StagePolicy
		}
	}

	p.countDiagnostics(res.Diagnostics)

	if len(res.Diagnostics) > 0 {
		res.Outcome = OutcomeContractRejected
		log.Debug().Int("diagnostics", len(res.Diagnostics)).Str("stage", string(res.Stage)).
			Msg("invocation rejected")
		return res
	}

	res.Stage = StageEmitReady
	res.Documents = docs
	if p.Metrics != nil {
		p.Metrics.DocumentsEmitted(len(docs))
	}
	log.Debug().Int("documents", len(docs)).Msg("invocation emit-ready")
	return res
}

// checkQuantities validates every quantity-bearing field of the surviving
// documents. Fields come from the document's schema when one is registered,
// otherwise from the Kubernetes resource-requirements heuristic.
func (p *Pipeline) checkQuantities(docs []Document, failed map[int]bool) []diag.Diagnostic {
	var diags []diag.Diagnostic
	for _, doc := range docs {
		if failed[doc.Index] {
			continue
		}
		var fields []schema.Field
		if entry, ok := p.Schemas.Lookup(doc.APIVersion, doc.Kind); ok {
			fields = schema.CollectQuantityFields(doc.Value, entry.QuantityPaths)
		} else {
			fields = schema.HeuristicQuantityFields(doc.Value)
		}
		for _, field := range fields {
			literal, ok := quantityLiteral(field.Value)
			if !ok {
				diags = append(diags, diag.Diagnostic{
					Document: doc.Index,
					Path:     field.Path,
					Kind:     fmt.Sprintf("%T", field.Value),
					Rule:     diag.RuleQuantityInvalid,
					Message:  "quantity must be a string or number",
				})
				continue
			}
			if err := quantity.Check(literal); err != nil {
				diags = append(diags, diag.Diagnostic{
					Document: doc.Index,
					Path:     field.Path,
					Kind:     "string",
					Rule:     diag.RuleQuantityInvalid,
					Message:  err.Error(),
				})
			}
		}
	}
	return diags
}

// quantityLiteral renders a field value as the literal the grammar checks.
// Bare numbers are valid quantities in Kubernetes manifests.
func quantityLiteral(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int64:
		return fmt.Sprintf("%d", val), true
	case float64:
		return fmt.Sprintf("%g", val), true
	default:
		return "", false
	}
}

func (p *Pipeline) checkPolicies(ctx context.Context, docs []Document, failed map[int]bool) ([]diag.Diagnostic, error) {
	input := make([]map[string]interface{}, 0, len(docs))
	indices := make([]int, 0, len(docs))
	for _, doc := range docs {
		if failed[doc.Index] {
			continue
		}
		input = append(input, doc.Value)
		indices = append(indices, doc.Index)
	}
	if len(input) == 0 {
		return nil, nil
	}

	violations, err := p.Policies.Evaluate(ctx, input)
	if err != nil {
		return nil, err
	}

	diags := make([]diag.Diagnostic, 0, len(violations))
	for _, v := range violations {
		idx := v.Document
		if idx >= 0 && idx < len(indices) {
			idx = indices[idx]
		}
		diags = append(diags, diag.Diagnostic{
			Document: idx,
			Path:     v.Path,
			Kind:     "map",
			Rule:     diag.RulePolicyDeny,
			Message:  fmt.Sprintf("%s: %s", v.Policy, v.Message),
		})
	}
	return diags, nil
}

func (p *Pipeline) observeStage(stage Stage, start time.Time) {
	if p.Metrics != nil {
		p.Metrics.StageObserved(string(stage), time.Since(start).Seconds())
	}
}

func (p *Pipeline) countDiagnostics(diags []diag.Diagnostic) {
	if p.Metrics == nil {
		return
	}
	byRule := make(map[string]int)
	for _, d := range diags {
		byRule[d.Rule]++
	}
	for rule, n := range byRule {
		p.Metrics.DiagnosticsProduced(rule, n)
	}
}

func (p *Pipeline) startRunSpan(ctx context.Context, runID, entry string) (context.Context, func()) {
	if p.Tracer == nil {
		return ctx, func() {}
	}
	ctx, span := p.Tracer.StartRunSpan(ctx, runID, entry)
	return ctx, func() { span.End() }
}
