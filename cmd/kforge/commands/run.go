package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kforge-dev/kforge/pkg/loader"
	"github.com/kforge-dev/kforge/pkg/pipeline"
	"github.com/kforge-dev/kforge/pkg/policy"
	"github.com/kforge-dev/kforge/pkg/schema"
	"github.com/kforge-dev/kforge/pkg/stdlib"
	"github.com/kforge-dev/kforge/pkg/stores"
	"github.com/kforge-dev/kforge/pkg/telemetry"
)

// runFlags are the pipeline flags shared by build, validate and watch.
type runFlags struct {
	projectRoot      string
	allowOutsideRoot bool
	timeout          time.Duration
	policyDir        string
	builtinPolicies  bool
	historyDB        string
	trace            bool
}

// newPipeline assembles the shared collaborators for one or more invocations.
func newPipeline(ctx context.Context, logger *telemetry.Logger, flags runFlags) (*pipeline.Pipeline, error) {
	schemas, err := schema.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build schema registry: %w", err)
	}

	p := &pipeline.Pipeline{
		Modules:  stdlib.DefaultRegistry(),
		Schemas:  schemas,
		Compiler: loader.NewCompiler(),
		Logger:   logger.Zerolog(),
	}

	if flags.policyDir != "" || flags.builtinPolicies {
		eng := policy.NewEngine(logger.NewComponentLogger("policy").Zerolog())
		if flags.builtinPolicies {
			if err := eng.AddBuiltin(ctx); err != nil {
				return nil, fmt.Errorf("failed to load builtin policies: %w", err)
			}
		}
		if flags.policyDir != "" {
			n, err := eng.LoadDir(ctx, flags.policyDir)
			if err != nil {
				return nil, fmt.Errorf("failed to load policies from %s: %w", flags.policyDir, err)
			}
			logger.Debugf("loaded %d policies from %s", n, flags.policyDir)
		}
		p.Policies = eng
	}

	if flags.trace {
		cfg := telemetry.DefaultConfig()
		cfg.Tracing.Enabled = true
		tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracer: %w", err)
		}
		p.Tracer = tracer
	}

	return p, nil
}

// shutdownTracer flushes pending spans at the end of a traced invocation.
func shutdownTracer(ctx context.Context, p *pipeline.Pipeline) {
	if p.Tracer != nil {
		_ = p.Tracer.Shutdown(ctx)
	}
}

// runOptions derives pipeline options from the entry argument and flags. The
// project root defaults to the entry script's directory.
func runOptions(entry string, flags runFlags) (pipeline.Options, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("invalid entry path %q: %w", entry, err)
	}

	root := flags.projectRoot
	if root == "" {
		root = filepath.Dir(abs)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("invalid project root %q: %w", flags.projectRoot, err)
	}

	return pipeline.Options{
		Entry:            abs,
		ProjectRoot:      root,
		AllowOutsideRoot: flags.allowOutsideRoot,
		Timeout:          flags.timeout,
	}, nil
}

// reportResult prints the invocation's terminal state to stderr and returns
// the ExitError for non-success outcomes.
func reportResult(logger *telemetry.Logger, res *pipeline.Result) error {
	log := logger.WithRunID(res.RunID).WithStage(string(res.Stage))

	switch res.Outcome {
	case pipeline.OutcomeSuccess:
		log.Debugf("emit-ready with %d documents in %s", len(res.Documents), res.Duration)
		return nil
	case pipeline.OutcomeContractRejected:
		for _, d := range res.Diagnostics {
			fmt.Fprintln(os.Stderr, d.String())
		}
		log.Errorf("rejected at %s stage with %d diagnostics", res.Stage, len(res.Diagnostics))
	default:
		log.WithError(res.Err).Errorf("invocation failed (%s)", res.Outcome)
	}
	return &ExitError{Code: exitCodeFor(res.Outcome), Outcome: res.Outcome}
}

// recordHistory persists the terminal state when a history database is
// configured. Recording failures are logged, never fatal.
func recordHistory(ctx context.Context, logger *telemetry.Logger, dbPath, entry string, res *pipeline.Result) {
	if dbPath == "" {
		return
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		logger.WithError(err).Warn("failed to open history store")
		return
	}
	if err := store.Init(ctx); err != nil {
		logger.WithError(err).Warn("failed to initialize history store")
		return
	}
	defer store.Close()

	rec := &stores.RunRecord{
		ID:          res.RunID,
		Entry:       entry,
		Outcome:     string(res.Outcome),
		Stage:       string(res.Stage),
		Documents:   len(res.Documents),
		Diagnostics: len(res.Diagnostics),
		Duration:    res.Duration,
		CreatedAt:   time.Now().UTC(),
	}
	if rec.ID == "" {
		// Runs that fail before execution never get a run ID.
		rec.ID = fmt.Sprintf("pre-exec-%d", time.Now().UnixNano())
	}
	if err := store.RecordRun(ctx, rec); err != nil {
		logger.WithError(err).Warn("failed to record run history")
	}
}
