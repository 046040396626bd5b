// Package engine owns one sandboxed Starlark instance per invocation. It
// installs the virtual modules described by the loader, exposes the single
// build() capture call, evaluates the entry module, and hands the rendered
// document trees to the validators. Nothing survives across invocations: no
// shared globals, no module cache reuse, no capture state.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/kforge-dev/kforge/pkg/loader"
	"github.com/kforge-dev/kforge/pkg/resolve"
)

// DefaultTimeout bounds one script evaluation. The sandbox has no
// cooperative cancellation contract; on timeout the whole engine instance
// is discarded.
const DefaultTimeout = 30 * time.Second

// Options configures one Engine. All fields are read-only during execution.
type Options struct {
	ProjectRoot      string
	AllowOutsideRoot bool
	Registry         *resolve.Registry
	Compiler         loader.Compiler
	Timeout          time.Duration
	Logger           zerolog.Logger
}

// Result is a successful execution: exactly one capture call, its argument
// normalized to an array and every item rendered to a value tree.
type Result struct {
	RunID string

	// Documents are the rendered Starlark value trees, in capture order.
	// They stay in Starlark form so the strict-contract walk can see
	// engine-native values (functions, big ints, cycles) before any
	// conversion flattens them.
	Documents []starlark.Value
}

// Engine executes entry scripts. The struct holds only read-only
// configuration; every Execute call builds a fresh thread, loader and
// capture state, so concurrent calls on separate goroutines are safe.
type Engine struct {
	opts Options
}

// New creates an engine. A nil registry means no virtual modules resolve.
func New(opts Options) *Engine {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Registry == nil {
		opts.Registry = resolve.NewRegistry()
	}
	return &Engine{opts: opts}
}

// capture is the single side-channel by which a script communicates output.
// Invocation-scoped; destroyed with the engine instance.
type capture struct {
	calls int
	items []starlark.Value
}

// Execute evaluates the entry module as a module graph and returns the
// captured documents. Evaluation is synchronous with respect to the caller;
// the goroutine exists only so a context deadline can cancel the thread.
func (e *Engine) Execute(ctx context.Context, entryPath string) (*Result, error) {
	runID := uuid.NewString()
	log := e.opts.Logger.With().Str("run_id", runID).Str("entry", entryPath).Logger()

	resolver, err := resolve.NewResolver(e.opts.ProjectRoot, e.opts.Registry, e.opts.AllowOutsideRoot)
	if err != nil {
		return nil, err
	}

	cap := &capture{}
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"build":  starlark.NewBuiltin("build", cap.builtin),
	}
	ld := loader.New(resolver, e.opts.Compiler, predeclared)

	thread := &starlark.Thread{
		Name: "kforge:" + runID,
		Load: ld.Load,
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug().Str("source", "script").Msg(msg)
		},
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := ld.LoadEntry(thread, entryPath)
		done <- err
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		// The thread observes cancellation at its next instruction; wait
		// for it so the engine is fully torn down before returning.
		err = <-done
		if err == nil {
			err = evalCtx.Err()
		}
	case err = <-done:
	}

	if err != nil {
		return nil, e.classify(err)
	}

	switch cap.calls {
	case 0:
		return nil, &BuildNotCalledError{Entry: entryPath}
	case 1:
	default:
		return nil, &BuildCalledMultipleTimesError{Entry: entryPath, Calls: cap.calls}
	}

	docs, err := renderAll(thread, cap.items)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("documents", len(docs)).Msg("execution complete")
	return &Result{RunID: runID, Documents: docs}, nil
}

// classify keeps resolution, compile and circular-import errors typed as-is
// and wraps everything else as a script runtime error.
func (e *Engine) classify(err error) error {
	var (
		resErr *resolve.Error
		cmpErr *loader.CompileError
		cycErr *loader.CircularImportError
	)
	if evalErr, ok := err.(*starlark.EvalError); ok {
		// A load() failure surfaces wrapped in the EvalError of the
		// importing module; unwrap to keep the taxonomy stable.
		cause := evalErr.Unwrap()
		if as(cause, &resErr) || as(cause, &cmpErr) || as(cause, &cycErr) {
			return cause
		}
		return newScriptRuntimeError(err)
	}
	if as(err, &resErr) || as(err, &cmpErr) || as(err, &cycErr) {
		return err
	}
	return newScriptRuntimeError(err)
}

// builtin implements build(). Each call appends its argument and bumps the
// counter; the zero/multiple checks happen after evaluation so a script
// cannot observe them.
func (c *capture) builtin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: got %d arguments, want exactly 1", b.Name(), len(args))
	}

	items, err := normalizeItems(args[0])
	if err != nil {
		return nil, err
	}

	c.calls++
	c.items = append(c.items, items...)
	return starlark.None, nil
}

// normalizeItems wraps a single builder in a one-element array and checks
// every item for the builder marker. This is a tagged-capability check on a
// well-known method, not an object-shape heuristic.
func normalizeItems(arg starlark.Value) ([]starlark.Value, error) {
	var items []starlark.Value
	switch seq := arg.(type) {
	case *starlark.List:
		items = make([]starlark.Value, seq.Len())
		for i := 0; i < seq.Len(); i++ {
			items[i] = seq.Index(i)
		}
	case starlark.Tuple:
		items = append(items, seq...)
	default:
		items = []starlark.Value{arg}
	}

	for i, item := range items {
		if _, ok := renderMethod(item); !ok {
			return nil, fmt.Errorf("build: item %d (%s) is not a builder: missing callable %q attribute",
				i, item.Type(), renderAttr)
		}
	}
	return items, nil
}

// renderAll invokes each builder's render method on the same thread, before
// teardown, so any asynchronous work the script scheduled has settled.
func renderAll(thread *starlark.Thread, items []starlark.Value) ([]starlark.Value, error) {
	docs := make([]starlark.Value, 0, len(items))
	for i, item := range items {
		fn, _ := renderMethod(item)
		doc, err := starlark.Call(thread, fn, nil, nil)
		if err != nil {
			rerr := newScriptRuntimeError(err)
			rerr.Message = fmt.Sprintf("rendering item %d: %s", i, rerr.Message)
			return nil, rerr
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

const renderAttr = "render"

// renderMethod reports whether v carries the well-known rendering
// capability that marks it builder-shaped.
func renderMethod(v starlark.Value) (starlark.Callable, bool) {
	attrs, ok := v.(starlark.HasAttrs)
	if !ok {
		return nil, false
	}
	attr, err := attrs.Attr(renderAttr)
	if err != nil || attr == nil {
		return nil, false
	}
	fn, ok := attr.(starlark.Callable)
	return fn, ok
}
