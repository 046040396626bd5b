// Package loader drives the resolver, feeds module sources through the
// compiler, and memoizes initialized module globals for the lifetime of one
// pipeline invocation. It detects import cycles with an explicit
// in-progress set; a module that is re-imported mid-evaluation is a fatal
// error, mirroring ES module semantics.
package loader

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/kforge-dev/kforge/pkg/resolve"
)

// CircularImportError names the cycle in encounter order, ending with the
// re-entered module.
type CircularImportError struct {
	Cycle []string
}

func (e *CircularImportError) Error() string {
	return fmt.Sprintf("circular import: %s", strings.Join(e.Cycle, " -> "))
}

// entry is a memoized module. A nil *entry stored in the cache marks a
// module whose top-level evaluation has started but not finished.
type entry struct {
	globals starlark.StringDict
	err     error
}

// Loader is invocation-scoped: one Loader per engine instance, discarded
// with it. There is no persistent module cache across invocations.
type Loader struct {
	resolver    *resolve.Resolver
	compiler    Compiler
	predeclared starlark.StringDict
	cache       map[string]*entry
	stack       []string
}

// New creates a loader for one invocation. predeclared is the environment
// every module is compiled and initialized against (capture builtin
// included); the loader never mutates it.
func New(resolver *resolve.Resolver, compiler Compiler, predeclared starlark.StringDict) *Loader {
	if compiler == nil {
		compiler = NewCompiler()
	}
	return &Loader{
		resolver:    resolver,
		compiler:    compiler,
		predeclared: predeclared,
		cache:       make(map[string]*entry),
	}
}

// Load implements the starlark.Thread Load hook. The importer is the module
// currently on top of the evaluation stack (the entry script when the stack
// is empty).
func (l *Loader) Load(thread *starlark.Thread, specifier string) (starlark.StringDict, error) {
	importer := ""
	if n := len(l.stack); n > 0 {
		importer = l.stack[n-1]
	}
	resolved, err := l.resolver.Resolve(specifier, importer)
	if err != nil {
		return nil, err
	}
	return l.initModule(thread, resolved)
}

// LoadEntry resolves and initializes the entry script, returning its
// globals. Must be called at most once per Loader.
func (l *Loader) LoadEntry(thread *starlark.Thread, path string) (starlark.StringDict, error) {
	resolved, err := l.resolver.ResolveEntry(path)
	if err != nil {
		return nil, err
	}
	return l.initModule(thread, resolved)
}

func (l *Loader) initModule(thread *starlark.Thread, resolved *resolve.Resolved) (starlark.StringDict, error) {
	if e, seen := l.cache[resolved.Path]; seen {
		if e == nil {
			// Mid-evaluation re-import. Report the full cycle, not a
			// partially built module.
			return nil, &CircularImportError{Cycle: l.cycleFrom(resolved.Path)}
		}
		return e.globals, e.err
	}

	l.cache[resolved.Path] = nil
	l.stack = append(l.stack, resolved.Path)

	globals, err := l.compileAndInit(thread, resolved)

	l.stack = l.stack[:len(l.stack)-1]
	l.cache[resolved.Path] = &entry{globals: globals, err: err}
	return globals, err
}

func (l *Loader) compileAndInit(thread *starlark.Thread, resolved *resolve.Resolved) (starlark.StringDict, error) {
	prog, err := l.compiler.Compile(resolved.Path, resolved.Source, l.predeclared.Has)
	if err != nil {
		return nil, err
	}
	return prog.Init(thread, l.predeclared)
}

// cycleFrom returns the evaluation stack from the first occurrence of path,
// with path appended to close the loop.
func (l *Loader) cycleFrom(path string) []string {
	start := 0
	for i, p := range l.stack {
		if p == path {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(l.stack)-start+1)
	cycle = append(cycle, l.stack[start:]...)
	return append(cycle, path)
}
