package loader

import (
	"fmt"

	starlarkresolve "go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Compiler turns module source text into an executable program. The pipeline
// treats compilation as an external collaborator: failures propagate
// unchanged as *CompileError and are never retried.
type Compiler interface {
	Compile(path, source string, isPredeclared func(string) bool) (*starlark.Program, error)
}

// CompileError carries the offending module path plus the compiler's own
// message and location, verbatim.
type CompileError struct {
	Path    string
	Message string
	Line    int
	Col     int
	Err     error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("compile %s:%d:%d: %s", e.Path, e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("compile %s: %s", e.Path, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// starlarkCompiler is the default Compiler, wrapping the Starlark frontend.
type starlarkCompiler struct {
	opts *syntax.FileOptions
}

// NewCompiler returns the default compiler. Sets and top-level control flow
// are enabled; recursion and global reassignment stay off, matching the
// deterministic-script contract.
func NewCompiler() Compiler {
	return &starlarkCompiler{
		opts: &syntax.FileOptions{
			Set:             true,
			While:           false,
			TopLevelControl: true,
			GlobalReassign:  false,
			Recursion:       false,
		},
	}
}

func (c *starlarkCompiler) Compile(path, source string, isPredeclared func(string) bool) (*starlark.Program, error) {
	_, prog, err := starlark.SourceProgramOptions(c.opts, path, source, isPredeclared)
	if err != nil {
		return nil, newCompileError(path, err)
	}
	return prog, nil
}

func newCompileError(path string, err error) *CompileError {
	ce := &CompileError{Path: path, Message: err.Error(), Err: err}
	switch e := err.(type) {
	case syntax.Error:
		ce.Message = e.Msg
		ce.Line = int(e.Pos.Line)
		ce.Col = int(e.Pos.Col)
	case starlarkresolve.ErrorList:
		if len(e) > 0 {
			ce.Message = e[0].Msg
			ce.Line = int(e[0].Pos.Line)
			ce.Col = int(e[0].Pos.Col)
		}
	}
	return ce
}
