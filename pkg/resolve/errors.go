package resolve

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, matched with errors.Is.
var (
	ErrUnsupportedSpecifier = errors.New("unsupported specifier")
	ErrUnknownModule        = errors.New("unknown virtual module")
	ErrOutsideProjectRoot   = errors.New("outside project root")
	ErrModuleNotFound       = errors.New("module not found")
)

// Error is a resolution failure with the specifier and importer attached.
type Error struct {
	Specifier string
	Importer  string
	Kind      SpecifierKind
	Err       error
}

func (e *Error) Error() string {
	if e.Importer != "" {
		return fmt.Sprintf("resolve %q (imported from %s): %v", e.Specifier, e.Importer, e.Err)
	}
	return fmt.Sprintf("resolve %q: %v", e.Specifier, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(specifier, importer string, kind SpecifierKind, err error) *Error {
	return &Error{Specifier: specifier, Importer: importer, Kind: kind, Err: err}
}
