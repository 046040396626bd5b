// Package resolve maps import specifiers to concrete module sources. It
// classifies every specifier syntactically before any filesystem access,
// enforces project-root containment for file-backed modules, and serves
// builtin/virtual modules from an in-memory registry.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScriptExt is the extension appended when a relative specifier omits it.
const ScriptExt = ".star"

// Resolved is a (canonical path, source text) pair. Virtual and builtin
// modules carry a synthetic "virtual://" path used only for diagnostics and
// cycle detection.
type Resolved struct {
	Path    string
	Source  string
	Kind    SpecifierKind
	Virtual bool
}

// Resolver resolves specifiers for one project root. Zero-value is not
// usable; construct with NewResolver.
type Resolver struct {
	root             string
	allowOutsideRoot bool
	registry         *Registry
}

// NewResolver creates a resolver rooted at projectRoot. The root is
// canonicalized once up front; containment checks compare against it.
func NewResolver(projectRoot string, registry *Registry, allowOutsideRoot bool) (*Resolver, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("canonicalize project root: %w", err)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Resolver{
		root:             filepath.Clean(abs),
		allowOutsideRoot: allowOutsideRoot,
		registry:         registry,
	}, nil
}

// Root returns the canonical project root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps specifier, imported from importerPath, to a Resolved module.
// Classification runs first; unsupported shapes fail before any I/O.
func (r *Resolver) Resolve(specifier, importerPath string) (*Resolved, error) {
	kind := Classify(specifier)
	switch kind {
	case KindUnsupported:
		return nil, newError(specifier, importerPath, kind, ErrUnsupportedSpecifier)

	case KindBuiltin, KindVirtual:
		ns, sub := splitNamespace(specifier)
		source, ok := r.registry.Lookup(ns, sub)
		if !ok {
			return nil, newError(specifier, importerPath, kind, ErrUnknownModule)
		}
		return &Resolved{
			Path:    syntheticPath(ns, sub),
			Source:  source,
			Kind:    kind,
			Virtual: true,
		}, nil

	default: // KindRelative
		return r.resolveRelative(specifier, importerPath, kind)
	}
}

// ResolveEntry resolves the entry script path itself, which is a filesystem
// path rather than an import specifier. The containment check still applies.
func (r *Resolver) ResolveEntry(path string) (*Resolved, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, newError(path, "", KindRelative, fmt.Errorf("canonicalize: %w", err))
	}
	return r.readFile(filepath.Clean(abs), path, "")
}

func (r *Resolver) resolveRelative(specifier, importerPath string, kind SpecifierKind) (*Resolved, error) {
	base := r.root
	if importerPath != "" && !strings.HasPrefix(importerPath, "virtual://") {
		base = filepath.Dir(importerPath)
	}
	path := filepath.Clean(filepath.Join(base, filepath.FromSlash(specifier)))
	return r.readFile(path, specifier, importerPath)
}

// readFile enforces containment, then reads. The containment check runs on
// the canonical path before the read so a traversal outside the root is
// rejected whether or not the target exists.
func (r *Resolver) readFile(path, specifier, importerPath string) (*Resolved, error) {
	if !r.allowOutsideRoot && !r.contains(path) {
		return nil, newError(specifier, importerPath, KindRelative, ErrOutsideProjectRoot)
	}

	data, err := os.ReadFile(path)
	if err != nil && os.IsNotExist(err) && filepath.Ext(path) == "" {
		path += ScriptExt
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(specifier, importerPath, KindRelative, ErrModuleNotFound)
		}
		return nil, newError(specifier, importerPath, KindRelative, err)
	}

	return &Resolved{
		Path:   path,
		Source: string(data),
		Kind:   KindRelative,
	}, nil
}

func (r *Resolver) contains(path string) bool {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
