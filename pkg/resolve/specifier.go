package resolve

import "strings"

// SpecifierKind classifies an import specifier. Classification is purely
// syntactic and total: every string maps to exactly one kind before any
// filesystem access happens.
type SpecifierKind int

const (
	// KindRelative is a "./" or "../" path resolved against the importer.
	KindRelative SpecifierKind = iota

	// KindBuiltin is a module under the reserved "kforge/" namespace.
	KindBuiltin

	// KindVirtual is a two-or-more-segment specifier served from the
	// virtual-module registry (generated Kubernetes type modules, chart
	// value modules, installed plugin modules).
	KindVirtual

	// KindUnsupported covers everything else: bare package names, engine
	// built-ins, network URLs. Rejected before any I/O.
	KindUnsupported
)

func (k SpecifierKind) String() string {
	switch k {
	case KindRelative:
		return "relative"
	case KindBuiltin:
		return "builtin"
	case KindVirtual:
		return "virtual"
	default:
		return "unsupported"
	}
}

// BuiltinNamespace is the reserved namespace for the bundled standard
// library modules.
const BuiltinNamespace = "kforge"

// Classify maps a specifier string to its kind. It never touches the
// filesystem or the registry, so an unsupported shape cannot be bypassed by
// a path that also happens to exist on disk.
func Classify(specifier string) SpecifierKind {
	if specifier == "" {
		return KindUnsupported
	}
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		return KindRelative
	}
	if strings.Contains(specifier, "://") {
		return KindUnsupported
	}
	if strings.HasPrefix(specifier, "/") || strings.HasPrefix(specifier, "~") {
		return KindUnsupported
	}
	ns, rest, ok := strings.Cut(specifier, "/")
	if !ok || ns == "" || rest == "" {
		// Bare names ("lodash", "fs") are package-manager territory and
		// out of scope.
		return KindUnsupported
	}
	if ns == BuiltinNamespace {
		return KindBuiltin
	}
	return KindVirtual
}

// splitNamespace returns the namespace and sub-path of a builtin or virtual
// specifier. Callers must have classified the specifier first.
func splitNamespace(specifier string) (namespace, subpath string) {
	ns, rest, _ := strings.Cut(specifier, "/")
	return ns, rest
}
