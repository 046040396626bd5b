// Package contract enforces the strict serialization contract on captured
// document trees: only values inside a fixed JSON-safe subset may reach the
// emitter. The walk is collect-all, so one run reports every offending
// field, and uses an explicit visiting set for cycle detection rather than
// relying on recursion depth.
package contract

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"

	"github.com/kforge-dev/kforge/pkg/diag"
)

// Check walks one document tree and returns a diagnostic per violation, in
// depth-first traversal order. An empty slice means the document passes.
func Check(docIndex int, doc starlark.Value) []diag.Diagnostic {
	w := &walker{
		docIndex: docIndex,
		visiting: make(map[interface{}]bool),
	}
	w.walk(doc, "")
	return w.diags
}

// CheckAll runs Check over a document set, preserving document order.
func CheckAll(docs []starlark.Value) []diag.Diagnostic {
	var out []diag.Diagnostic
	for i, doc := range docs {
		out = append(out, Check(i, doc)...)
	}
	return out
}

type walker struct {
	docIndex int
	// visiting holds the containers on the current walk path, keyed by
	// identity. Starlark lists and dicts are pointers, which gives a
	// stable handle; immutable values cannot participate in a cycle.
	visiting map[interface{}]bool
	diags    []diag.Diagnostic
}

func (w *walker) report(path, kind, rule, message string) {
	w.diags = append(w.diags, diag.Diagnostic{
		Document: w.docIndex,
		Path:     path,
		Kind:     kind,
		Rule:     rule,
		Message:  message,
	})
}

func (w *walker) walk(v starlark.Value, path string) {
	switch val := v.(type) {
	case starlark.NoneType:
		w.report(path, "none", diag.RuleStrictNone, "None is not serializable; omit the field instead")

	case starlark.Bool, starlark.String:
		// Always serializable.

	case starlark.Int:
		if _, ok := val.Int64(); !ok {
			w.report(path, "bigint", diag.RuleStrictBigInt, "integer exceeds the 64-bit serializable range")
		}

	case starlark.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			w.report(path, "non-finite-float", diag.RuleStrictNonFinite, "NaN and infinity are not serializable")
		}

	case *starlark.Function:
		w.report(path, "function", diag.RuleStrictFunction, "functions are not serializable")

	case *starlark.Builtin:
		w.report(path, "builtin", diag.RuleStrictBuiltin, "builtin callables are not serializable")

	case *starlark.Set:
		w.report(path, "set", diag.RuleStrictSet, "sets are not serializable; use a list")

	case *starlark.List:
		if w.visiting[val] {
			w.report(path, "cyclic-reference", diag.RuleStrictCycle, "value is reachable through a reference cycle")
			return
		}
		w.visiting[val] = true
		for i := 0; i < val.Len(); i++ {
			w.walk(val.Index(i), fmt.Sprintf("%s[%d]", path, i))
		}
		delete(w.visiting, val)

	case starlark.Tuple:
		// Tuples are immutable and cannot close a cycle themselves, but
		// they can sit on the path of one through a contained list/dict.
		for i, item := range val {
			w.walk(item, fmt.Sprintf("%s[%d]", path, i))
		}

	case *starlark.Dict:
		if w.visiting[val] {
			w.report(path, "cyclic-reference", diag.RuleStrictCycle, "value is reachable through a reference cycle")
			return
		}
		w.visiting[val] = true
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				w.report(path, item[0].Type(), diag.RuleStrictNonStringKey,
					fmt.Sprintf("map key must be a string, got %s", item[0].Type()))
				continue
			}
			w.walk(item[1], childPath(path, string(key)))
		}
		delete(w.visiting, val)

	default:
		w.report(path, v.Type(), diag.RuleStrictOpaque,
			fmt.Sprintf("%s values are not serializable", v.Type()))
	}
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
