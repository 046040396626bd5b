package contract

import (
	"testing"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/kforge-dev/kforge/pkg/diag"
)

func dict(t *testing.T, pairs ...starlark.Value) *starlark.Dict {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatal("dict needs key/value pairs")
	}
	d := starlark.NewDict(len(pairs) / 2)
	for i := 0; i < len(pairs); i += 2 {
		if err := d.SetKey(pairs[i], pairs[i+1]); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func rulesOf(diags []diag.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Rule
	}
	return out
}

func TestCheckViolations(t *testing.T) {
	tests := []struct {
		name     string
		doc      func(*testing.T) starlark.Value
		wantRule string
		wantPath string
	}{
		{
			name: "none value",
			doc: func(t *testing.T) starlark.Value {
				return dict(t, starlark.String("field"), starlark.None)
			},
			wantRule: diag.RuleStrictNone,
			wantPath: "field",
		},
		{
			name: "function value",
			doc: func(t *testing.T) starlark.Value {
				fn := evalExpr(t, "lambda: 1")
				return dict(t, starlark.String("callback"), fn)
			},
			wantRule: diag.RuleStrictFunction,
			wantPath: "callback",
		},
		{
			name: "builtin value",
			doc: func(t *testing.T) starlark.Value {
				return dict(t, starlark.String("fn"), starlark.Universe["len"])
			},
			wantRule: diag.RuleStrictBuiltin,
			wantPath: "fn",
		},
		{
			name: "big integer",
			doc: func(t *testing.T) starlark.Value {
				big := evalExpr(t, "1 << 70")
				return dict(t, starlark.String("count"), big)
			},
			wantRule: diag.RuleStrictBigInt,
			wantPath: "count",
		},
		{
			name: "non-finite float",
			doc: func(t *testing.T) starlark.Value {
				nan := evalExpr(t, `float("nan")`)
				return dict(t, starlark.String("ratio"), nan)
			},
			wantRule: diag.RuleStrictNonFinite,
			wantPath: "ratio",
		},
		{
			name: "set value",
			doc: func(t *testing.T) starlark.Value {
				return dict(t, starlark.String("tags"), evalExpr(t, `set([1, 2])`))
			},
			wantRule: diag.RuleStrictSet,
			wantPath: "tags",
		},
		{
			name: "non-string map key",
			doc: func(t *testing.T) starlark.Value {
				return dict(t, starlark.MakeInt(1), starlark.String("v"))
			},
			wantRule: diag.RuleStrictNonStringKey,
			wantPath: "",
		},
		{
			name: "violation nested in list",
			doc: func(t *testing.T) starlark.Value {
				inner := starlark.NewList([]starlark.Value{starlark.None})
				return dict(t, starlark.String("items"), inner)
			},
			wantRule: diag.RuleStrictNone,
			wantPath: "items[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Check(0, tt.doc(t))
			if len(diags) != 1 {
				t.Fatalf("got %d diagnostics %v, want 1", len(diags), rulesOf(diags))
			}
			if diags[0].Rule != tt.wantRule {
				t.Errorf("rule = %s, want %s", diags[0].Rule, tt.wantRule)
			}
			if diags[0].Path != tt.wantPath {
				t.Errorf("path = %q, want %q", diags[0].Path, tt.wantPath)
			}
		})
	}
}

func TestCheckValidDocument(t *testing.T) {
	doc := dict(t,
		starlark.String("apiVersion"), starlark.String("v1"),
		starlark.String("kind"), starlark.String("ConfigMap"),
		starlark.String("metadata"), dict(t,
			starlark.String("name"), starlark.String("app-config"),
		),
		starlark.String("replicas"), starlark.MakeInt(3),
		starlark.String("ratio"), starlark.Float(0.5),
		starlark.String("enabled"), starlark.Bool(true),
		starlark.String("ports"), starlark.NewList([]starlark.Value{
			starlark.MakeInt(80), starlark.MakeInt(443),
		}),
	)

	if diags := Check(0, doc); len(diags) != 0 {
		t.Errorf("expected clean document, got %v", diags)
	}
}

func TestCheckCollectsAllViolations(t *testing.T) {
	doc := dict(t,
		starlark.String("a"), starlark.None,
		starlark.String("b"), evalExpr(t, `set([1])`),
		starlark.String("c"), dict(t, starlark.String("nested"), starlark.None),
	)

	diags := Check(0, doc)
	if len(diags) != 3 {
		t.Fatalf("got %d diagnostics %v, want 3", len(diags), rulesOf(diags))
	}
	// Depth-first traversal order over insertion order.
	if diags[0].Path != "a" || diags[1].Path != "b" || diags[2].Path != "c.nested" {
		t.Errorf("unexpected paths: %s, %s, %s", diags[0].Path, diags[1].Path, diags[2].Path)
	}
}

func TestCheckSelfReferencingMap(t *testing.T) {
	doc := dict(t, starlark.String("name"), starlark.String("x"))
	if err := doc.SetKey(starlark.String("self"), doc); err != nil {
		t.Fatal(err)
	}

	diags := Check(0, doc)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics %v, want exactly one cycle report", len(diags), rulesOf(diags))
	}
	if diags[0].Rule != diag.RuleStrictCycle {
		t.Errorf("rule = %s, want %s", diags[0].Rule, diag.RuleStrictCycle)
	}
	if diags[0].Path != "self" {
		t.Errorf("path = %q, want \"self\"", diags[0].Path)
	}
}

func TestCheckCycleThroughList(t *testing.T) {
	list := starlark.NewList(nil)
	doc := dict(t, starlark.String("items"), list)
	if err := list.Append(doc); err != nil {
		t.Fatal(err)
	}

	diags := Check(0, doc)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics %v, want 1", len(diags), rulesOf(diags))
	}
	if diags[0].Rule != diag.RuleStrictCycle {
		t.Errorf("rule = %s, want %s", diags[0].Rule, diag.RuleStrictCycle)
	}
	if diags[0].Path != "items[0]" {
		t.Errorf("path = %q, want \"items[0]\"", diags[0].Path)
	}
}

func TestCheckSharedValueIsNotACycle(t *testing.T) {
	// The same dict referenced from two sibling fields is a DAG, not a
	// cycle, and must pass.
	shared := dict(t, starlark.String("cpu"), starlark.String("250m"))
	doc := dict(t,
		starlark.String("limits"), shared,
		starlark.String("requests"), shared,
	)

	if diags := Check(0, doc); len(diags) != 0 {
		t.Errorf("expected shared subtree to pass, got %v", diags)
	}
}

func TestCheckAllPreservesDocumentIndices(t *testing.T) {
	clean := dict(t, starlark.String("ok"), starlark.String("yes"))
	bad := dict(t, starlark.String("field"), starlark.None)

	diags := CheckAll([]starlark.Value{clean, bad})
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Document != 1 {
		t.Errorf("document index = %d, want 1", diags[0].Document)
	}
}

// evalExpr evaluates one Starlark expression in an empty environment.
func evalExpr(t *testing.T, expr string) starlark.Value {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	v, err := starlark.EvalOptions(&syntax.FileOptions{Set: true}, thread, "test.star", expr, nil)
	if err != nil {
		t.Fatalf("eval %q: %v", expr, err)
	}
	return v
}
