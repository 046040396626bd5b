package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.starlark.net/starlark"

	"github.com/kforge-dev/kforge/pkg/resolve"
)

const builderHelpers = `
def config_map(name):
    def render():
        return {
            "apiVersion": "v1",
            "kind": "ConfigMap",
            "metadata": {"name": name},
        }
    return struct(render = render)
`

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runScript(t *testing.T, source string) (*Result, error) {
	t.Helper()
	root := t.TempDir()
	entry := writeScript(t, root, "main.star", source)
	eng := New(Options{ProjectRoot: root, Timeout: 10 * time.Second})
	return eng.Execute(context.Background(), entry)
}

func TestExecuteCaptureExactlyOnce(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		wantDocs  int
		checkFunc func(*testing.T, error)
	}{
		{
			name:     "single builder normalized to one document",
			script:   builderHelpers + `build(config_map("solo"))`,
			wantDocs: 1,
		},
		{
			name:     "list of builders",
			script:   builderHelpers + `build([config_map("a"), config_map("b"), config_map("c")])`,
			wantDocs: 3,
		},
		{
			name:     "empty list is a valid capture",
			script:   builderHelpers + `build([])`,
			wantDocs: 0,
		},
		{
			name:   "zero capture calls",
			script: `x = 1`,
			checkFunc: func(t *testing.T, err error) {
				var notCalled *BuildNotCalledError
				if !errors.As(err, &notCalled) {
					t.Fatalf("expected *BuildNotCalledError, got %v", err)
				}
			},
		},
		{
			name: "two capture calls",
			script: builderHelpers + `
build(config_map("a"))
build(config_map("b"))
`,
			checkFunc: func(t *testing.T, err error) {
				var multi *BuildCalledMultipleTimesError
				if !errors.As(err, &multi) {
					t.Fatalf("expected *BuildCalledMultipleTimesError, got %v", err)
				}
				if multi.Calls != 2 {
					t.Errorf("Calls = %d, want 2", multi.Calls)
				}
			},
		},
		{
			name:   "non-builder argument rejected",
			script: `build({"kind": "ConfigMap"})`,
			checkFunc: func(t *testing.T, err error) {
				var runtime *ScriptRuntimeError
				if !errors.As(err, &runtime) {
					t.Fatalf("expected *ScriptRuntimeError, got %v", err)
				}
			},
		},
		{
			name:   "builder with non-callable render rejected",
			script: `build(struct(render = "not callable"))`,
			checkFunc: func(t *testing.T, err error) {
				var runtime *ScriptRuntimeError
				if !errors.As(err, &runtime) {
					t.Fatalf("expected *ScriptRuntimeError, got %v", err)
				}
			},
		},
		{
			name:   "uncaught script exception",
			script: `fail("boom")`,
			checkFunc: func(t *testing.T, err error) {
				var runtime *ScriptRuntimeError
				if !errors.As(err, &runtime) {
					t.Fatalf("expected *ScriptRuntimeError, got %v", err)
				}
				if runtime.Backtrace == "" {
					t.Error("expected a backtrace on script errors")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := runScript(t, tt.script)
			if tt.checkFunc != nil {
				tt.checkFunc(t, err)
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if len(res.Documents) != tt.wantDocs {
				t.Errorf("got %d documents, want %d", len(res.Documents), tt.wantDocs)
			}
			if res.RunID == "" {
				t.Error("expected a run ID")
			}
		})
	}
}

func TestExecuteRendersInCaptureOrder(t *testing.T) {
	res, err := runScript(t, builderHelpers+`build([config_map("first"), config_map("second")])`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	names := make([]string, 0, len(res.Documents))
	for _, doc := range res.Documents {
		d, ok := doc.(*starlark.Dict)
		if !ok {
			t.Fatalf("expected rendered dict, got %T", doc)
		}
		md, _, _ := d.Get(starlark.String("metadata"))
		name, _, _ := md.(*starlark.Dict).Get(starlark.String("name"))
		names = append(names, string(name.(starlark.String)))
	}
	if names[0] != "first" || names[1] != "second" {
		t.Errorf("documents out of capture order: %v", names)
	}
}

func TestExecuteImportErrorsStayTyped(t *testing.T) {
	root := t.TempDir()
	entry := writeScript(t, root, "main.star", `load("lodash", "x")`)

	eng := New(Options{ProjectRoot: root})
	_, err := eng.Execute(context.Background(), entry)
	if !errors.Is(err, resolve.ErrUnsupportedSpecifier) {
		t.Fatalf("expected ErrUnsupportedSpecifier through the eval wrapper, got %v", err)
	}
}

func TestExecuteVirtualModules(t *testing.T) {
	registry := resolve.NewRegistry()
	registry.Register("kubernetes", "core/v1", `
def config_map(name):
    def render():
        return {"apiVersion": "v1", "kind": "ConfigMap", "metadata": {"name": name}}
    return struct(render = render)
`)

	root := t.TempDir()
	entry := writeScript(t, root, "main.star", `
load("kubernetes/core/v1", "config_map")
build(config_map("from-virtual"))
`)

	eng := New(Options{ProjectRoot: root, Registry: registry})
	res, err := eng.Execute(context.Background(), entry)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(res.Documents))
	}
}

func TestExecuteIsolatedPerInvocation(t *testing.T) {
	root := t.TempDir()
	entry := writeScript(t, root, "main.star", builderHelpers+`build(config_map("x"))`)

	eng := New(Options{ProjectRoot: root})
	first, err := eng.Execute(context.Background(), entry)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := eng.Execute(context.Background(), entry)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if first.RunID == second.RunID {
		t.Error("expected distinct run IDs per invocation")
	}
	if len(first.Documents) != len(second.Documents) {
		t.Errorf("invocations diverged: %d vs %d documents",
			len(first.Documents), len(second.Documents))
	}
}

func TestExecuteTimeout(t *testing.T) {
	root := t.TempDir()
	entry := writeScript(t, root, "main.star", `
def spin():
    total = 0
    for i in range(1 << 30):
        total += i
    return total

result = spin()
`)

	eng := New(Options{ProjectRoot: root, Timeout: 50 * time.Millisecond})
	_, err := eng.Execute(context.Background(), entry)
	if err == nil {
		t.Fatal("expected the runaway script to be cancelled")
	}
}

func TestToGoValue(t *testing.T) {
	inner := starlark.NewDict(1)
	_ = inner.SetKey(starlark.String("replicas"), starlark.MakeInt(3))
	doc := starlark.NewDict(2)
	_ = doc.SetKey(starlark.String("kind"), starlark.String("Deployment"))
	_ = doc.SetKey(starlark.String("spec"), inner)

	v, err := ToGoValue(doc)
	if err != nil {
		t.Fatalf("ToGoValue: %v", err)
	}
	tree, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	if tree["kind"] != "Deployment" {
		t.Errorf("kind = %v", tree["kind"])
	}
	spec := tree["spec"].(map[string]interface{})
	if spec["replicas"] != int64(3) {
		t.Errorf("replicas = %v (%T)", spec["replicas"], spec["replicas"])
	}
}
