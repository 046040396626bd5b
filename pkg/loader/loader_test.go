package loader

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.starlark.net/starlark"

	"github.com/kforge-dev/kforge/pkg/resolve"
)

func newTestLoader(t *testing.T, root string) *Loader {
	t.Helper()
	resolver, err := resolve.NewResolver(root, nil, false)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return New(resolver, nil, starlark.StringDict{})
}

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

func TestLoaderLoadEntry(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "lib.star", `greeting = "hello"`)
	entry := writeScript(t, root, "main.star", `
load("./lib.star", "greeting")
message = greeting + " world"
`)

	l := newTestLoader(t, root)
	thread := &starlark.Thread{Name: "test", Load: l.Load}

	globals, err := l.LoadEntry(thread, entry)
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	got, ok := globals["message"].(starlark.String)
	if !ok || string(got) != "hello world" {
		t.Errorf("message = %v, want \"hello world\"", globals["message"])
	}
}

func TestLoaderMemoization(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "shared.star", `values = [1, 2, 3]`)
	entry := writeScript(t, root, "main.star", `
load("./shared.star", a = "values")
load("./b.star", b = "values")
same = a == b
`)
	writeScript(t, root, "b.star", `
load("./shared.star", "values")
`)

	l := newTestLoader(t, root)
	thread := &starlark.Thread{Name: "test", Load: l.Load}

	if _, err := l.LoadEntry(thread, entry); err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}

	// shared.star initialized once; the second import is served from the
	// cache with the identical globals.
	sharedPath := filepath.Join(root, "shared.star")
	first, err := l.Load(thread, "./shared.star")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := l.Load(thread, "./shared.star")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reflect.ValueOf(first).Pointer() != reflect.ValueOf(second).Pointer() {
		t.Error("expected repeated loads to return the memoized globals")
	}
	if e, ok := l.cache[sharedPath]; !ok || e == nil {
		t.Error("expected shared.star to be cached as a finished entry")
	}
}

func TestLoaderCircularImport(t *testing.T) {
	root := t.TempDir()
	entry := writeScript(t, root, "a.star", `
load("./b.star", "b")
a = b
`)
	writeScript(t, root, "b.star", `
load("./a.star", "a")
b = a
`)

	l := newTestLoader(t, root)
	thread := &starlark.Thread{Name: "test", Load: l.Load}

	_, err := l.LoadEntry(thread, entry)
	var cycErr *CircularImportError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected *CircularImportError, got %v", err)
	}

	aPath := filepath.Join(root, "a.star")
	bPath := filepath.Join(root, "b.star")
	want := []string{aPath, bPath, aPath}
	if !reflect.DeepEqual(cycErr.Cycle, want) {
		t.Errorf("cycle = %v, want %v", cycErr.Cycle, want)
	}
}

func TestLoaderSelfImport(t *testing.T) {
	root := t.TempDir()
	entry := writeScript(t, root, "self.star", `
load("./self.star", "x")
x = 1
`)

	l := newTestLoader(t, root)
	thread := &starlark.Thread{Name: "test", Load: l.Load}

	_, err := l.LoadEntry(thread, entry)
	var cycErr *CircularImportError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected *CircularImportError, got %v", err)
	}
	if len(cycErr.Cycle) != 2 {
		t.Errorf("self-import cycle = %v, want the module twice", cycErr.Cycle)
	}
}

func TestLoaderCompileError(t *testing.T) {
	root := t.TempDir()
	entry := writeScript(t, root, "broken.star", `def incomplete(`)

	l := newTestLoader(t, root)
	thread := &starlark.Thread{Name: "test", Load: l.Load}

	_, err := l.LoadEntry(thread, entry)
	var cmpErr *CompileError
	if !errors.As(err, &cmpErr) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if cmpErr.Path != entry {
		t.Errorf("expected path %s in compile error, got %s", entry, cmpErr.Path)
	}
	if cmpErr.Line == 0 {
		t.Error("expected a source line in the compile error")
	}
}

func TestLoaderCachesFailures(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "bad.star", `fail("always")`)
	entry := writeScript(t, root, "main.star", `
load("./bad.star", "x")
`)

	l := newTestLoader(t, root)
	thread := &starlark.Thread{Name: "test", Load: l.Load}

	if _, err := l.LoadEntry(thread, entry); err == nil {
		t.Fatal("expected failure from bad module")
	}

	// The failed module is cached with its error; a re-import must not
	// re-execute it.
	first, firstErr := l.Load(thread, "./bad.star")
	second, secondErr := l.Load(thread, "./bad.star")
	if first != nil || second != nil {
		t.Error("expected nil globals for a failed module")
	}
	if firstErr == nil || firstErr != secondErr {
		t.Errorf("expected the memoized error on re-import, got %v then %v", firstErr, secondErr)
	}
}
