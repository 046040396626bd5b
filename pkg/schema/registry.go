// Package schema validates documents against the CUE schema registered for
// their declared kind and apiVersion. The registry is populated by an
// external generator or cache before the pipeline runs and is read-only for
// the duration of one invocation.
package schema

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Key identifies a schema by the document's declared type fields.
type Key struct {
	APIVersion string
	Kind       string
}

func (k Key) String() string {
	return k.APIVersion + "/" + k.Kind
}

// Entry is one registered schema plus the field paths the schema marks as
// quantity-typed (checked by the quantity validator, not here).
type Entry struct {
	Key           Key
	schema        cue.Value
	QuantityPaths []string
}

// Registry maps kind+apiVersion to a compiled CUE schema.
type Registry struct {
	ctx     *cue.Context
	mu      sync.RWMutex
	entries map[Key]*Entry
}

// NewRegistry creates an empty registry with its own CUE context.
func NewRegistry() *Registry {
	return &Registry{
		ctx:     cuecontext.New(),
		entries: make(map[Key]*Entry),
	}
}

// Register compiles cueSource and stores it under apiVersion/kind.
// quantityPaths name the quantity-typed fields using "." segments, "[*]"
// for every element and "*" for every key.
func (r *Registry) Register(apiVersion, kind, cueSource string, quantityPaths ...string) error {
	key := Key{APIVersion: apiVersion, Kind: kind}
	val := r.ctx.CompileString(cueSource, cue.Filename(key.String()+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema %s: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = &Entry{Key: key, schema: val, QuantityPaths: quantityPaths}
	return nil
}

// Lookup returns the entry for apiVersion/kind.
func (r *Registry) Lookup(apiVersion, kind string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{APIVersion: apiVersion, Kind: kind}]
	return e, ok
}

// Keys lists the registered schema keys. Diagnostic output only.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}
