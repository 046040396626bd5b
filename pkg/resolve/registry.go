package resolve

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds virtual-namespace modules: generated Kubernetes type
// modules, chart value modules and installed plugin modules. It is populated
// before the execution engine starts and is read-only for the duration of
// one invocation.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]string // namespace -> subpath -> source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{namespaces: make(map[string]map[string]string)}
}

// Register adds or replaces one module's source text under a namespace.
func (r *Registry) Register(namespace, subpath, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.namespaces[namespace]
	if !ok {
		ns = make(map[string]string)
		r.namespaces[namespace] = ns
	}
	ns[subpath] = source
}

// RegisterNamespace installs a whole module map under a namespace, the shape
// a plugin or type generator hands over.
func (r *Registry) RegisterNamespace(namespace string, modules map[string]string) {
	for subpath, source := range modules {
		r.Register(namespace, subpath, source)
	}
}

// Lookup returns the source text registered for namespace/subpath.
func (r *Registry) Lookup(namespace, subpath string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[namespace]
	if !ok {
		return "", false
	}
	source, ok := ns[subpath]
	return source, ok
}

// Namespaces lists the registered namespaces, sorted. Diagnostic output only.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.namespaces))
	for ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// syntheticPath is the in-memory path used for a virtual module in
// diagnostics and cycle detection. It can never collide with a canonical
// filesystem path because of the scheme prefix.
func syntheticPath(namespace, subpath string) string {
	return fmt.Sprintf("virtual://%s/%s", namespace, subpath)
}
