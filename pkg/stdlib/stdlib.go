// Package stdlib bundles the builtin virtual modules: the kforge helper
// namespace and the generated-style Kubernetes type modules. The external
// type generator and installed plugins register additional namespaces on
// top of these before the engine starts.
package stdlib

import "github.com/kforge-dev/kforge/pkg/resolve"

const metadataModule = `
def metadata(name, namespace = None, labels = None, annotations = None):
    md = {"name": name}
    if namespace != None:
        md["namespace"] = namespace
    if labels != None:
        md["labels"] = labels
    if annotations != None:
        md["annotations"] = annotations
    return md
`

const coreV1Module = `
def container(name, image, ports = None, env = None, resources = None, command = None, args = None):
    c = {"name": name, "image": image}
    if ports != None:
        c["ports"] = ports
    if env != None:
        c["env"] = env
    if resources != None:
        c["resources"] = resources
    if command != None:
        c["command"] = command
    if args != None:
        c["args"] = args
    return c

def port(container_port, name = None, protocol = None):
    p = {"containerPort": container_port}
    if name != None:
        p["name"] = name
    if protocol != None:
        p["protocol"] = protocol
    return p

def cpu(amount):
    return {"cpu": amount}

def memory(amount):
    return {"memory": amount}

def resources(limits = None, requests = None):
    def merged(entries):
        out = {}
        for entry in entries:
            out.update(entry)
        return out

    r = {}
    if limits != None:
        r["limits"] = merged(limits)
    if requests != None:
        r["requests"] = merged(requests)
    return r

def service(metadata, selector = None, ports = None, type = None):
    spec = {}
    if selector != None:
        spec["selector"] = selector
    if ports != None:
        spec["ports"] = ports
    if type != None:
        spec["type"] = type

    def render():
        return {
            "apiVersion": "v1",
            "kind": "Service",
            "metadata": metadata,
            "spec": spec,
        }

    return struct(render = render, kind = "Service")

def config_map(metadata, data = None, immutable = None):
    def render():
        doc = {
            "apiVersion": "v1",
            "kind": "ConfigMap",
            "metadata": metadata,
        }
        if data != None:
            doc["data"] = data
        if immutable != None:
            doc["immutable"] = immutable
        return doc

    return struct(render = render, kind = "ConfigMap")
`

const appsV1Module = `
def deployment(metadata, containers, replicas = None, labels = None, strategy = None):
    match = labels if labels != None else {"app": metadata["name"]}
    spec = {
        "selector": {"matchLabels": match},
        "template": {
            "metadata": {"labels": match},
            "spec": {"containers": containers},
        },
    }
    if replicas != None:
        spec["replicas"] = replicas
    if strategy != None:
        spec["strategy"] = {"type": strategy}

    def render():
        return {
            "apiVersion": "apps/v1",
            "kind": "Deployment",
            "metadata": metadata,
            "spec": spec,
        }

    return struct(render = render, kind = "Deployment")
`

// Register installs the builtin namespaces into a virtual-module registry.
func Register(r *resolve.Registry) {
	r.Register(resolve.BuiltinNamespace, "metadata", metadataModule)
	r.Register("kubernetes", "core/v1", coreV1Module)
	r.Register("kubernetes", "apps/v1", appsV1Module)
}

// DefaultRegistry returns a registry with just the builtin namespaces.
func DefaultRegistry() *resolve.Registry {
	r := resolve.NewRegistry()
	Register(r)
	return r
}
