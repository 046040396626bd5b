package schema

// Builtin schemas for the core workload kinds. The external schema
// generator replaces or extends these; they exist so a bare checkout can
// validate the common Deployment/Service scripts without network access.

const deploymentSchema = `
apiVersion: "apps/v1"
kind:       "Deployment"
metadata: {
	name:        string & =~"^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
	namespace?:  string & =~"^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
	labels?: {[string]: string}
	annotations?: {[string]: string}
}
spec: {
	replicas?: int & >=0 & <=10000
	selector: matchLabels: {[string]: string}
	strategy?: type: "Recreate" | "RollingUpdate"
	template: {
		metadata: labels: {[string]: string}
		spec: {
			containers: [...{
				name:  string & =~"^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
				image: string
				imagePullPolicy?: "Always" | "IfNotPresent" | "Never"
				command?: [...string]
				args?: [...string]
				ports?: [...{
					containerPort: int & >0 & <65536
					name?:         string
					protocol?:     "TCP" | "UDP" | "SCTP"
				}]
				env?: [...{
					name:   string
					value?: string
				}]
				resources?: {
					limits?: {[string]: string | int | float}
					requests?: {[string]: string | int | float}
				}
			}]
			serviceAccountName?: string
		}
	}
}
`

const serviceSchema = `
apiVersion: "v1"
kind:       "Service"
metadata: {
	name:        string & =~"^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
	namespace?:  string & =~"^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
	labels?: {[string]: string}
	annotations?: {[string]: string}
}
spec: {
	type?: "ClusterIP" | "NodePort" | "LoadBalancer" | "ExternalName"
	selector?: {[string]: string}
	ports?: [...{
		port:        int & >0 & <65536
		targetPort?: int | string
		nodePort?:   int & >=30000 & <=32767
		name?:       string
		protocol?:   "TCP" | "UDP" | "SCTP"
	}]
}
`

const configMapSchema = `
apiVersion: "v1"
kind:       "ConfigMap"
metadata: {
	name:       string & =~"^[a-z0-9]([-a-z0-9.]*[a-z0-9])?$"
	namespace?: string
	labels?: {[string]: string}
}
data?: {[string]: string}
immutable?: bool
`

// DeploymentQuantityPaths are the quantity-typed field paths of the
// builtin Deployment schema.
var DeploymentQuantityPaths = []string{
	"spec.template.spec.containers[*].resources.limits.*",
	"spec.template.spec.containers[*].resources.requests.*",
}

// DefaultRegistry returns a registry preloaded with the builtin schemas.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.Register("apps/v1", "Deployment", deploymentSchema, DeploymentQuantityPaths...); err != nil {
		return nil, err
	}
	if err := r.Register("v1", "Service", serviceSchema); err != nil {
		return nil, err
	}
	if err := r.Register("v1", "ConfigMap", configMapSchema); err != nil {
		return nil, err
	}
	return r, nil
}
