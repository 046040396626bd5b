package schema

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/kforge-dev/kforge/pkg/diag"
)

// DeclaredType extracts the schema lookup key from a document's declared
// type fields.
func DeclaredType(doc map[string]interface{}) (apiVersion, kind string, ok bool) {
	apiVersion, _ = doc["apiVersion"].(string)
	kind, _ = doc["kind"].(string)
	return apiVersion, kind, apiVersion != "" && kind != ""
}

// Check validates one document against the schema registered for its
// declared kind/version. An unregistered kind is a schema.not-found
// diagnostic at the document root, never a silent skip. Validation is
// collect-all: every violation in the document is reported in one pass.
func (r *Registry) Check(docIndex int, doc map[string]interface{}) []diag.Diagnostic {
	apiVersion, kind, ok := DeclaredType(doc)
	if !ok {
		return []diag.Diagnostic{{
			Document: docIndex,
			Kind:     kindOf(doc),
			Rule:     diag.RuleSchemaNotFound,
			Message:  "document does not declare apiVersion and kind",
		}}
	}

	entry, found := r.Lookup(apiVersion, kind)
	if !found {
		return []diag.Diagnostic{{
			Document: docIndex,
			Kind:     kindOf(doc),
			Rule:     diag.RuleSchemaNotFound,
			Message:  fmt.Sprintf("no schema registered for %s/%s", apiVersion, kind),
		}}
	}

	r.mu.RLock()
	schemaVal := entry.schema
	r.mu.RUnlock()

	docVal := r.ctx.Encode(doc)
	if err := docVal.Err(); err != nil {
		return []diag.Diagnostic{{
			Document: docIndex,
			Kind:     kindOf(doc),
			Rule:     diag.RuleSchemaInvalid,
			Message:  fmt.Sprintf("document is not encodable: %v", err),
		}}
	}

	unified := schemaVal.Unify(docVal)
	err := unified.Validate(cue.Concrete(true), cue.All())
	if err == nil {
		return nil
	}

	var diags []diag.Diagnostic
	for _, e := range cueerrors.Errors(err) {
		path := cuePathString(e.Path())
		diags = append(diags, diag.Diagnostic{
			Document: docIndex,
			Path:     path,
			Kind:     kindOf(valueAt(doc, e.Path())),
			Rule:     diag.RuleSchemaInvalid,
			Message:  e.Error(),
		})
	}
	return diags
}

// cuePathString converts a CUE error path to the dot/bracket notation the
// rest of the pipeline uses.
func cuePathString(segments []string) string {
	var b strings.Builder
	for _, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(seg)
	}
	return b.String()
}

// valueAt walks doc along a CUE error path; a miss means the violation is
// about an absent field.
func valueAt(doc interface{}, segments []string) interface{} {
	cur := doc
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return missing{}
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return missing{}
			}
			cur = node[idx]
		default:
			return missing{}
		}
	}
	return cur
}

type missing struct{}

// kindOf labels a Go value with the coarse category used in diagnostics.
func kindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case missing:
		return "absent"
	case bool:
		return "bool"
	case int, int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case map[string]interface{}:
		return "map"
	case []interface{}:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
