package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Field is one quantity-bearing field found in a document: its dot/bracket
// path and the literal value observed there.
type Field struct {
	Path  string
	Value interface{}
}

// CollectQuantityFields gathers the values at every field a schema marks as
// quantity-typed. Pattern segments are separated by "."; a segment may end
// in "[*]" to visit every element of a sequence, and "*" alone matches
// every key of a map. Results are in pattern order, then traversal order.
func CollectQuantityFields(doc map[string]interface{}, patterns []string) []Field {
	var out []Field
	for _, pattern := range patterns {
		collect(doc, parsePattern(pattern), "", &out)
	}
	return out
}

// HeuristicQuantityFields finds quantity-bearing fields when no schema is
// registered for the document's kind: every value under a "limits" or
// "requests" map that itself sits under a "resources" key, matching the
// Kubernetes resource-requirements convention.
func HeuristicQuantityFields(doc map[string]interface{}) []Field {
	var out []Field
	walkHeuristic(doc, "", &out)
	return out
}

type segment struct {
	key      string // "*" means any key
	eachElem bool   // trailing [*]
}

func parsePattern(pattern string) []segment {
	parts := strings.Split(pattern, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		s := segment{key: p}
		if strings.HasSuffix(p, "[*]") {
			s.key = strings.TrimSuffix(p, "[*]")
			s.eachElem = true
		}
		segs = append(segs, s)
	}
	return segs
}

func collect(v interface{}, segs []segment, path string, out *[]Field) {
	if len(segs) == 0 {
		*out = append(*out, Field{Path: path, Value: v})
		return
	}

	node, ok := v.(map[string]interface{})
	if !ok {
		return
	}
	seg := segs[0]

	keys := make([]string, 0, len(node))
	if seg.key == "*" {
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	} else if _, present := node[seg.key]; present {
		keys = append(keys, seg.key)
	}

	for _, k := range keys {
		child := node[k]
		childPath := joinPath(path, k)
		if !seg.eachElem {
			collect(child, segs[1:], childPath, out)
			continue
		}
		list, ok := child.([]interface{})
		if !ok {
			continue
		}
		for i, elem := range list {
			collect(elem, segs[1:], fmt.Sprintf("%s[%d]", childPath, i), out)
		}
	}
}

func walkHeuristic(v interface{}, path string, out *[]Field) {
	switch node := v.(type) {
	case map[string]interface{}:
		if resources, ok := node["resources"].(map[string]interface{}); ok {
			for _, section := range []string{"limits", "requests"} {
				fields, ok := resources[section].(map[string]interface{})
				if !ok {
					continue
				}
				base := joinPath(joinPath(path, "resources"), section)
				keys := make([]string, 0, len(fields))
				for k := range fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					*out = append(*out, Field{Path: joinPath(base, k), Value: fields[k]})
				}
			}
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "resources" {
				continue
			}
			walkHeuristic(node[k], joinPath(path, k), out)
		}
	case []interface{}:
		for i, elem := range node {
			walkHeuristic(elem, fmt.Sprintf("%s[%d]", path, i), out)
		}
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
