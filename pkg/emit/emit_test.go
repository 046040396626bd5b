package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func testDocs() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"apiVersion": "v1",
			"kind":       "ConfigMap",
			"metadata":   map[string]interface{}{"name": "app-config"},
			"data":       map[string]interface{}{"key": "value"},
		},
		{
			"apiVersion": "v1",
			"kind":       "Service",
			"metadata":   map[string]interface{}{"name": "web"},
			"spec": map[string]interface{}{
				"ports": []interface{}{
					map[string]interface{}{"port": int64(80)},
				},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "yaml", want: FormatYAML},
		{in: "yml", want: FormatYAML},
		{in: "json", want: FormatJSON},
		{in: "xml", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestWriteYAMLStream(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testDocs(), FormatYAML); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := buf.String()
	parts := strings.Split(out, "---\n")
	if len(parts) != 2 {
		t.Fatalf("expected 2 YAML documents, got %d:\n%s", len(parts), out)
	}

	// Each part re-parses to the original tree.
	var first map[string]interface{}
	if err := yaml.Unmarshal([]byte(parts[0]), &first); err != nil {
		t.Fatalf("unmarshal first document: %v", err)
	}
	if first["kind"] != "ConfigMap" {
		t.Errorf("first kind = %v, want ConfigMap", first["kind"])
	}

	var second map[string]interface{}
	if err := yaml.Unmarshal([]byte(parts[1]), &second); err != nil {
		t.Fatalf("unmarshal second document: %v", err)
	}
	if second["kind"] != "Service" {
		t.Errorf("second kind = %v, want Service (order must be preserved)", second["kind"])
	}
}

func TestWriteJSONArray(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testDocs(), FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var parsed []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("got %d documents, want 2", len(parsed))
	}
	if parsed[0]["kind"] != "ConfigMap" || parsed[1]["kind"] != "Service" {
		t.Errorf("document order not preserved: %v, %v", parsed[0]["kind"], parsed[1]["kind"])
	}
}

func TestWriteEmptySet(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, FormatYAML); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty YAML output, got %q", buf.String())
	}

	buf.Reset()
	if err := Write(&buf, nil, FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "null" && strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("unexpected JSON for empty set: %q", buf.String())
	}
}
