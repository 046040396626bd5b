// Package emit serializes a validated document set to YAML or JSON. It only
// ever sees value trees that passed the strict serialization contract; the
// pipeline never hands it anything else.
package emit

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format selects the output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat maps a CLI flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want yaml or json)", s)
	}
}

// Write serializes docs to w: a "---"-separated stream for YAML, a single
// array for JSON. Document order is preserved; emission is all-or-nothing
// at the pipeline level, so Write is only reached with a fully valid set.
func Write(w io.Writer, docs []map[string]interface{}, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case FormatYAML:
		for i, doc := range docs {
			if i > 0 {
				if _, err := io.WriteString(w, "---\n"); err != nil {
					return err
				}
			}
			data, err := yaml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("marshal document %d: %w", i, err)
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
