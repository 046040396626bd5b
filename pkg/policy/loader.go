package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDir registers every .rego file under dir as an enabled error-severity
// policy named after its relative path. Files are loaded in sorted order so
// registration is deterministic.
func (e *Engine) LoadDir(ctx context.Context, dir string) (int, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".rego") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk policy dir %s: %w", dir, err)
	}
	sort.Strings(files)

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read policy %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".rego")
		p := Policy{
			Name:     name,
			Rego:     string(data),
			Severity: SeverityError,
			Enabled:  true,
		}
		if err := e.Add(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}
