package describe

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fallbacks.yaml
var defaultFallbacks []byte

// Table is the deterministic fallback list indexed by level.
type Table []string

type tableFile struct {
	Fallbacks []string `yaml:"fallbacks"`
}

// DefaultTable returns the built-in table.
func DefaultTable() Table {
	t, err := ParseTable(defaultFallbacks)
	if err != nil {
		panic(fmt.Sprintf("embedded fallback table: %v", err))
	}
	return t
}

// LoadTable reads a table from a YAML file. An empty path returns the
// built-in table.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback table: %w", err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("fallback table %s: %w", path, err)
	}
	return t, nil
}

// ParseTable decodes a YAML document with a top-level "fallbacks" list.
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(f.Fallbacks) == 0 {
		return nil, fmt.Errorf("no fallback entries")
	}
	t := make(Table, 0, len(f.Fallbacks))
	for i, s := range f.Fallbacks {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("fallback entry %d is empty", i)
		}
		t = append(t, s)
	}
	return t, nil
}

// At returns the entry for level, clamped to the last entry.
func (t Table) At(level int) string {
	if len(t) == 0 {
		return ""
	}
	if level < 0 {
		level = 0
	}
	if level > len(t)-1 {
		level = len(t) - 1
	}
	return t[level]
}
