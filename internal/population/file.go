package population

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
)

// LoadFile reads a list of client records from a YAML or JSON file.
// JSON is a subset of YAML, so both go through the same decoder.
func LoadFile(path string) ([]engine.Record, error) {
	if path == "" {
		return nil, fmt.Errorf("population file path is empty")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read population file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON list of records.
func Parse(data []byte) ([]engine.Record, error) {
	if strings.TrimSpace(string(data)) == "" {
		return []engine.Record{}, nil
	}

	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse population: %w", err)
	}

	records := make([]engine.Record, 0, len(raw))
	for i, r := range raw {
		rec := make(engine.Record, len(r))
		for k, v := range r {
			rec[k] = normalize(v)
		}
		if rec.ID() == "" {
			return nil, fmt.Errorf("record[%d] has no %q attribute", i, engine.RecordIDField)
		}
		records = append(records, rec)
	}
	return records, nil
}

// normalize narrows YAML-decoded values onto the shapes the evaluator accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case uint64:
		return float64(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return t
			}
			out = append(out, s)
		}
		return out
	default:
		return v
	}
}
