package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

// SegmentFile is the export/import document.
type SegmentFile struct {
	Segments []segment.CreateParams `json:"segments"`
}

// ToSegmentFile keeps only the user-editable parts of segs. System segments
// are skipped since they are seeded by the server.
func ToSegmentFile(segs []store.Segment) SegmentFile {
	out := SegmentFile{Segments: make([]segment.CreateParams, 0, len(segs))}
	for _, s := range segs {
		if s.IsSystem {
			continue
		}
		out.Segments = append(out.Segments, segment.CreateParams{
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			Filter:      s.Filter,
		})
	}
	return out
}

// WriteSegmentFile writes f as YAML or JSON depending on the extension.
func WriteSegmentFile(path string, f SegmentFile) error {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}
	if isYAML(path) {
		var plain any
		if err := yaml.Unmarshal(raw, &plain); err != nil {
			return err
		}
		if raw, err = yaml.Marshal(plain); err != nil {
			return fmt.Errorf("failed to marshal segments: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadSegmentFile parses a YAML or JSON export. YAML is normalized through
// JSON so condition values decode the same way in both formats.
func ReadSegmentFile(path string) (SegmentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SegmentFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var plain any
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return SegmentFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return SegmentFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var f SegmentFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return SegmentFile{}, fmt.Errorf("failed to decode segments in %s: %w", path, err)
	}
	return f, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
