// Package seed loads system segment definitions and applies them to the registry.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
)

//go:embed defaults.yaml
var defaultDefinitions []byte

type definition struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags"`
	Filter      map[string]any `yaml:"filter"`
}

// Load reads definitions from path, or the built-in defaults when path is empty.
func Load(path string) ([]segment.SystemDefinition, error) {
	data := defaultDefinitions
	if path != "" {
		var err error
		data, err = os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read system segments: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes a YAML list of system segment definitions. Filters use the
// same field names as the JSON API.
func Parse(data []byte) ([]segment.SystemDefinition, error) {
	var raw []definition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse system segments: %w", err)
	}

	defs := make([]segment.SystemDefinition, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, r := range raw {
		if r.ID == "" {
			return nil, fmt.Errorf("system segment[%d]: id is required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("system segment %q is defined twice", r.ID)
		}
		seen[r.ID] = struct{}{}

		def := segment.SystemDefinition{ID: r.ID, Name: r.Name, Description: r.Description, Tags: r.Tags}
		blob, err := json.Marshal(r.Filter)
		if err != nil {
			return nil, fmt.Errorf("system segment %q: %w", r.ID, err)
		}
		if err := json.Unmarshal(blob, &def.Filter); err != nil {
			return nil, fmt.Errorf("system segment %q: %w", r.ID, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Apply ensures every definition exists in the registry. All definitions are
// attempted; failures are joined.
func Apply(ctx context.Context, reg *segment.Registry, defs []segment.SystemDefinition, log zerolog.Logger) error {
	var errs []error
	for _, def := range defs {
		seg, err := reg.EnsureSystemSegment(ctx, def)
		if err != nil {
			log.Error().Err(err).Str("segment_id", def.ID).Msg("failed to seed system segment")
			errs = append(errs, fmt.Errorf("seed %s: %w", def.ID, err))
			continue
		}
		log.Debug().Str("segment_id", seg.ID).Int("client_count", seg.ClientCount).Msg("system segment ready")
	}
	return errors.Join(errs...)
}
