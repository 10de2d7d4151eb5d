package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Schema is the feature-name sidecar written next to every model. Features
// fixes both the identity and the order of the model's input columns.
type Schema struct {
	App        string              `json:"app"`
	Target     string              `json:"target"`
	ModelType  string              `json:"model_type"`
	Features   []string            `json:"features"`
	Categories map[string][]string `json:"categories,omitempty"`
	Metrics    map[string]float64  `json:"metrics,omitempty"`
	TrainedAt  time.Time           `json:"trained_at"`
}

// Validate checks that the feature list is non-empty and free of duplicates.
func (s *Schema) Validate() error {
	if len(s.Features) == 0 {
		return errors.New("schema has no features")
	}
	seen := make(map[string]bool, len(s.Features))
	for _, name := range s.Features {
		if name == "" {
			return errors.New("schema has an empty feature name")
		}
		if seen[name] {
			return fmt.Errorf("schema lists %q twice", name)
		}
		seen[name] = true
	}
	return nil
}

// Levels returns the known levels of a categorical field, reference included
// when the trainer recorded it.
func (s *Schema) Levels(field string) []string {
	return append([]string(nil), s.Categories[field]...)
}

func SaveSchema(path string, schema *Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, payload, 0o644)
}

func LoadSchema(path string) (*Schema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema Schema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", path, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return &schema, nil
}
