package validation

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Suite is a named collection of script constraints, typically exported from
// the constraint editor as YAML.
type Suite struct {
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description,omitempty"`
	Constraints []schema.ScriptConstraint `yaml:"constraints"`
}

// LoadSuite reads a constraint suite from a YAML file. Constraints without
// an ID are assigned one so reports can reference them.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}
	return ParseSuite(data)
}

// ParseSuite parses a constraint suite from YAML bytes.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parse suite: %w", err)
	}
	for i := range suite.Constraints {
		if suite.Constraints[i].ID == "" {
			suite.Constraints[i].ID = uuid.NewString()
		}
	}
	return &suite, nil
}
