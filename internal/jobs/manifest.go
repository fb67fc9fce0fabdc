package jobs

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Manifest kinds
const (
	KindBuiltin = "builtin"
	KindCommand = "command"
)

// Manifest declares a job type. One file per type lives under the jobs path:
//
//	name: math
//	kind: builtin
//	handler: math
//	methods: [is_prime, sum]
type Manifest struct {
	Name    string   `yaml:"name" validate:"required,excludesall=#/"`
	Kind    string   `yaml:"kind" validate:"required,oneof=builtin command"`
	Handler string   `yaml:"handler" validate:"required_if=Kind builtin"`
	Command []string `yaml:"command" validate:"required_if=Kind command,dive,required"`
	Methods []string `yaml:"methods" validate:"dive,required,excludesall=#"`
	Dir     string   `yaml:"dir"`

	// Source is the file the manifest was read from
	Source string `yaml:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the manifest fields
func (m Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid job manifest %s: %w", m.describe(), err)
	}
	return nil
}

func (m Manifest) describe() string {
	if m.Source != "" {
		return m.Source
	}
	if m.Name != "" {
		return m.Name
	}
	return "<unnamed>"
}

// LoadManifest reads one manifest file
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read job manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse job manifest %s: %w", path, err)
	}
	m.Source = path

	return m, nil
}
