package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shiggityshwah/punchlist/checklist"
)

// Load reads a YAML settings file, expands environment variables, and
// unmarshals into a Settings struct.
func Load(path string) (*Settings, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, &Error{Path: path, Msg: "invalid YAML", Err: err}
	}
	return &settings, nil
}

// LoadDefinition reads a YAML checklist definition, expands environment
// variables, and checks the structure: at least one step, every step
// named, and only known step types and normalizer names. A step without a
// type defaults to text.
func LoadDefinition(path string) (*checklist.Definition, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var def checklist.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &Error{Path: path, Msg: "invalid YAML", Err: err}
	}

	if len(def.Steps) == 0 {
		return nil, &Error{Path: path, Msg: "definition has no steps"}
	}
	for i := range def.Steps {
		step := &def.Steps[i]
		if strings.TrimSpace(step.Name) == "" {
			return nil, &Error{Path: path, Msg: fmt.Sprintf("step %d has no name", i)}
		}
		if step.Type == "" {
			step.Type = checklist.StepText
		}
		if !step.Type.Valid() {
			return nil, &Error{Path: path, Msg: fmt.Sprintf("step %q has unknown type %q", step.Name, step.Type)}
		}
		if !checklist.ValidNormalizer(step.Normalizer) {
			return nil, &Error{Path: path, Msg: fmt.Sprintf("step %q names unknown normalizer %q", step.Name, step.Normalizer)}
		}
	}
	return &def, nil
}

func readExpanded(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Path: path, Msg: "file not found"}
		}
		return nil, &Error{Path: path, Msg: "cannot read file", Err: err}
	}
	return []byte(ExpandEnv(string(data))), nil
}
