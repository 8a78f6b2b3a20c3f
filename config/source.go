package config

import (
	"fmt"
	"os"

	"github.com/c360/switchboard/errors"
)

// Source yields a validated sensor configuration. The registry calls it on startup and on every reload.
type Source interface {
	Load() (*SensorsConfig, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (*SensorsConfig, error)

// Load calls f.
func (f SourceFunc) Load() (*SensorsConfig, error) { return f() }

// FileSource loads sensors from a YAML file, optionally rendering it as a template first.
type FileSource struct {
	Path     string
	Template bool
}

// Load implements Source.
func (s FileSource) Load() (*SensorsConfig, error) {
	return LoadSensors(s.Path, s.Template)
}

// String describes the source for logs.
func (s FileSource) String() string {
	if s.Template {
		return s.Path + " (template)"
	}
	return s.Path
}

// LoadSensors reads, renders (when useTemplate), decodes and validates a sensor file.
func LoadSensors(path string, useTemplate bool) (*SensorsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path),
				"SensorsConfig", "LoadSensors", "read sensor file")
		}
		return nil, errors.WrapFatal(err, "SensorsConfig", "LoadSensors", "read sensor file")
	}

	if useTemplate {
		if data, err = RenderTemplate(data); err != nil {
			return nil, err
		}
	}

	cfg, err := ParseSensors(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
