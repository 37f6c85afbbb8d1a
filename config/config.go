// config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dinhngtu/uvtester/chain"
	"github.com/dinhngtu/uvtester/kernel"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig loads configuration from path on top of the defaults. Files
// ending in .yaml or .yml are YAML, everything else JSON.
func LoadConfig(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, nil
}

// Validate checks field ranges and the kernel parameters.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	kind, err := kernel.ParseKind(c.Method)
	if err != nil {
		return err
	}
	if kind == kernel.TreeMultiply && c.Depth > kernel.MaxTreeDepth {
		return fmt.Errorf("%w: %s depth must be at most %d, got %d", kernel.ErrInvalidParameter, kind, kernel.MaxTreeDepth, c.Depth)
	}
	if err := chain.ValidatePause(c.PauseDepth); err != nil {
		return err
	}
	if _, err := c.RunDuration(); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return nil
}

// Kind returns the parsed method.
func (c Config) Kind() (kernel.Kind, error) {
	return kernel.ParseKind(c.Method)
}
