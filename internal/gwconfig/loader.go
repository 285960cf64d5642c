package gwconfig

import (
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader reads a Dynamic configuration revision from a YAML file,
// expanding ${ENV_VAR} references the way internal/config's Loader does
// for the legacy flat config.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses a dynamic configuration file.
func (l *Loader) Load(path string) (*Dynamic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses Dynamic configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*Dynamic, error) {
	expanded := expandEnvVars(string(data))

	dyn := &Dynamic{}
	if err := yaml.Unmarshal([]byte(expanded), dyn); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return dyn, nil
}

func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}
