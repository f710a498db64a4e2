package source

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// EnvironmentSource loads configuration from process environment variables,
// optionally merged with a dotenv-style file. Environment variables win over
// file-parsed values when both define a key.
type EnvironmentSource struct {
	envFile  string
	priority int
}

// NewEnvironmentSource creates an environment source. envFile is optional; an
// empty string disables dotenv loading.
func NewEnvironmentSource(envFile string) *EnvironmentSource {
	return &EnvironmentSource{
		envFile:  envFile,
		priority: PriorityEnvironment,
	}
}

// Name identifies the source.
func (s *EnvironmentSource) Name() string { return "environment" }

// Priority returns the merge priority.
func (s *EnvironmentSource) Priority() int { return s.priority }

// SetPriority overrides the default priority.
func (s *EnvironmentSource) SetPriority(priority int) { s.priority = priority }

// Load reads the optional dotenv file first, then overlays the process
// environment on top of it.
func (s *EnvironmentSource) Load() (map[string]interface{}, error) {
	config := make(map[string]interface{})

	if s.envFile != "" {
		if _, err := os.Stat(s.envFile); err == nil {
			values, err := godotenv.Read(s.envFile)
			if err != nil {
				return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeFile, "failed to parse env file").
					WithDetail("path", s.envFile)
			}
			for key, value := range values {
				config[key] = value
			}
		}
	}

	for _, entry := range os.Environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		config[key] = value
	}

	return config, nil
}
