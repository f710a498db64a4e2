package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// EnvVarPrimary is checked first when detecting the active environment.
	EnvVarPrimary = "STRATUM_ENV"
	// EnvVarFallback is checked when the primary variable is unset.
	EnvVarFallback = "APP_ENV"
	// DefaultEnvironment is used when neither environment variable is set.
	DefaultEnvironment = "development"
)

// profileExtensions is the fixed preference order tried for each layer.
var profileExtensions = []string{"json", "yaml", "yml"}

// DetectEnvironment resolves the active environment name from the process
// environment, defaulting to "development".
func DetectEnvironment() string {
	if env := os.Getenv(EnvVarPrimary); env != "" {
		return env
	}
	if env := os.Getenv(EnvVarFallback); env != "" {
		return env
	}
	return DefaultEnvironment
}

// ProfilesSource loads hierarchical configuration profiles from a directory.
//
// Layers are loaded in this order, each deep-merged on top of the
// accumulated result:
//
//	<dir>/base.{json,yaml,yml}
//	<dir>/<environment>.{json,yaml,yml}
//	<dir>/local.{json,yaml,yml}
//
// Missing layers are silently skipped. The registry only ever sees the one
// flat mapping produced here; the deep merge is internal to this source.
type ProfilesSource struct {
	dir         string
	environment string
	priority    int

	mu          sync.Mutex
	loadedFiles []string
}

// NewProfilesSource creates a profiles source. environment may be empty, in
// which case it is detected from the process environment.
func NewProfilesSource(dir, environment string) *ProfilesSource {
	if environment == "" {
		environment = DetectEnvironment()
	}
	return &ProfilesSource{
		dir:         dir,
		environment: environment,
		priority:    PriorityProfiles,
	}
}

// Name identifies the source.
func (s *ProfilesSource) Name() string { return "profiles" }

// Priority returns the merge priority.
func (s *ProfilesSource) Priority() int { return s.priority }

// SetPriority overrides the default priority.
func (s *ProfilesSource) SetPriority(priority int) { s.priority = priority }

// Environment returns the resolved environment name.
func (s *ProfilesSource) Environment() string { return s.environment }

// LoadedFiles returns the physical files found during the most recent Load,
// in layer order. Useful for diagnostics. Safe to call concurrently with
// Load.
func (s *ProfilesSource) LoadedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.loadedFiles))
	copy(out, s.loadedFiles)
	return out
}

// Load merges the base, environment, and local layers into one mapping.
func (s *ProfilesSource) Load() (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	var loaded []string

	for _, layer := range []string{"base", s.environment, "local"} {
		path, found := s.findLayer(layer)
		if !found {
			continue
		}
		config, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		merged = DeepMerge(merged, config)
		loaded = append(loaded, path)
	}

	s.mu.Lock()
	s.loadedFiles = loaded
	s.mu.Unlock()
	return merged, nil
}

// findLayer returns the first existing file for a layer name, trying
// extensions in the fixed preference order.
func (s *ProfilesSource) findLayer(layer string) (string, bool) {
	for _, ext := range profileExtensions {
		path := filepath.Join(s.dir, fmt.Sprintf("%s.%s", layer, ext))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// DeepMerge recursively merges override on top of base. Nested mappings are
// combined key-by-key; scalars and lists are replaced wholly. Neither input
// is mutated.
func DeepMerge(base, override map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(override))
	for key, value := range base {
		result[key] = value
	}

	for key, value := range override {
		baseValue, exists := result[key]
		baseMap, baseIsMap := baseValue.(map[string]interface{})
		overrideMap, overrideIsMap := value.(map[string]interface{})
		if exists && baseIsMap && overrideIsMap {
			result[key] = DeepMerge(baseMap, overrideMap)
			continue
		}
		result[key] = value
	}

	return result
}
