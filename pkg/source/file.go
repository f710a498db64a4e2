package source

import (
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// decodeFunc parses raw file contents into a configuration mapping.
type decodeFunc func(data []byte) (map[string]interface{}, error)

// decoders maps a lowercase file extension to its parser. A registered
// extension with a nil parser means the format is recognized but its parser
// dependency is not compiled in.
var decoders = map[string]decodeFunc{
	".json": decodeJSON,
	".yaml": decodeYAML,
	".yml":  decodeYAML,
}

func decodeJSON(data []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := gojson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeYAML(data []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeFile loads and parses a single configuration file by extension.
// Shared by FileSource and ProfilesSource.
func decodeFile(path string) (map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))

	decode, known := decoders[ext]
	if !known {
		return nil, stratumerrors.Newf(stratumerrors.ErrorTypeFormat, "unsupported file format: %s", ext).
			WithDetail("path", path)
	}
	if decode == nil {
		return nil, stratumerrors.Newf(stratumerrors.ErrorTypeDependency, "no parser available for %s files", ext).
			WithDetail("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeFile, "failed to read config file").
			WithDetail("path", path)
	}

	config, err := decode(data)
	if err != nil {
		return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeFile, "failed to parse config file").
			WithDetail("path", path)
	}
	return config, nil
}

// FileSource loads configuration from a single JSON or YAML file.
type FileSource struct {
	path     string
	priority int
}

// NewFileSource creates a file source for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{
		path:     path,
		priority: PriorityFile,
	}
}

// Name identifies the source.
func (s *FileSource) Name() string { return "file" }

// Priority returns the merge priority.
func (s *FileSource) Priority() int { return s.priority }

// SetPriority overrides the default priority.
func (s *FileSource) SetPriority(priority int) { s.priority = priority }

// Path returns the configured file path.
func (s *FileSource) Path() string { return s.path }

// Load parses the file. A missing path yields an empty mapping; an
// unsupported extension or parse failure propagates.
func (s *FileSource) Load() (map[string]interface{}, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	return decodeFile(s.path)
}
