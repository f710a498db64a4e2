package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// localFileExtensions is the set of extensions tried when the secrets path
// is a directory holding one file per secret.
var localFileExtensions = []string{"", ".txt", ".secret"}

// LocalProvider serves secrets from local storage for development and
// testing. The configured path selects the format:
//
//   - a directory: one file per secret
//   - a .env file: dotenv-style KEY=value lines
//   - a .json file: a flat object of secret values
//
// Resolved values are cached after the first successful read; later lookups
// do not observe file mutations.
type LocalProvider struct {
	path string

	mu    sync.Mutex
	cache map[string]string
}

// NewLocalProvider creates a local secrets provider. An empty path defaults
// to "secrets".
func NewLocalProvider(path string) *LocalProvider {
	if path == "" {
		path = "secrets"
	}
	return &LocalProvider{
		path:  path,
		cache: make(map[string]string),
	}
}

// GetSecret loads a secret from local storage, serving cached values first.
func (p *LocalProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if value, ok := p.cache[name]; ok {
		return value, nil
	}

	value, found := p.loadSecret(name)
	if !found {
		return "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret,
			"secret %q not found in local storage", name).
			WithDetail("path", p.path)
	}

	p.cache[name] = value
	return value, nil
}

// loadSecret tries the storage formats in order: directory, .env file,
// JSON file.
func (p *LocalProvider) loadSecret(name string) (string, bool) {
	info, err := os.Stat(p.path)
	if err != nil {
		return "", false
	}

	if info.IsDir() {
		for _, ext := range localFileExtensions {
			data, err := os.ReadFile(filepath.Join(p.path, name+ext))
			if err != nil {
				continue
			}
			return strings.TrimSpace(string(data)), true
		}
		return "", false
	}

	switch filepath.Ext(p.path) {
	case ".env":
		values, err := godotenv.Read(p.path)
		if err != nil {
			logger.Warn("failed to read local secrets env file",
				zap.String("path", p.path), zap.Error(err))
			return "", false
		}
		value, ok := values[name]
		return value, ok
	case ".json":
		data, err := os.ReadFile(p.path)
		if err != nil {
			return "", false
		}
		values := make(map[string]string)
		if err := gojson.Unmarshal(data, &values); err != nil {
			logger.Warn("failed to parse local secrets json file",
				zap.String("path", p.path), zap.Error(err))
			return "", false
		}
		value, ok := values[name]
		return value, ok
	}

	return "", false
}

// ListSecrets returns the names of available secrets, sorted, for
// diagnostics. Failures yield an empty list.
func (p *LocalProvider) ListSecrets() []string {
	names := make([]string, 0)

	info, err := os.Stat(p.path)
	if err != nil {
		return names
	}

	switch {
	case info.IsDir():
		entries, err := os.ReadDir(p.path)
		if err != nil {
			return names
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			names = append(names, strings.TrimSuffix(name, filepath.Ext(name)))
		}
	case filepath.Ext(p.path) == ".env":
		values, err := godotenv.Read(p.path)
		if err != nil {
			return names
		}
		for name := range values {
			names = append(names, name)
		}
	case filepath.Ext(p.path) == ".json":
		data, err := os.ReadFile(p.path)
		if err != nil {
			return names
		}
		values := make(map[string]interface{})
		if err := gojson.Unmarshal(data, &values); err != nil {
			return names
		}
		for name := range values {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}

// SupportsURI handles secret://local/ and secret://file/ URIs.
func (p *LocalProvider) SupportsURI(uri string) bool {
	return strings.HasPrefix(uri, URIScheme+"local/") || strings.HasPrefix(uri, URIScheme+"file/")
}

// ProviderName returns the provider name.
func (p *LocalProvider) ProviderName() string { return "Local Secrets" }

// Available always reports true; missing storage surfaces per-lookup.
func (p *LocalProvider) Available(_ context.Context) bool { return true }
