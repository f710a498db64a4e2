package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// secretKeyPatterns are the key-name fragments that mark a configuration
// value as a resolution candidate.
var secretKeyPatterns = []string{
	"password",
	"secret",
	"key",
	"token",
	"credential",
	"api_key",
	"private_key",
	"auth_token",
	"access_key",
}

// maxHeuristicValueLen bounds how long a value can be and still look like a
// secret reference rather than secret material.
const maxHeuristicValueLen = 100

// Manager resolves secrets through an ordered list of providers. Registration
// order determines fallback precedence for bare (non-URI) secret names.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
	log       *zap.Logger
}

// NewManager creates a secrets manager with the default providers registered:
// environment variables first, then local storage.
func NewManager() *Manager {
	m := &Manager{
		log: logger.With(zap.String("component", "secrets_manager")),
	}
	m.AddProvider(NewEnvironmentProvider(nil))
	m.AddProvider(NewLocalProvider(""))
	return m
}

// NewEmptyManager creates a secrets manager with no providers registered.
func NewEmptyManager() *Manager {
	return &Manager{
		log: logger.With(zap.String("component", "secrets_manager")),
	}
}

// AddProvider appends a provider. Later additions are tried after earlier
// ones for bare secret names.
func (m *Manager) AddProvider(provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers = append(m.providers, provider)
	m.log.Debug("secrets provider registered", zap.String("provider", provider.ProviderName()))
}

// RemoveProvider removes every provider with the given name.
func (m *Manager) RemoveProvider(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.providers[:0]
	for _, provider := range m.providers {
		if provider.ProviderName() != name {
			kept = append(kept, provider)
		}
	}
	m.providers = kept
}

// snapshotProviders returns a copy of the provider list for iteration
// outside the lock.
func (m *Manager) snapshotProviders() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Provider, len(m.providers))
	copy(out, m.providers)
	return out
}

// GetSecret resolves a secret reference, either a secret:// URI or a bare
// name tried against every available provider in registration order.
func (m *Manager) GetSecret(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, URIScheme) {
		return m.resolveURI(ctx, ref)
	}

	var failures []string
	for _, provider := range m.snapshotProviders() {
		if !provider.Available(ctx) {
			continue
		}

		value, err := provider.GetSecret(ctx, ref)
		if err == nil {
			return value, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", provider.ProviderName(), err))
	}

	return "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret,
		"could not resolve secret %q from any provider. Errors: %s",
		ref, strings.Join(failures, "; "))
}

// ParseURI splits a secret://<provider-key>/<name...> reference into its
// provider key and secret name. Malformed URIs fail with a secret
// resolution error; no provider fallback is attempted for them.
func ParseURI(uri string) (providerKey, name string, err error) {
	rest, ok := strings.CutPrefix(uri, URIScheme)
	if !ok {
		return "", "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret, "invalid secret URI format: %s", uri)
	}

	providerKey, name, found := strings.Cut(rest, "/")
	if !found || providerKey == "" || name == "" {
		return "", "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret, "invalid secret URI format: %s", uri)
	}
	return providerKey, name, nil
}

// resolveURI resolves a secret:// URI through the first available provider
// that supports it.
func (m *Manager) resolveURI(ctx context.Context, uri string) (string, error) {
	_, name, err := ParseURI(uri)
	if err != nil {
		return "", err
	}

	for _, provider := range m.snapshotProviders() {
		if !provider.SupportsURI(uri) || !provider.Available(ctx) {
			continue
		}
		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			continue
		}
		return value, nil
	}

	return "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret,
		"no available provider supports URI: %s", uri)
}

// ResolveConfigSecrets recursively walks a configuration mapping and
// replaces resolvable secret references in-place (in a copy). String leaves
// are candidates when they carry the secret:// scheme or when the key/value
// pair matches the secret heuristic. Resolution failures keep the original
// value and are logged; this operation never fails.
func (m *Manager) ResolveConfigSecrets(ctx context.Context, config map[string]interface{}) map[string]interface{} {
	resolved := make(map[string]interface{}, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case string:
			if strings.HasPrefix(v, URIScheme) || looksLikeSecretRef(key, v) {
				secret, err := m.GetSecret(ctx, v)
				if err != nil {
					m.log.Warn("failed to resolve secret, keeping original value",
						zap.String("key", key), zap.Error(err))
					resolved[key] = v
					continue
				}
				resolved[key] = secret
				continue
			}
			resolved[key] = v
		case map[string]interface{}:
			resolved[key] = m.ResolveConfigSecrets(ctx, v)
		case []interface{}:
			items := make([]interface{}, len(v))
			for i, item := range v {
				if nested, ok := item.(map[string]interface{}); ok {
					items[i] = m.ResolveConfigSecrets(ctx, nested)
					continue
				}
				items[i] = item
			}
			resolved[key] = items
		default:
			resolved[key] = value
		}
	}

	return resolved
}

// looksLikeSecretRef is the heuristic for detecting indirect secret
// references: the key names a secret-ish field and the value is short,
// not a URL, and shaped like an identifier.
func looksLikeSecretRef(key, value string) bool {
	keyLower := strings.ToLower(key)

	matched := false
	for _, pattern := range secretKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if len(value) >= maxHeuristicValueLen {
		return false
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return false
	}
	return strings.ContainsAny(value, "_-/")
}

// URISupport reports whether any registered provider claims a secret URI,
// and whether at least one claiming provider is currently available.
func (m *Manager) URISupport(ctx context.Context, uri string) (supported, available bool) {
	for _, provider := range m.snapshotProviders() {
		if !provider.SupportsURI(uri) {
			continue
		}
		supported = true
		if provider.Available(ctx) {
			return true, true
		}
	}
	return supported, false
}

// Providers lists all registered providers with their availability.
func (m *Manager) Providers(ctx context.Context) []ProviderInfo {
	providers := m.snapshotProviders()
	infos := make([]ProviderInfo, 0, len(providers))
	for _, provider := range providers {
		infos = append(infos, ProviderInfo{
			Name:      provider.ProviderName(),
			Type:      fmt.Sprintf("%T", provider),
			Available: provider.Available(ctx),
		})
	}
	return infos
}
