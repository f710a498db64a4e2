// Package secrets provides a pluggable secrets management system: multiple
// provider backends (environment, local files, AWS, Azure, GCP), secret://
// URI syntax for referencing secrets in configuration, and recursive
// resolution of secret references inside merged configuration mappings.
package secrets

import "context"

// URIScheme is the prefix of every secret reference URI.
const URIScheme = "secret://"

// Provider resolves named secrets from one backend.
type Provider interface {
	// GetSecret retrieves a secret value by name. It returns a secret
	// resolution error when the secret cannot be retrieved.
	GetSecret(ctx context.Context, name string) (string, error)

	// SupportsURI reports whether this provider handles the given
	// secret:// URI.
	SupportsURI(uri string) bool

	// ProviderName returns the human-readable name of the provider.
	ProviderName() string

	// Available reports whether the provider can currently serve lookups
	// (credentials configured, storage reachable).
	Available(ctx context.Context) bool
}

// ProviderInfo describes a registered provider and its status.
type ProviderInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Available bool   `json:"available"`
}
