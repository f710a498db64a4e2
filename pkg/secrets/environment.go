package secrets

import (
	"context"
	"os"
	"strings"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// defaultEnvPrefixes is the fixed internal priority order of environment
// variable prefixes tried for a secret name.
var defaultEnvPrefixes = []string{"SECRET_", "STRATUM_SECRET_"}

// EnvironmentProvider looks up secrets in environment variables with
// configurable name prefixes.
type EnvironmentProvider struct {
	prefixes []string
}

// NewEnvironmentProvider creates an environment secrets provider. A nil
// prefix list selects the defaults.
func NewEnvironmentProvider(prefixes []string) *EnvironmentProvider {
	if prefixes == nil {
		prefixes = defaultEnvPrefixes
	}
	return &EnvironmentProvider{prefixes: prefixes}
}

// GetSecret tries every configured prefix against the uppercased secret
// name, then the bare uppercased name.
func (p *EnvironmentProvider) GetSecret(_ context.Context, name string) (string, error) {
	upper := strings.ToUpper(name)

	for _, prefix := range p.prefixes {
		if value, ok := os.LookupEnv(prefix + upper); ok {
			return value, nil
		}
	}

	if value, ok := os.LookupEnv(upper); ok {
		return value, nil
	}

	return "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret,
		"secret %q not found in environment variables", name).
		WithDetail("prefixes", p.prefixes)
}

// SupportsURI handles secret://env/ URIs.
func (p *EnvironmentProvider) SupportsURI(uri string) bool {
	return strings.HasPrefix(uri, URIScheme+"env/")
}

// ProviderName returns the provider name.
func (p *EnvironmentProvider) ProviderName() string { return "Environment Variables" }

// Available always reports true; the process environment is always readable.
func (p *EnvironmentProvider) Available(_ context.Context) bool { return true }
