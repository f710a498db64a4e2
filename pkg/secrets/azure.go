package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// azureVaultScope is the token scope used by the availability probe.
const azureVaultScope = "https://vault.azure.net/.default"

// AzureProvider resolves secrets from Azure Key Vault.
//
// Supported URI form:
//
//	secret://azure/vault-name/secret-name
type AzureProvider struct {
	mu         sync.Mutex
	credential azcore.TokenCredential
	clients    map[string]*azsecrets.Client
}

// NewAzureProvider creates an Azure Key Vault provider. credential may be
// nil, in which case the default credential chain is used on first access.
func NewAzureProvider(credential azcore.TokenCredential) *AzureProvider {
	return &AzureProvider{
		credential: credential,
		clients:    make(map[string]*azsecrets.Client),
	}
}

// loadCredential lazily constructs the default credential chain.
func (p *AzureProvider) loadCredential() (azcore.TokenCredential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.credential != nil {
		return p.credential, nil
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to create Azure credential")
	}
	p.credential = credential
	return credential, nil
}

// client returns a Key Vault client for the given vault, cached per vault URL.
func (p *AzureProvider) client(vault string) (*azsecrets.Client, error) {
	credential, err := p.loadCredential()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	vaultURL := fmt.Sprintf("https://%s.vault.azure.net/", vault)
	if client, ok := p.clients[vaultURL]; ok {
		return client, nil
	}

	client, err := azsecrets.NewClient(vaultURL, credential, nil)
	if err != nil {
		return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to create Azure Key Vault client").WithDetail("vault", vault)
	}
	p.clients[vaultURL] = client
	return client, nil
}

// GetSecret retrieves a secret from Azure Key Vault. The name must be of
// the form vault-name/secret-name.
func (p *AzureProvider) GetSecret(ctx context.Context, name string) (string, error) {
	vault, secretName, found := strings.Cut(name, "/")
	if !found || vault == "" || secretName == "" {
		return "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret,
			"Azure secret name must be in format 'vault-name/secret-name', got: %s", name)
	}

	client, err := p.client(vault)
	if err != nil {
		return "", err
	}

	// An empty version selects the latest.
	resp, err := client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return "", stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to retrieve Azure Key Vault secret").WithDetail("secret", name)
	}
	if resp.Value == nil {
		return "", stratumerrors.Newf(stratumerrors.ErrorTypeSecret,
			"Azure Key Vault secret %q has no value", name)
	}
	return *resp.Value, nil
}

// SupportsURI handles secret://azure/ URIs.
func (p *AzureProvider) SupportsURI(uri string) bool {
	return strings.HasPrefix(uri, URIScheme+"azure/")
}

// ProviderName returns the provider name.
func (p *AzureProvider) ProviderName() string { return "Azure Key Vault" }

// Available probes the credential chain by requesting a vault-scoped token.
func (p *AzureProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()

	credential, err := p.loadCredential()
	if err != nil {
		return false
	}
	_, err = credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{azureVaultScope},
	})
	return err == nil
}
