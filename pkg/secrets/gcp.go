package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/oauth2/google"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// gcpCloudScope is the credential scope used by the availability probe.
const gcpCloudScope = "https://www.googleapis.com/auth/cloud-platform"

// GCPProvider resolves secrets from Google Cloud Secret Manager.
//
// Supported URI forms:
//
//	secret://gcp/secret-name              (default project)
//	secret://gcp/project-id/secret-name
type GCPProvider struct {
	projectID string

	mu     sync.Mutex
	client *secretmanager.Client
}

// NewGCPProvider creates a GCP Secret Manager provider. projectID is
// optional; when empty the application default credentials' project is used.
func NewGCPProvider(projectID string) *GCPProvider {
	return &GCPProvider{projectID: projectID}
}

// loadClient lazily constructs the Secret Manager client and resolves the
// default project when none was configured.
func (p *GCPProvider) loadClient(ctx context.Context) (*secretmanager.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to create GCP Secret Manager client")
	}

	if p.projectID == "" {
		if creds, err := google.FindDefaultCredentials(ctx, gcpCloudScope); err == nil {
			p.projectID = creds.ProjectID
		}
	}

	p.client = client
	return client, nil
}

// GetSecret retrieves the latest version of a secret from GCP Secret
// Manager. A name of the form project-id/secret-name addresses a specific
// project.
func (p *GCPProvider) GetSecret(ctx context.Context, name string) (string, error) {
	client, err := p.loadClient(ctx)
	if err != nil {
		return "", err
	}

	projectID := p.projectID
	secretName := name
	if prefix, rest, found := strings.Cut(name, "/"); found {
		projectID = prefix
		secretName = rest
	}

	if projectID == "" {
		return "", stratumerrors.New(stratumerrors.ErrorTypeSecret,
			"GCP project ID is required; set it on the provider or via application default credentials")
	}

	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName)
	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to retrieve GCP secret").WithDetail("secret", name)
	}

	return string(resp.GetPayload().GetData()), nil
}

// SupportsURI handles secret://gcp/ URIs.
func (p *GCPProvider) SupportsURI(uri string) bool {
	return strings.HasPrefix(uri, URIScheme+"gcp/")
}

// ProviderName returns the provider name.
func (p *GCPProvider) ProviderName() string { return "Google Cloud Secret Manager" }

// Available probes for application default credentials.
func (p *GCPProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()

	creds, err := google.FindDefaultCredentials(ctx, gcpCloudScope)
	if err != nil {
		return false
	}
	return p.projectID != "" || creds.ProjectID != ""
}
