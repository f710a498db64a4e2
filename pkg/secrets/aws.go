package secrets

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// availabilityProbeTimeout bounds the lightweight credential probes cloud
// providers run before auto-registration.
const availabilityProbeTimeout = 5 * time.Second

// AWSProvider resolves secrets from AWS Secrets Manager.
//
// Supported URI forms:
//
//	secret://aws/secret-name           (default region)
//	secret://aws/region/secret-name
type AWSProvider struct {
	region  string
	profile string

	mu      sync.Mutex
	cfg     *aws.Config
	clients map[string]*secretsmanager.Client
}

// NewAWSProvider creates an AWS Secrets Manager provider. region and profile
// are optional; empty values fall back to the SDK's default resolution chain.
func NewAWSProvider(region, profile string) *AWSProvider {
	return &AWSProvider{
		region:  region,
		profile: profile,
		clients: make(map[string]*secretsmanager.Client),
	}
}

// loadConfig lazily resolves the shared AWS configuration.
func (p *AWSProvider) loadConfig(ctx context.Context) (aws.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg != nil {
		return *p.cfg, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if p.region != "" {
		opts = append(opts, awsconfig.WithRegion(p.region))
	}
	if p.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(p.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to load AWS configuration")
	}

	p.cfg = &cfg
	return cfg, nil
}

// client returns a Secrets Manager client for the given region; an empty
// region uses the shared configuration's region. Clients are cached.
func (p *AWSProvider) client(ctx context.Context, region string) (*secretsmanager.Client, error) {
	cfg, err := p.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[region]; ok {
		return client, nil
	}

	if region != "" {
		cfg.Region = region
	}
	client := secretsmanager.NewFromConfig(cfg)
	p.clients[region] = client
	return client, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager. A name of the form
// region/secret-name addresses a specific region; ARNs pass through
// untouched.
func (p *AWSProvider) GetSecret(ctx context.Context, name string) (string, error) {
	region := ""
	if !strings.HasPrefix(name, "arn:") {
		if prefix, rest, found := strings.Cut(name, "/"); found && looksLikeAWSRegion(prefix) {
			region = prefix
			name = rest
		}
	}

	client, err := p.client(ctx, region)
	if err != nil {
		return "", err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", stratumerrors.Wrap(err, stratumerrors.ErrorTypeSecret,
			"failed to retrieve AWS secret").WithDetail("secret", name)
	}

	if out.SecretString != nil {
		return *out.SecretString, nil
	}
	// Binary secrets are already base64-decoded by the SDK.
	return string(out.SecretBinary), nil
}

// looksLikeAWSRegion reports whether a path segment is plausibly a region
// identifier such as us-west-2.
func looksLikeAWSRegion(segment string) bool {
	return len(segment) > 2 && strings.Count(segment, "-") >= 2
}

// SupportsURI handles secret://aws/ URIs.
func (p *AWSProvider) SupportsURI(uri string) bool {
	return strings.HasPrefix(uri, URIScheme+"aws/")
}

// ProviderName returns the provider name.
func (p *AWSProvider) ProviderName() string { return "AWS Secrets Manager" }

// Available probes the credential chain without calling the service.
func (p *AWSProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()

	cfg, err := p.loadConfig(ctx)
	if err != nil {
		return false
	}
	_, err = cfg.Credentials.Retrieve(ctx)
	return err == nil
}
