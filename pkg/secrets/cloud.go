package secrets

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/logger"
)

// CloudOptions configures the cloud providers considered for
// auto-registration.
type CloudOptions struct {
	AWSRegion    string
	AWSProfile   string
	GCPProjectID string
}

// RegisterCloudProviders probes each cloud provider's credentials and
// registers the ones that are available. Providers without credentials are
// skipped quietly; this is the expected state on most development machines.
func RegisterCloudProviders(ctx context.Context, m *Manager, opts CloudOptions) {
	log := logger.With(zap.String("component", "secrets_manager"))

	candidates := []Provider{
		NewAWSProvider(opts.AWSRegion, opts.AWSProfile),
		NewAzureProvider(nil),
		NewGCPProvider(opts.GCPProjectID),
	}

	for _, provider := range candidates {
		if !provider.Available(ctx) {
			log.Debug("cloud secrets provider not available, skipping",
				zap.String("provider", provider.ProviderName()))
			continue
		}
		m.AddProvider(provider)
		log.Info("cloud secrets provider registered",
			zap.String("provider", provider.ProviderName()))
	}
}
