package settings

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/secrets"
	"github.com/ajitpratap0/stratum/pkg/source"
)

// factoryConfig collects the options applied by Configure.
type factoryConfig struct {
	schemaFactory   func() Schema
	overrides       map[string]interface{}
	configFile      string
	envFile         string
	profilesDir     string
	environment     string
	profilesEnabled bool
	customSources   []source.Source
	secretsEnabled  bool
	cloudSecrets    bool
	cloudOptions    secrets.CloudOptions
}

// Option customizes a Configure call.
type Option func(*factoryConfig)

// WithSchema registers a custom schema factory for the snapshot type.
func WithSchema(factory func() Schema) Option {
	return func(c *factoryConfig) { c.schemaFactory = factory }
}

// WithOverrides installs explicit override values above file configuration.
func WithOverrides(values map[string]interface{}) Option {
	return func(c *factoryConfig) { c.overrides = values }
}

// WithConfigFile adds a JSON or YAML configuration file source.
func WithConfigFile(path string) Option {
	return func(c *factoryConfig) { c.configFile = path }
}

// WithEnvFile points the environment source at a dotenv file.
func WithEnvFile(path string) Option {
	return func(c *factoryConfig) { c.envFile = path }
}

// WithProfiles enables layered profile configuration from dir. An empty
// environment falls back to environment-variable detection.
func WithProfiles(dir, environment string) Option {
	return func(c *factoryConfig) {
		c.profilesEnabled = true
		c.profilesDir = dir
		c.environment = environment
	}
}

// WithSources replaces the default source set entirely.
func WithSources(sources ...source.Source) Option {
	return func(c *factoryConfig) { c.customSources = sources }
}

// WithSecrets toggles secret reference resolution during snapshot builds.
func WithSecrets(enabled bool) Option {
	return func(c *factoryConfig) { c.secretsEnabled = enabled }
}

// WithCloudSecrets additionally registers whichever cloud secret providers
// are reachable with ambient credentials. Implies WithSecrets(true).
func WithCloudSecrets(opts secrets.CloudOptions) Option {
	return func(c *factoryConfig) {
		c.secretsEnabled = true
		c.cloudSecrets = true
		c.cloudOptions = opts
	}
}

// Factory is the high-level entry point tying sources, secrets, and the
// registry together. A process constructs one factory and passes it where
// settings access is needed; there is no package-level instance.
type Factory struct {
	registry *Registry
	secrets  *secrets.Manager
	log      *zap.Logger
}

// NewFactory returns a factory with the default source set: process
// environment only. Call Configure to change the composition.
func NewFactory() *Factory {
	f := &Factory{
		registry: NewRegistry(),
		secrets:  secrets.NewManager(),
		log:      logger.Get().With(zap.String("component", "settings-factory")),
	}
	f.registry.AddSource(source.NewEnvironmentSource(""))
	return f
}

// Configure resets the factory and applies the given options, rebuilding the
// source set from scratch. It does not construct a snapshot; the first
// GetSettings call does that lazily.
func (f *Factory) Configure(ctx context.Context, opts ...Option) error {
	cfg := &factoryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	f.registry.Reset()

	if cfg.schemaFactory != nil {
		f.registry.SetSchema(cfg.schemaFactory)
	}

	if cfg.customSources != nil {
		for _, src := range cfg.customSources {
			f.registry.AddSource(src)
		}
	} else {
		f.registry.AddSource(source.NewEnvironmentSource(cfg.envFile))
		if cfg.overrides != nil {
			f.registry.AddSource(source.NewOverrideMapSource(cfg.overrides))
		}
		if cfg.profilesEnabled {
			f.registry.AddSource(source.NewProfilesSource(cfg.profilesDir, cfg.environment))
		}
		if cfg.configFile != "" {
			f.registry.AddSource(source.NewFileSource(cfg.configFile))
		}
	}

	if cfg.secretsEnabled {
		if cfg.cloudSecrets {
			secrets.RegisterCloudProviders(ctx, f.secrets, cfg.cloudOptions)
		}
		f.registry.SetSecretsResolver(f.secrets, true)
		f.log.Debug("secret resolution enabled")
	}

	f.log.Info("settings factory configured")
	return nil
}

// GetSettings returns the cached validated snapshot, building it on first
// use.
func (f *Factory) GetSettings(ctx context.Context) (Schema, error) {
	return f.registry.GetSnapshot(ctx)
}

// Rebuild forces a fresh snapshot, swapping it in only on success.
func (f *Factory) Rebuild(ctx context.Context) (Schema, error) {
	return f.registry.Rebuild(ctx)
}

// MergedConfig returns the raw merged configuration without secret
// resolution.
func (f *Factory) MergedConfig() (map[string]interface{}, error) {
	return f.registry.GetMergedConfig()
}

// ResolvedConfig returns the merged configuration with secret references
// resolved. Resolution failures leave the original values in place.
func (f *Factory) ResolvedConfig(ctx context.Context) (map[string]interface{}, error) {
	merged, err := f.registry.GetMergedConfig()
	if err != nil {
		return nil, err
	}
	return f.secrets.ResolveConfigSecrets(ctx, merged), nil
}

// PushOverride installs a temporary highest-precedence override and returns
// its release function.
func (f *Factory) PushOverride(values map[string]interface{}) func() {
	return f.registry.PushOverride(values)
}

// Reset restores the factory to its initial composition: environment source
// only, default schema, secrets resolution off.
func (f *Factory) Reset() {
	f.registry.Reset()
	f.registry.AddSource(source.NewEnvironmentSource(""))
}

// Registry exposes the underlying registry for advanced composition.
func (f *Factory) Registry() *Registry { return f.registry }

// SecretsManager exposes the secret provider registry, e.g. for inventory
// reporting or direct secret access.
func (f *Factory) SecretsManager() *secrets.Manager { return f.secrets }
