// Package stratum provides layered configuration management with secret
// resolution for Go services.
//
// Configuration values come from prioritized sources: environment variables,
// override maps, layered profile directories, and JSON or YAML files. The
// settings registry merges them, resolves secret:// references through
// pluggable providers (environment, local storage, AWS Secrets Manager,
// Azure Key Vault, Google Cloud Secret Manager), decodes the result into a
// validated schema struct, and caches the snapshot until it is invalidated
// or atomically replaced by a hot reload.
//
// Typical usage goes through the settings factory:
//
//	factory := settings.NewFactory()
//	err := factory.Configure(ctx,
//	    settings.WithProfiles("config", ""),
//	    settings.WithSecrets(true),
//	)
//	snap, err := factory.GetSettings(ctx)
//
// See pkg/hotreload for debounced file watching and pkg/dryrun for
// validating a composition without applying it.
package stratum
