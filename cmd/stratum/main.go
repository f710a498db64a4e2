package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/dryrun"
	"github.com/ajitpratap0/stratum/pkg/hotreload"
	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/secrets"
	"github.com/ajitpratap0/stratum/pkg/settings"
)

var version = "0.1.0"

// CompositionFlags selects which configuration sources the factory uses.
type CompositionFlags struct {
	ConfigFile   string
	EnvFile      string
	ProfilesDir  string
	Environment  string
	Profiles     bool
	Secrets      bool
	CloudSecrets bool
	AWSRegion    string
	AWSProfile   string
	GCPProject   string
	LogLevel     string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	flags := &CompositionFlags{}

	root := &cobra.Command{
		Use:   "stratum",
		Short: "Stratum - Layered configuration and secrets resolution",
		Long: `Stratum merges configuration from environment variables, override maps,
profile directories, and configuration files by priority, resolves secret
references through pluggable providers, and produces validated settings
snapshots with optional hot reload.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: flags.LogLevel, Encoding: "json"})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigFile, "config-file", "", "Path to a JSON or YAML configuration file")
	pf.StringVar(&flags.EnvFile, "env-file", "", "Path to a dotenv file merged below process environment variables")
	pf.BoolVar(&flags.Profiles, "profiles", false, "Enable layered profile configuration")
	pf.StringVar(&flags.ProfilesDir, "profiles-dir", "config", "Directory holding base/<environment>/local profile files")
	pf.StringVar(&flags.Environment, "environment", "", "Profile environment (defaults to STRATUM_ENV / APP_ENV detection)")
	pf.BoolVar(&flags.Secrets, "secrets", false, "Resolve secret references in the merged configuration")
	pf.BoolVar(&flags.CloudSecrets, "cloud-secrets", false, "Also register available cloud secret providers")
	pf.StringVar(&flags.AWSRegion, "aws-region", "", "Region for the AWS secrets provider")
	pf.StringVar(&flags.AWSProfile, "aws-profile", "", "Shared config profile for the AWS secrets provider")
	pf.StringVar(&flags.GCPProject, "gcp-project", "", "Project ID for the GCP secrets provider")
	pf.StringVar(&flags.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stratum v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var showSecrets bool
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Print the merged configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), flags, showSecrets)
		},
	}
	renderCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secret-like values instead of redacting them")
	root.AddCommand(renderCmd)

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without applying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), flags)
		},
	})

	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Work with secret providers",
	}
	secretCmd.AddCommand(&cobra.Command{
		Use:   "get <reference>",
		Short: "Resolve a secret reference or bare secret name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretGet(cmd.Context(), flags, args[0])
		},
	})
	root.AddCommand(secretCmd)

	root.AddCommand(&cobra.Command{
		Use:   "providers",
		Short: "List registered secret providers and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProviders(cmd.Context(), flags)
		},
	})

	var debounce time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch configuration files and reload on changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), flags, debounce)
		},
	}
	watchCmd.Flags().DurationVar(&debounce, "debounce", hotreload.DefaultDebounce, "Quiet period before a reload fires")
	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildFactory assembles a configured settings factory from the shared flags.
func buildFactory(ctx context.Context, flags *CompositionFlags) (*settings.Factory, error) {
	opts := []settings.Option{}
	if flags.EnvFile != "" {
		opts = append(opts, settings.WithEnvFile(flags.EnvFile))
	}
	if flags.Profiles {
		opts = append(opts, settings.WithProfiles(flags.ProfilesDir, flags.Environment))
	}
	if flags.ConfigFile != "" {
		opts = append(opts, settings.WithConfigFile(flags.ConfigFile))
	}
	if flags.CloudSecrets {
		opts = append(opts, settings.WithCloudSecrets(secrets.CloudOptions{
			AWSRegion:    flags.AWSRegion,
			AWSProfile:   flags.AWSProfile,
			GCPProjectID: flags.GCPProject,
		}))
	} else if flags.Secrets {
		opts = append(opts, settings.WithSecrets(true))
	}

	factory := settings.NewFactory()
	if err := factory.Configure(ctx, opts...); err != nil {
		return nil, err
	}
	return factory, nil
}

func runRender(ctx context.Context, flags *CompositionFlags, showSecrets bool) error {
	factory, err := buildFactory(ctx, flags)
	if err != nil {
		return err
	}

	var merged map[string]interface{}
	if flags.Secrets || flags.CloudSecrets {
		merged, err = factory.ResolvedConfig(ctx)
	} else {
		merged, err = factory.MergedConfig()
	}
	if err != nil {
		return err
	}

	if !showSecrets {
		merged = redactSecrets(merged)
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode merged configuration: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runValidate(ctx context.Context, flags *CompositionFlags) error {
	factory, err := buildFactory(ctx, flags)
	if err != nil {
		return err
	}

	report, err := dryrun.Validate(ctx, factory)
	if err != nil {
		return err
	}

	fmt.Print(report.Render())
	if !report.Valid() {
		os.Exit(1)
	}
	return nil
}

func runSecretGet(ctx context.Context, flags *CompositionFlags, ref string) error {
	factory, err := buildFactory(ctx, flags)
	if err != nil {
		return err
	}

	value, err := factory.SecretsManager().GetSecret(ctx, ref)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func runProviders(ctx context.Context, flags *CompositionFlags) error {
	factory, err := buildFactory(ctx, flags)
	if err != nil {
		return err
	}

	for _, p := range factory.SecretsManager().Providers(ctx) {
		status := "unavailable"
		if p.Available {
			status = "available"
		}
		fmt.Printf("%-28s %s\n", p.Name, status)
	}
	return nil
}

func runWatch(ctx context.Context, flags *CompositionFlags, debounce time.Duration) error {
	factory, err := buildFactory(ctx, flags)
	if err != nil {
		return err
	}

	var dirs, files []string
	if flags.Profiles {
		dirs = append(dirs, flags.ProfilesDir)
	}
	if flags.ConfigFile != "" {
		files = append(files, flags.ConfigFile)
	}
	if flags.EnvFile != "" {
		files = append(files, flags.EnvFile)
	}
	if len(dirs) == 0 && len(files) == 0 {
		return fmt.Errorf("nothing to watch: pass --profiles, --config-file, or --env-file")
	}

	manager := hotreload.NewManager()
	if err := manager.Configure(factory, dirs, files); err != nil {
		return err
	}
	manager.SetDebounce(debounce)
	manager.OnReload(func(event hotreload.ReloadEvent) {
		logger.Info("configuration reloaded",
			zap.Strings("changed_files", event.ChangedFiles),
			zap.Strings("changed_fields", event.ChangedFields))
		for field, change := range event.ChangedValues() {
			fmt.Printf("%s: %v -> %v\n", field, change.Old, change.New)
		}
	})

	if err := manager.Enable(ctx); err != nil {
		return err
	}
	defer manager.Disable()

	fmt.Println("watching for configuration changes, press Ctrl+C to stop")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	return nil
}

// redactedKeyPatterns marks configuration keys whose values are hidden by
// default in render output.
var redactedKeyPatterns = []string{"password", "secret", "token", "credential", "api_key", "private_key"}

func redactSecrets(config map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(config))
	for key, value := range config {
		switch v := value.(type) {
		case string:
			if isRedactedKey(key) {
				out[key] = "********"
			} else {
				out[key] = v
			}
		case map[string]interface{}:
			out[key] = redactSecrets(v)
		default:
			out[key] = value
		}
	}
	return out
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range redactedKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
