package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryDefaultComposition(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	f := NewFactory()
	schema, err := f.GetSettings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, EnvTest, schema.(*Settings).AppEnv)
}

func TestFactoryConfigureWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_NAME: from-file\nBACKEND_PORT: 9090\n"), 0o644))

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx, WithConfigFile(path)))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)

	s := schema.(*Settings)
	assert.Equal(t, "from-file", s.ServerName)
	assert.Equal(t, 9090, s.BackendPort)
}

func TestFactoryEnvironmentBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"SERVER_NAME": "from-file"}`), 0o644))

	t.Setenv("SERVER_NAME", "from-env")

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx, WithConfigFile(path)))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-env", schema.(*Settings).ServerName)
}

func TestFactoryOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"SERVER_NAME": "from-file", "BACKEND_PORT": 9090}`), 0o644))

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithConfigFile(path),
		WithOverrides(map[string]interface{}{"SERVER_NAME": "from-override"}),
	))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)

	s := schema.(*Settings)
	assert.Equal(t, "from-override", s.ServerName)
	assert.Equal(t, 9090, s.BackendPort)
}

func TestFactoryProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.json"),
		[]byte(`{"SERVER_NAME": "base", "PROJECT_NAME": "demo"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.json"),
		[]byte(`{"SERVER_NAME": "staging", "APP_ENV": "staging"}`), 0o644))

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx, WithProfiles(dir, "staging")))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)

	s := schema.(*Settings)
	assert.Equal(t, "staging", s.ServerName)
	assert.Equal(t, "demo", s.ProjectName)
	assert.Equal(t, EnvStaging, s.AppEnv)
}

func TestFactorySecretResolution(t *testing.T) {
	t.Setenv("SECRET_DB_TOKEN", "resolved-token")

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithOverrides(map[string]interface{}{
			"POSTGRES_PASSWORD": "secret://env/DB_TOKEN",
		}),
		WithSecrets(true),
	))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resolved-token", schema.(*Settings).PostgresPassword)
}

func TestFactorySecretsDisabledLeavesReferences(t *testing.T) {
	t.Setenv("SECRET_DB_TOKEN", "resolved-token")

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithOverrides(map[string]interface{}{
			"POSTGRES_PASSWORD": "secret://env/DB_TOKEN",
		}),
	))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret://env/DB_TOKEN", schema.(*Settings).PostgresPassword)
}

func TestFactoryCustomSchema(t *testing.T) {
	type appSettings struct {
		Settings    `mapstructure:",squash"`
		FeatureFlag bool `mapstructure:"FEATURE_FLAG"`
	}

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithSchema(func() Schema { return &appSettings{Settings: *NewSettings()} }),
		WithOverrides(map[string]interface{}{"FEATURE_FLAG": "true"}),
	))

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)

	custom, ok := schema.(*appSettings)
	require.True(t, ok)
	assert.True(t, custom.FeatureFlag)
}

func TestFactoryPushOverride(t *testing.T) {
	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithOverrides(map[string]interface{}{"SERVER_NAME": "normal"})))

	release := f.PushOverride(map[string]interface{}{"SERVER_NAME": "scoped"})
	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scoped", schema.(*Settings).ServerName)

	release()
	schema, err = f.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "normal", schema.(*Settings).ServerName)
}

func TestFactoryReset(t *testing.T) {
	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithOverrides(map[string]interface{}{"SERVER_NAME": "configured"})))

	f.Reset()

	schema, err := f.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backend", schema.(*Settings).ServerName)
}

func TestFactoryResolvedConfig(t *testing.T) {
	t.Setenv("SECRET_API_TOKEN", "resolved")

	ctx := context.Background()
	f := NewFactory()
	require.NoError(t, f.Configure(ctx,
		WithOverrides(map[string]interface{}{"SERVICE_TOKEN": "secret://env/API_TOKEN"}),
		WithSecrets(true),
	))

	merged, err := f.MergedConfig()
	require.NoError(t, err)
	assert.Equal(t, "secret://env/API_TOKEN", merged["SERVICE_TOKEN"])

	resolved, err := f.ResolvedConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resolved", resolved["SERVICE_TOKEN"])
}
