package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings()

	assert.Equal(t, EnvDevelopment, s.AppEnv)
	assert.Equal(t, 8080, s.BackendPort)
	assert.Equal(t, "/api/v1", s.APIPrefix)
	assert.Equal(t, "stratum", s.ProjectName)
	assert.NotEmpty(t, s.SecretKey)
	assert.Equal(t, 10080, s.AccessTokenExpireMinutes)

	// Every instance gets a fresh random key.
	assert.NotEqual(t, s.SecretKey, NewSettings().SecretKey)
}

func TestNormalizeWorkers(t *testing.T) {
	s := NewSettings()
	s.Normalize()
	assert.Equal(t, 1, s.BackendWorkers)

	prod := NewSettings()
	prod.AppEnv = EnvProduction
	prod.Normalize()
	assert.GreaterOrEqual(t, prod.BackendWorkers, 1)

	explicit := NewSettings()
	explicit.BackendWorkers = 7
	explicit.Normalize()
	assert.Equal(t, 7, explicit.BackendWorkers)
}

func TestNormalizeHotReload(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		workers  int
		expected bool
	}{
		{name: "development single worker", env: EnvDevelopment, workers: 1, expected: true},
		{name: "development many workers", env: EnvDevelopment, workers: 4, expected: false},
		{name: "production", env: EnvProduction, workers: 1, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSettings()
			s.AppEnv = tt.env
			s.BackendWorkers = tt.workers
			s.Normalize()
			assert.Equal(t, tt.expected, s.HotReload)
		})
	}
}

func TestNormalizeDebugForcedOffOutsideDevelopment(t *testing.T) {
	s := NewSettings()
	s.AppEnv = EnvProduction
	s.Debug = true
	s.Normalize()
	assert.False(t, s.Debug)

	dev := NewSettings()
	dev.Debug = true
	dev.Normalize()
	assert.True(t, dev.Debug)
}

func TestNormalizeDatabaseURI(t *testing.T) {
	s := NewSettings()
	s.PostgresUser = "app"
	s.PostgresPassword = "pw"
	s.PostgresServer = "db.internal"
	s.PostgresPort = "5433"
	s.PostgresDB = "appdb"
	s.Normalize()

	assert.Equal(t, "postgresql://app:pw@db.internal:5433/appdb", s.DatabaseURI)

	explicit := NewSettings()
	explicit.DatabaseURI = "postgresql://explicit"
	explicit.Normalize()
	assert.Equal(t, "postgresql://explicit", explicit.DatabaseURI)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "defaults valid", mutate: func(s *Settings) {}},
		{name: "bad environment", mutate: func(s *Settings) { s.AppEnv = "qa" }, wantErr: "APP_ENV"},
		{name: "port too low", mutate: func(s *Settings) { s.BackendPort = 0 }, wantErr: "BACKEND_PORT"},
		{name: "port too high", mutate: func(s *Settings) { s.BackendPort = 70000 }, wantErr: "BACKEND_PORT"},
		{name: "bad protocol", mutate: func(s *Settings) { s.Protocol = "ftp" }, wantErr: "PROTOCOL"},
		{name: "empty secret key", mutate: func(s *Settings) { s.SecretKey = "" }, wantErr: "SECRET_KEY"},
		{name: "zero token expiry", mutate: func(s *Settings) { s.AccessTokenExpireMinutes = 0 }, wantErr: "ACCESS_TOKEN_EXPIRE_MINUTES"},
		{name: "blank project name", mutate: func(s *Settings) { s.ProjectName = "   " }, wantErr: "PROJECT_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr))
		})
	}
}
