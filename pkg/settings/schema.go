// Package settings provides the configuration registry and factory for
// Stratum. It merges ordered configuration sources into a single mapping,
// optionally resolves secret references, and constructs an immutable,
// schema-validated settings snapshot that is cached until reset or replaced
// by a successful hot reload.
package settings

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// Schema is implemented by every settings snapshot type. A schema instance
// is populated from the merged configuration and then validated; validation
// failure aborts snapshot construction.
type Schema interface {
	Validate() error
}

// Normalizer is optionally implemented by schemas whose fields depend on one
// another. Normalize runs after decoding and before validation.
type Normalizer interface {
	Normalize()
}

// FieldValidator is a pure validation function for a single settings field.
type FieldValidator func(*Settings) error

// EnvDevelopment and friends are the recognized application environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Settings is the default schema. Users extend it by embedding it in their
// own struct and registering a factory for that struct on the registry.
type Settings struct {
	// Application
	AppEnv      string `mapstructure:"APP_ENV" json:"APP_ENV"`
	ServerName  string `mapstructure:"SERVER_NAME" json:"SERVER_NAME"`
	BackendHost string `mapstructure:"BACKEND_HOST" json:"BACKEND_HOST"`
	BackendPort int    `mapstructure:"BACKEND_PORT" json:"BACKEND_PORT"`
	APIPrefix   string `mapstructure:"API_V1_STR" json:"API_V1_STR"`
	Protocol    string `mapstructure:"PROTOCOL" json:"PROTOCOL"`
	ProjectName string `mapstructure:"PROJECT_NAME" json:"PROJECT_NAME"`

	// Security
	SecretKey                string   `mapstructure:"SECRET_KEY" json:"SECRET_KEY"`
	AccessTokenExpireMinutes int      `mapstructure:"ACCESS_TOKEN_EXPIRE_MINUTES" json:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	ServerHost               string   `mapstructure:"SERVER_HOST" json:"SERVER_HOST"`
	CORSOrigins              []string `mapstructure:"BACKEND_CORS_ORIGINS" json:"BACKEND_CORS_ORIGINS"`

	// Server behavior
	WebsocketEnabled bool   `mapstructure:"WEBSOCKET_ENABLED" json:"WEBSOCKET_ENABLED"`
	BackendWorkers   int    `mapstructure:"BACKEND_WORKERS" json:"BACKEND_WORKERS"`
	HotReload        bool   `mapstructure:"HOTRELOAD" json:"HOTRELOAD"`
	Debug            bool   `mapstructure:"DEBUG" json:"DEBUG"`
	LogLevel         string `mapstructure:"LOG_LEVEL" json:"LOG_LEVEL"`

	// Database
	PostgresServer         string `mapstructure:"POSTGRES_SERVER" json:"POSTGRES_SERVER"`
	PostgresUser           string `mapstructure:"POSTGRES_USER" json:"POSTGRES_USER"`
	PostgresPassword       string `mapstructure:"POSTGRES_PASSWORD" json:"POSTGRES_PASSWORD"`
	PostgresDB             string `mapstructure:"POSTGRES_DB" json:"POSTGRES_DB"`
	PostgresPort           string `mapstructure:"POSTGRES_PORT" json:"POSTGRES_PORT"`
	PostgresMaxConnections int    `mapstructure:"POSTGRES_MAX_CONNECTIONS" json:"POSTGRES_MAX_CONNECTIONS"`
	DatabaseURI            string `mapstructure:"DATABASE_URI" json:"DATABASE_URI"`

	// Bootstrap users
	FirstSuperuser         string `mapstructure:"FIRST_SUPERUSER" json:"FIRST_SUPERUSER"`
	FirstSuperuserPassword string `mapstructure:"FIRST_SUPERUSER_PASSWORD" json:"FIRST_SUPERUSER_PASSWORD"`
}

// NewSettings returns a Settings instance with development defaults. The
// secret key default is freshly generated so an unconfigured process never
// ships a static key.
func NewSettings() *Settings {
	return &Settings{
		AppEnv:                   EnvDevelopment,
		ServerName:               "backend",
		BackendHost:              "localhost",
		BackendPort:              8080,
		APIPrefix:                "/api/v1",
		Protocol:                 "http",
		ProjectName:              "stratum",
		SecretKey:                generateSecretKey(),
		AccessTokenExpireMinutes: 10080, // 7 days
		ServerHost:               "http://localhost",
		HotReload:                true,
		Debug:                    true,
		LogLevel:                 "info",
		PostgresServer:           "db",
		PostgresUser:             "postgres",
		PostgresPassword:         "root",
		PostgresDB:               "db",
		PostgresPort:             "5432",
		PostgresMaxConnections:   100,
		FirstSuperuser:           "admin@example.com",
		FirstSuperuserPassword:   "admin",
	}
}

// generateSecretKey produces a url-safe random key.
func generateSecretKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Normalize applies interdependent field rules after decoding:
//
//   - workers default to 1 in development, half the CPUs otherwise
//   - hot reload is forced off outside development or with multiple workers
//   - debug is forced off outside development
//   - the database URI is assembled from components when unset
func (s *Settings) Normalize() {
	if s.BackendWorkers <= 0 {
		if s.AppEnv == EnvDevelopment {
			s.BackendWorkers = 1
		} else {
			s.BackendWorkers = max(runtime.NumCPU()/2, 1)
		}
	}

	if s.BackendWorkers > 1 || s.AppEnv != EnvDevelopment {
		s.HotReload = false
	}

	if s.AppEnv != EnvDevelopment {
		s.Debug = false
	}

	if s.DatabaseURI == "" {
		port := ""
		if s.PostgresPort != "" {
			port = ":" + s.PostgresPort
		}
		s.DatabaseURI = fmt.Sprintf("postgresql://%s:%s@%s%s/%s",
			s.PostgresUser, s.PostgresPassword, s.PostgresServer, port, s.PostgresDB)
	}
}

// fieldValidators is the explicit per-field validation table, applied in one
// uniform pass after construction.
var fieldValidators = map[string]FieldValidator{
	"APP_ENV": func(s *Settings) error {
		switch s.AppEnv {
		case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
			return nil
		}
		return fmt.Errorf("APP_ENV must be one of development, staging, production, test; got %q", s.AppEnv)
	},
	"BACKEND_PORT": func(s *Settings) error {
		if s.BackendPort < 1 || s.BackendPort > 65535 {
			return fmt.Errorf("BACKEND_PORT %d is not a valid port number", s.BackendPort)
		}
		return nil
	},
	"PROTOCOL": func(s *Settings) error {
		if s.Protocol != "http" && s.Protocol != "https" {
			return fmt.Errorf("PROTOCOL must be http or https; got %q", s.Protocol)
		}
		return nil
	},
	"SECRET_KEY": func(s *Settings) error {
		if s.SecretKey == "" {
			return fmt.Errorf("SECRET_KEY must not be empty")
		}
		return nil
	},
	"ACCESS_TOKEN_EXPIRE_MINUTES": func(s *Settings) error {
		if s.AccessTokenExpireMinutes <= 0 {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
		}
		return nil
	},
	"POSTGRES_MAX_CONNECTIONS": func(s *Settings) error {
		if s.PostgresMaxConnections <= 0 {
			return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive")
		}
		return nil
	},
	"PROJECT_NAME": func(s *Settings) error {
		if strings.TrimSpace(s.ProjectName) == "" {
			return fmt.Errorf("PROJECT_NAME must not be empty")
		}
		return nil
	},
}

// Validate runs the field validator table in deterministic order.
func (s *Settings) Validate() error {
	fields := make([]string, 0, len(fieldValidators))
	for field := range fieldValidators {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if err := fieldValidators[field](s); err != nil {
			return stratumerrors.Wrap(err, stratumerrors.ErrorTypeValidation, "settings validation failed").
				WithDetail("field", field)
		}
	}
	return nil
}
