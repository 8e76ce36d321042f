// Package config defines the configuration of the ClearSkies hold engine.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Fleet credentials are deliberately not validated here. A missing Geotab
// login surfaces as a configuration error when the session manager first
// needs it, so the engine keeps polling weather and clearing holds.
package config

import (
	"strings"
	"time"

	"clearskies/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server     ServerConfig
	Database   DatabaseConfig
	AWS        AWSConfig
	Poll       PollConfig
	Thresholds ThresholdConfig
	Fleet      FleetConfig
	Weather    WeatherConfig
	Supervisor SupervisorConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the HTTP surface configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// APIKey guards /api/* when set. Empty disables the check.
	APIKey          SecretString  `envconfig:"API_KEY"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	// MigrateOnStart applies the embedded schema before the scheduler starts.
	MigrateOnStart bool `envconfig:"DB_MIGRATE_ON_START" default:"true"`
}

// AWSConfig holds the region used for SSM parameter resolution.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// PollConfig controls the scheduler.
type PollConfig struct {
	IntervalMinutes int  `envconfig:"POLL_INTERVAL_MINUTES" default:"5" validate:"min=1"`
	RunImmediately  bool `envconfig:"POLL_RUN_IMMEDIATELY" default:"true"`
	// MaxConcurrentSites bounds per-cycle fan-out. Zero means unbounded.
	MaxConcurrentSites int `envconfig:"POLL_MAX_CONCURRENT_SITES" default:"0" validate:"min=0"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMinutes) * time.Minute
}

// ThresholdConfig selects the active threshold set.
type ThresholdConfig struct {
	Mode string `envconfig:"THRESHOLD_MODE" default:"standard" validate:"oneof=standard demo"`
	// DemoMode is the legacy switch; true forces Mode to demo.
	DemoMode bool `envconfig:"DEMO_MODE" default:"false"`
}

// Selected returns the effective threshold mode.
func (t ThresholdConfig) Selected() types.ThresholdMode {
	if t.DemoMode {
		return types.ThresholdModeDemo
	}
	return types.ThresholdMode(t.Mode)
}

// FleetConfig holds the Geotab login and client tuning.
type FleetConfig struct {
	Server   string        `envconfig:"GEOTAB_SERVER" default:"my.geotab.com"`
	Database string        `envconfig:"GEOTAB_DATABASE"`
	Username string        `envconfig:"GEOTAB_USERNAME"`
	Password SecretString  `envconfig:"GEOTAB_PASSWORD"`
	Timeout  time.Duration `envconfig:"GEOTAB_TIMEOUT" default:"15s"`
	// StubMode replaces Geotab with a logging stub for local development.
	StubMode bool `envconfig:"FLEET_STUB_MODE" default:"false"`
}

// Credentials returns the login in the form the session manager consumes.
func (f FleetConfig) Credentials() types.FleetCredentials {
	return types.FleetCredentials{
		Server:   f.Server,
		Database: f.Database,
		UserName: f.Username,
		Password: f.Password,
	}
}

// WeatherConfig holds the Open-Meteo client settings.
type WeatherConfig struct {
	BaseURL string        `envconfig:"WEATHER_BASE_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"url"`
	Timeout time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
}

// SupervisorConfig enables the e-mail copy of hold and all-clear notices.
type SupervisorConfig struct {
	Emails       []string     `envconfig:"SUPERVISOR_EMAILS"`
	SMTPHost     string       `envconfig:"SMTP_HOST"`
	SMTPPort     int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string       `envconfig:"SMTP_USERNAME"`
	SMTPPassword SecretString `envconfig:"SMTP_PASSWORD"`
	From         string       `envconfig:"SMTP_FROM" default:"alerts@clearskies.local"`
}

// Enabled reports whether supervisor mail is configured.
func (s SupervisorConfig) Enabled() bool {
	return len(s.Recipients()) > 0 && s.SMTPHost != ""
}

// Recipients returns the trimmed, non-empty supervisor addresses.
func (s SupervisorConfig) Recipients() []string {
	out := make([]string, 0, len(s.Emails))
	for _, e := range s.Emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
