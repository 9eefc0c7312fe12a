package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/classifier"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/plaid"
	"github.com/Veraticus/gigproof/internal/platform"
	"github.com/Veraticus/gigproof/internal/sheets"
	"github.com/Veraticus/gigproof/internal/verification"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// GIGPROOF_DATABASE_PATH.
const EnvPrefix = "GIGPROOF"

// Config is the fully resolved application configuration.
type Config struct {
	Logging        LoggingConfig        `mapstructure:"logging"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Sheets         SheetsConfig         `mapstructure:"sheets"`
	Plaid          PlaidConfig          `mapstructure:"plaid"`
	Server         ServerConfig         `mapstructure:"server"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Verification   VerificationConfig   `mapstructure:"verification"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PlaidConfig holds Plaid API credentials.
type PlaidConfig struct {
	ClientID    string `mapstructure:"client_id"`
	Secret      string `mapstructure:"secret"`
	Environment string `mapstructure:"environment"`
	RedirectURI string `mapstructure:"redirect_uri"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	UserHeader     string        `mapstructure:"user_header"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TrustProxy     bool          `mapstructure:"trust_proxy"`
}

// PlatformConfig is a user-supplied platform keyword entry.
type PlatformConfig struct {
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
}

// ClassificationConfig selects the classification strategy and extra
// platform keywords.
type ClassificationConfig struct {
	Environment string           `mapstructure:"environment"`
	Platforms   []PlatformConfig `mapstructure:"platforms"`
}

// VerificationConfig holds the lookup policy and integrity hashing secret.
type VerificationConfig struct {
	HashSecret             string        `mapstructure:"hash_secret"`
	HourlyLimit            int           `mapstructure:"hourly_limit"`
	DailyLimit             int           `mapstructure:"daily_limit"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	LockoutDuration        time.Duration `mapstructure:"lockout_duration"`
	Validity               time.Duration `mapstructure:"validity"`
}

// SheetsConfig holds Google Sheets export settings.
type SheetsConfig struct {
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	RefreshToken       string `mapstructure:"refresh_token"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	TimeZone           string `mapstructure:"time_zone"`
	VerifyURL          string `mapstructure:"verify_url"`
}

// DefaultDir is the default configuration and data directory.
const DefaultDir = "~/.config/gigproof"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	policy := verification.DefaultPolicy()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("database.path", filepath.Join(DefaultDir, "gigproof.db"))
	v.SetDefault("plaid.environment", "sandbox")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.user_header", "X-User-ID")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)
	v.SetDefault("server.trust_proxy", true)
	v.SetDefault("classification.environment", string(classifier.EnvironmentProduction))
	v.SetDefault("verification.hourly_limit", policy.HourlyLimit)
	v.SetDefault("verification.daily_limit", policy.DailyLimit)
	v.SetDefault("verification.max_consecutive_failures", policy.MaxConsecutiveFailures)
	v.SetDefault("verification.lockout_duration", policy.LockoutDuration)
	v.SetDefault("verification.validity", policy.Validity)
	v.SetDefault("sheets.time_zone", sheets.DefaultConfig().TimeZone)
}

// Keys without defaults must be bound explicitly for environment overrides
// to reach Unmarshal.
var envOnlyKeys = []string{
	"plaid.client_id",
	"plaid.secret",
	"plaid.redirect_uri",
	"verification.hash_secret",
	"sheets.client_id",
	"sheets.client_secret",
	"sheets.refresh_token",
	"sheets.service_account_path",
	"sheets.spreadsheet_id",
	"sheets.verify_url",
}

// NewViper returns a viper instance with defaults and environment
// overrides wired up.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on. Plaid and Sheets
// credentials are checked only when those integrations are used.
func (c *Config) Validate() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: log format must be console or json", common.ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", common.ErrMissingConfig)
	}
	if _, err := classifier.ParseEnvironment(c.Classification.Environment); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if _, err := c.PlatformTable(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if _, err := c.Hasher(); err != nil {
		return fmt.Errorf("%w: verification hash secret: %w", common.ErrInvalidConfig, err)
	}
	if c.Server.UserHeader == "" {
		return fmt.Errorf("%w: server user header is required", common.ErrMissingConfig)
	}
	return nil
}

// Policy returns the verification lookup policy.
func (c *Config) Policy() verification.Policy {
	return verification.Policy{
		HourlyLimit:            c.Verification.HourlyLimit,
		DailyLimit:             c.Verification.DailyLimit,
		MaxConsecutiveFailures: c.Verification.MaxConsecutiveFailures,
		LockoutDuration:        c.Verification.LockoutDuration,
		Validity:               c.Verification.Validity,
	}
}

// Hasher returns the integrity hasher: keyed HMAC when a secret is set,
// plain SHA-256 otherwise.
func (c *Config) Hasher() (verification.Hasher, error) {
	if c.Verification.HashSecret == "" {
		return verification.SHA256Hasher{}, nil
	}
	return verification.NewHMACHasher(c.Verification.HashSecret)
}

// PlatformTable returns the default platforms followed by any configured
// extras.
func (c *Config) PlatformTable() (platform.Table, error) {
	platforms := platform.DefaultPlatforms()
	for _, p := range c.Classification.Platforms {
		platforms = append(platforms, platform.Platform{Name: p.Name, Keywords: p.Keywords})
	}
	return platform.NewTable(platforms)
}

// ClassifierEnvironment returns the parsed classification environment.
func (c *Config) ClassifierEnvironment() classifier.Environment {
	env, err := classifier.ParseEnvironment(c.Classification.Environment)
	if err != nil {
		return classifier.EnvironmentProduction
	}
	return env
}

// PlaidClientConfig returns the Plaid client configuration.
func (c *Config) PlaidClientConfig() plaid.Config {
	return plaid.Config{
		ClientID:    c.Plaid.ClientID,
		Secret:      c.Plaid.Secret,
		Environment: c.Plaid.Environment,
		RedirectURI: c.Plaid.RedirectURI,
	}
}

// SheetsWriterConfig returns the Sheets writer configuration with
// GOOGLE_SHEETS_* environment fallbacks applied.
func (c *Config) SheetsWriterConfig() sheets.Config {
	cfg := sheets.DefaultConfig()
	cfg.ClientID = c.Sheets.ClientID
	cfg.ClientSecret = c.Sheets.ClientSecret
	cfg.RefreshToken = c.Sheets.RefreshToken
	cfg.ServiceAccountPath = c.Sheets.ServiceAccountPath
	cfg.SpreadsheetID = c.Sheets.SpreadsheetID
	cfg.VerifyURL = c.Sheets.VerifyURL
	if c.Sheets.TimeZone != "" {
		cfg.TimeZone = c.Sheets.TimeZone
	}
	cfg.LoadFromEnv()
	cfg.ServiceAccountPath = ExpandPath(cfg.ServiceAccountPath)
	return cfg
}
