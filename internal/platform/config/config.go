// Package config loads and validates client configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgstrings "tiqr/pkg/platform/strings"
)

// Config holds the client configuration.
type Config struct {
	// ProtocolVersion is the tiqr protocol version this client speaks.
	ProtocolVersion int `mapstructure:"TIQR_PROTOCOL_VERSION"`
	// ProtocolCompatibilityMode disables the server protocol version check on enrollment.
	ProtocolCompatibilityMode bool `mapstructure:"TIQR_PROTOCOL_COMPATIBILITY_MODE"`
	// EnforceChallengeHosts is a comma-separated list of trusted host suffixes. Empty disables the check.
	EnforceChallengeHosts string `mapstructure:"TIQR_ENFORCE_CHALLENGE_HOSTS"`
	EnrollPathParam       string `mapstructure:"TIQR_ENROLL_PATH_PARAM"`
	AuthPathParam         string `mapstructure:"TIQR_AUTH_PATH_PARAM"`
	EnrollScheme          string `mapstructure:"TIQR_ENROLL_SCHEME"`
	AuthScheme            string `mapstructure:"TIQR_AUTH_SCHEME"`

	DatabasePath    string `mapstructure:"TIQR_DATABASE_PATH"`
	SecretsPath     string `mapstructure:"TIQR_SECRETS_PATH"`
	SecretsPassword string `mapstructure:"TIQR_SECRETS_PASSWORD"`
	// DeviceKeyPath holds the software key handle used for biometric session keys.
	DeviceKeyPath string `mapstructure:"TIQR_DEVICE_KEY_PATH"`
	// RedisURL selects the Redis notification cache; empty keeps the cache in memory.
	RedisURL string `mapstructure:"TIQR_REDIS_URL"`

	HTTPTimeout string `mapstructure:"TIQR_HTTP_TIMEOUT"`
	Workers     int    `mapstructure:"TIQR_WORKERS"`

	Language            string `mapstructure:"TIQR_LANGUAGE"`
	NotificationType    string `mapstructure:"TIQR_NOTIFICATION_TYPE"`
	NotificationAddress string `mapstructure:"TIQR_NOTIFICATION_ADDRESS"`

	LogLevel  string `mapstructure:"TIQR_LOG_LEVEL"`
	LogFormat string `mapstructure:"TIQR_LOG_FORMAT"`
	// MetricsTextfile receives the collected metrics in Prometheus text format
	// when the process exits. Empty disables the export.
	MetricsTextfile string `mapstructure:"TIQR_METRICS_TEXTFILE"`

	// KDFTime and KDFMemoryKB tune the argon2id cost of PIN session keys.
	KDFTime     uint32 `mapstructure:"TIQR_KDF_TIME"`
	KDFMemoryKB uint32 `mapstructure:"TIQR_KDF_MEMORY_KB"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Env vars override .env.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("TIQR_PROTOCOL_VERSION", 2)
	v.SetDefault("TIQR_PROTOCOL_COMPATIBILITY_MODE", true)
	v.SetDefault("TIQR_ENFORCE_CHALLENGE_HOSTS", "")
	v.SetDefault("TIQR_ENROLL_PATH_PARAM", "tiqrenroll")
	v.SetDefault("TIQR_AUTH_PATH_PARAM", "tiqrauth")
	v.SetDefault("TIQR_ENROLL_SCHEME", "tiqrenroll")
	v.SetDefault("TIQR_AUTH_SCHEME", "tiqrauth")
	v.SetDefault("TIQR_DATABASE_PATH", "tiqr.db")
	v.SetDefault("TIQR_SECRETS_PATH", "tiqr-secrets.db")
	v.SetDefault("TIQR_SECRETS_PASSWORD", "")
	v.SetDefault("TIQR_DEVICE_KEY_PATH", "tiqr-device.key")
	v.SetDefault("TIQR_REDIS_URL", "")
	v.SetDefault("TIQR_HTTP_TIMEOUT", "30s")
	v.SetDefault("TIQR_WORKERS", 4)
	v.SetDefault("TIQR_LANGUAGE", "en")
	v.SetDefault("TIQR_NOTIFICATION_TYPE", "FCM_DIRECT")
	v.SetDefault("TIQR_NOTIFICATION_ADDRESS", "")
	v.SetDefault("TIQR_LOG_LEVEL", "info")
	v.SetDefault("TIQR_LOG_FORMAT", "text")
	v.SetDefault("TIQR_METRICS_TEXTFILE", "")
	v.SetDefault("TIQR_KDF_TIME", 3)
	v.SetDefault("TIQR_KDF_MEMORY_KB", 64*1024)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ProtocolVersion < 1 {
		return errors.New("config: TIQR_PROTOCOL_VERSION must be positive")
	}
	if c.EnrollScheme == "" || c.AuthScheme == "" {
		return errors.New("config: TIQR_ENROLL_SCHEME and TIQR_AUTH_SCHEME must be set")
	}
	if c.EnrollScheme == c.AuthScheme {
		return errors.New("config: TIQR_ENROLL_SCHEME and TIQR_AUTH_SCHEME must differ")
	}
	if c.EnrollPathParam == "" || c.AuthPathParam == "" {
		return errors.New("config: TIQR_ENROLL_PATH_PARAM and TIQR_AUTH_PATH_PARAM must be set")
	}
	if c.EnrollPathParam == c.AuthPathParam {
		return errors.New("config: TIQR_ENROLL_PATH_PARAM and TIQR_AUTH_PATH_PARAM must differ")
	}
	if c.DatabasePath == "" {
		return errors.New("config: TIQR_DATABASE_PATH must be set")
	}
	if c.Workers < 1 || c.Workers > 64 {
		return errors.New("config: TIQR_WORKERS must be between 1 and 64")
	}
	if _, err := time.ParseDuration(c.HTTPTimeout); err != nil {
		return fmt.Errorf("config: TIQR_HTTP_TIMEOUT: %w", err)
	}
	if c.KDFTime == 0 || c.KDFMemoryKB < 8 {
		return errors.New("config: TIQR_KDF_TIME and TIQR_KDF_MEMORY_KB must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return errors.New("config: TIQR_LOG_FORMAT must be text or json")
	}
	return nil
}

// EnforcedHosts returns the trusted host suffixes, lowercased and deduplicated.
func (c *Config) EnforcedHosts() []string {
	if c == nil || c.EnforceChallengeHosts == "" {
		return nil
	}
	return pkgstrings.SplitList(c.EnforceChallengeHosts)
}

// Timeout parses HTTPTimeout. Returns 30s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
