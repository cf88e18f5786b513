package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loaders.
const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvDuoClientID     = "DUO_CLIENT_ID"
	EnvDuoClientSecret = "DUO_CLIENT_SECRET"
	EnvDuoAPIHost      = "DUO_API_HOST"
	EnvDuoRedirectURL  = "DUO_REDIRECT_URL"
	EnvFrontCallback   = "FRONT_CALLBACK_URL"
	EnvScorerURL       = "ANOMALY_SCORER_URL"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvGoogleClientID  = "GOOGLE_CLIENT_ID"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// DuoConfig holds the external MFA provider credentials.
type DuoConfig struct {
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
	APIHost      string `yaml:"api-host"`
	RedirectURL  string `yaml:"redirect-url"`
}

// Configured reports whether the Duo provider can be used.
func (c DuoConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.APIHost) != ""
}

// ScorerConfig holds the anomaly-scoring endpoint settings.
type ScorerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig holds optional Redis settings for the challenge store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// FrontendConfig holds front-end redirect targets.
type FrontendConfig struct {
	CallbackURL string `yaml:"callback-url"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadDuoConfig loads Duo settings from the YAML config file with env overrides.
func LoadDuoConfig(configPath string) (DuoConfig, error) {
	// fileConfig maps the YAML fields needed for Duo settings.
	type fileConfig struct {
		Duo DuoConfig `yaml:"duo"`
	}

	var result DuoConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Duo
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvDuoClientID)); v != "" {
		result.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDuoClientSecret)); v != "" {
		result.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDuoAPIHost)); v != "" {
		result.APIHost = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDuoRedirectURL)); v != "" {
		result.RedirectURL = v
	}
	return result, nil
}

// defaultScorerTimeout bounds the anomaly-scoring call.
const defaultScorerTimeout = 2 * time.Second

// LoadScorerConfig loads anomaly-scorer settings from the YAML config file.
func LoadScorerConfig(configPath string) (ScorerConfig, error) {
	// fileConfig maps the YAML fields needed for scorer settings.
	type fileConfig struct {
		Scorer ScorerConfig `yaml:"anomaly-scorer"`
	}

	result := ScorerConfig{Timeout: defaultScorerTimeout}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Scorer.URL != "" {
			result = cfg.Scorer
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvScorerURL)); v != "" {
		result.URL = v
	}
	if result.Timeout <= 0 {
		result.Timeout = defaultScorerTimeout
	}
	return result, nil
}

// LoadRedisConfig loads Redis settings from the YAML config file.
func LoadRedisConfig(configPath string) (RedisConfig, error) {
	// fileConfig maps the YAML fields needed for Redis settings.
	type fileConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}

	result := RedisConfig{Prefix: "mfa"}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Redis.Addr != "" {
			result = cfg.Redis
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		result.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisPassword)); v != "" {
		result.Password = v
	}
	if result.DB < 0 {
		result.DB = 0
	}
	if strings.TrimSpace(result.Prefix) == "" {
		result.Prefix = "mfa"
	}
	return result, nil
}

// GoogleConfig holds the external identity-provider settings.
type GoogleConfig struct {
	ClientID string `yaml:"client-id"`
	// TokenInfoURL overrides the verification endpoint, used in tests.
	TokenInfoURL string `yaml:"token-info-url"`
}

// Configured reports whether Google sign-in can be used.
func (c GoogleConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// LoadGoogleConfig loads Google sign-in settings from the YAML config file.
func LoadGoogleConfig(configPath string) (GoogleConfig, error) {
	// fileConfig maps the YAML fields needed for Google settings.
	type fileConfig struct {
		Google GoogleConfig `yaml:"google"`
	}

	var result GoogleConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Google
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvGoogleClientID)); v != "" {
		result.ClientID = v
	}
	return result, nil
}

// defaultFrontCallbackURL receives MFA callback redirects in development.
const defaultFrontCallbackURL = "http://localhost:5173/auth/callback"

// LoadFrontendConfig loads front-end redirect settings from the YAML config file.
func LoadFrontendConfig(configPath string) (FrontendConfig, error) {
	// fileConfig maps the YAML fields needed for frontend settings.
	type fileConfig struct {
		Frontend FrontendConfig `yaml:"frontend"`
	}

	result := FrontendConfig{CallbackURL: defaultFrontCallbackURL}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Frontend.CallbackURL != "" {
			result = cfg.Frontend
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvFrontCallback)); v != "" {
		result.CallbackURL = v
	}
	return result, nil
}
