package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/model"
)

const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultTokenTTL        = 24 * time.Hour
	DefaultMaxImageBytes   = 10 << 20
	DefaultLogsDir         = "logs"
)

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	AllowedOrigins  []string      `yaml:"allowedOrigins,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty" validate:"gte=0"`
}

// DatabaseConfig selects the store. DSN is a postgres URL or a sqlite file path.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// AuthConfig configures token issuing
type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"tokenTTL,omitempty" validate:"gt=0"`
	Issuer    string        `yaml:"issuer,omitempty"`
	Audience  string        `yaml:"audience,omitempty"`
	// DevBypass trusts the X-User-Sub header as the caller's identity
	DevBypass bool `yaml:"devBypass,omitempty"`
}

// RedisConfig enables shared token revocation when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" validate:"gte=0"`
}

// StorageConfig configures the S3-compatible image bucket
type StorageConfig struct {
	Bucket          string `yaml:"bucket" validate:"required"`
	Region          string `yaml:"region" validate:"required"`
	Endpoint        string `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	PublicBaseURL   string `yaml:"publicBaseURL" validate:"required,url"`
	AccessKeyID     string `yaml:"accessKeyID,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty"`
	MaxImageBytes   int64  `yaml:"maxImageBytes,omitempty" validate:"gt=0"`
}

// MapConfig configures the map and geocoding endpoints
type MapConfig struct {
	MapboxToken    string     `yaml:"mapboxToken,omitempty"`
	DefaultCenter  *geo.Point `yaml:"defaultCenter,omitempty"`
	GeocodeBaseURL string     `yaml:"geocodeBaseURL,omitempty" validate:"omitempty,url"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// RecurringTask is a task template materialised on each rrule occurrence
type RecurringTask struct {
	Name        string        `yaml:"name" validate:"required"`
	RRule       string        `yaml:"rrule" validate:"required"`
	Title       string        `yaml:"title" validate:"required,max=200"`
	Description string        `yaml:"description,omitempty" validate:"max=2000"`
	Location    string        `yaml:"location,omitempty" validate:"max=200"`
	Latitude    *float64      `yaml:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64      `yaml:"longitude,omitempty" validate:"omitempty,longitude"`
	Urgency     model.Urgency `yaml:"urgency,omitempty" validate:"omitempty,oneof=low medium high critical"`
	SkillTags   []string      `yaml:"skillTags,omitempty" validate:"max=10"`
}

// Config represents the application configuration
type Config struct {
	Server         ServerConfig    `yaml:"server"`
	Database       DatabaseConfig  `yaml:"database"`
	Auth           AuthConfig      `yaml:"auth"`
	Redis          RedisConfig     `yaml:"redis,omitempty"`
	Storage        StorageConfig   `yaml:"storage"`
	Map            MapConfig       `yaml:"map,omitempty"`
	Logging        LoggingConfig   `yaml:"logging,omitempty"`
	GmailUserID    string          `yaml:"gmailUserID,omitempty"`
	GmailSender    string          `yaml:"gmailSender,omitempty" validate:"omitempty,email"`
	BoardSheetID   string          `yaml:"boardSheetID,omitempty"`
	RecurringTasks []RecurringTask `yaml:"recurringTasks,omitempty" validate:"dive"`
}

// Center returns the configured default map center
func (c *Config) Center() geo.Point {
	if c.Map.DefaultCenter != nil {
		return *c.Map.DefaultCenter
	}
	return geo.DefaultCenter
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadWithEnv loads helpboard_config.<env>.yaml from the current directory or
// the user's home directory, then overlays secrets from the environment
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findFile(configFileName(env))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDotEnv sets variables from a .env file without overriding ones already
// present. A missing file is not an error.
func LoadDotEnv(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for key, value := range values {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// ApplyEnv overlays secrets from environment variables onto cfg
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	overlay := func(target *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = v
		}
	}

	overlay(&cfg.Database.DSN, "DATABASE_URL")
	overlay(&cfg.Auth.JWTSecret, "JWT_SECRET")
	overlay(&cfg.Map.MapboxToken, "MAPBOX_TOKEN")
	overlay(&cfg.Storage.AccessKeyID, "S3_ACCESS_KEY_ID")
	overlay(&cfg.Storage.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	overlay(&cfg.Redis.Password, "REDIS_PASSWORD")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = DefaultTokenTTL
	}
	if cfg.Storage.MaxImageBytes == 0 {
		cfg.Storage.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = DefaultLogsDir
	}
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	seen := make(map[string]bool, len(cfg.RecurringTasks))
	for i, rt := range cfg.RecurringTasks {
		if seen[rt.Name] {
			return fmt.Errorf("duplicate recurringTasks name %q", rt.Name)
		}
		seen[rt.Name] = true

		if (rt.Latitude == nil) != (rt.Longitude == nil) {
			return fmt.Errorf("recurringTasks[%d]: latitude and longitude must be set together", i)
		}

		if _, err := rrule.StrToRRule(rt.RRule); err != nil {
			return fmt.Errorf("invalid rrule in recurringTasks[%d]: %w", i, err)
		}
	}

	return nil
}

func configFileName(env string) string {
	if env == "" {
		return "helpboard_config.yaml"
	}
	return "helpboard_config." + env + ".yaml"
}

// findFile searches for name in the current directory, then the home directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
