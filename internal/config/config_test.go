package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/helpboard/pkg/core/geo"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "data/helpboard.db"},
		Auth:     AuthConfig{JWTSecret: "0123456789abcdef", TokenTTL: time.Hour},
		Storage: StorageConfig{
			Bucket:        "task-images",
			Region:        "us-east-1",
			PublicBaseURL: "https://cdn.example.com/task-images",
			MaxImageBytes: DefaultMaxImageBytes,
		},
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = "localhost:6379"
	cfg.GmailSender = "board@example.com"
	cfg.RecurringTasks = []RecurringTask{
		{
			Name:      "weekly-pantry",
			RRule:     "FREQ=WEEKLY;BYDAY=SA",
			Title:     "Food pantry shift",
			Latitude:  floatPtr(42.3398),
			Longitude: floatPtr(-71.0691),
			Urgency:   "medium",
			SkillTags: []string{"cooking"},
		},
	}

	err := Validate(cfg)
	assert.NoError(t, err)
}

func TestValidate_MinimalConfig(t *testing.T) {
	err := Validate(validConfig())
	assert.NoError(t, err)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *Config)
		contains string
	}{
		{
			name:     "unknown driver",
			mutate:   func(cfg *Config) { cfg.Database.Driver = "mysql" },
			contains: "validation failed",
		},
		{
			name:     "short jwt secret",
			mutate:   func(cfg *Config) { cfg.Auth.JWTSecret = "short" },
			contains: "validation failed",
		},
		{
			name:     "missing bucket",
			mutate:   func(cfg *Config) { cfg.Storage.Bucket = "" },
			contains: "validation failed",
		},
		{
			name:     "bad redis addr",
			mutate:   func(cfg *Config) { cfg.Redis.Addr = "no port here" },
			contains: "validation failed",
		},
		{
			name:     "bad default center",
			mutate:   func(cfg *Config) { cfg.Map.DefaultCenter = &geo.Point{Lat: 95, Lng: 0} },
			contains: "validation failed",
		},
		{
			name: "invalid rrule",
			mutate: func(cfg *Config) {
				cfg.RecurringTasks = []RecurringTask{{Name: "a", RRule: "INVALID_RRULE_SYNTAX", Title: "t"}}
			},
			contains: "invalid rrule in recurringTasks[0]",
		},
		{
			name: "duplicate recurring name",
			mutate: func(cfg *Config) {
				cfg.RecurringTasks = []RecurringTask{
					{Name: "a", RRule: "FREQ=DAILY", Title: "t"},
					{Name: "a", RRule: "FREQ=DAILY", Title: "t"},
				}
			},
			contains: "duplicate recurringTasks name",
		},
		{
			name: "latitude without longitude",
			mutate: func(cfg *Config) {
				cfg.RecurringTasks = []RecurringTask{{Name: "a", RRule: "FREQ=DAILY", Title: "t", Latitude: floatPtr(1)}}
			},
			contains: "must be set together",
		},
		{
			name: "bad urgency",
			mutate: func(cfg *Config) {
				cfg.RecurringTasks = []RecurringTask{{Name: "a", RRule: "FREQ=DAILY", Title: "t", Urgency: "asap"}}
			},
			contains: "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadFromPath_ValidConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-the-environment-secret")
	t.Setenv("DATABASE_URL", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "helpboard_config.test.yaml")

	validYAML := `
server:
  allowedOrigins: ["http://localhost:5173"]
  shutdownTimeout: 10s
database:
  driver: sqlite
  dsn: data/test.db
auth:
  jwtSecret: overridden-by-environment
  devBypass: true
storage:
  bucket: task-images
  region: us-east-1
  publicBaseURL: https://cdn.example.com/task-images
map:
  defaultCenter:
    lat: 40.7484
    lng: -73.9857
recurringTasks:
  - name: weekly-pantry
    rrule: FREQ=WEEKLY;BYDAY=SA
    title: Food pantry shift
    urgency: medium
`

	err := os.WriteFile(configPath, []byte(validYAML), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "data/test.db", cfg.Database.DSN)
	assert.Equal(t, "from-the-environment-secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Auth.DevBypass)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, int64(DefaultMaxImageBytes), cfg.Storage.MaxImageBytes)
	assert.Equal(t, geo.Point{Lat: 40.7484, Lng: -73.9857}, cfg.Center())
	require.Len(t, cfg.RecurringTasks, 1)
	assert.Equal(t, "weekly-pantry", cfg.RecurringTasks[0].Name)
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("server: [unclosed"), 0644)
	require.NoError(t, err)

	_, err = LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFromPath_FileNotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/helpboard_config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestCenter_Default(t *testing.T) {
	assert.Equal(t, geo.DefaultCenter, validConfig().Center())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":         "postgres://localhost/helpboard",
		"MAPBOX_TOKEN":         "pk.test",
		"S3_ACCESS_KEY_ID":     "AKIA",
		"S3_SECRET_ACCESS_KEY": "secret",
		"REDIS_PASSWORD":       "   ",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := validConfig()
	cfg.Redis.Password = "from-file"
	ApplyEnv(cfg, lookup)

	assert.Equal(t, "postgres://localhost/helpboard", cfg.Database.DSN)
	assert.Equal(t, "0123456789abcdef", cfg.Auth.JWTSecret)
	assert.Equal(t, "pk.test", cfg.Map.MapboxToken)
	assert.Equal(t, "AKIA", cfg.Storage.AccessKeyID)
	assert.Equal(t, "secret", cfg.Storage.SecretAccessKey)
	// blank values do not clobber the file
	assert.Equal(t, "from-file", cfg.Redis.Password)
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	err := os.WriteFile(envPath, []byte("HELPBOARD_TEST_NEW=from-file\nHELPBOARD_TEST_SET=from-file\n"), 0644)
	require.NoError(t, err)

	t.Setenv("HELPBOARD_TEST_SET", "already-set")
	t.Cleanup(func() { os.Unsetenv("HELPBOARD_TEST_NEW") })

	require.NoError(t, LoadDotEnv(envPath))

	assert.Equal(t, "from-file", os.Getenv("HELPBOARD_TEST_NEW"))
	assert.Equal(t, "already-set", os.Getenv("HELPBOARD_TEST_SET"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}
