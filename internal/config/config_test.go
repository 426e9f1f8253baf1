package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		t.Setenv("PUBLIC_BASE_URL", "")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "backoffice", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, DefaultPublicBaseURL, cfg.App.PublicBaseURL)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 100, cfg.Bubble.PageSize)
		assert.Equal(t, "local", cfg.Files.Driver)
		assert.Contains(t, cfg.Files.LegacyHosts, "bubble.io")
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, "logs/activity.log", cfg.Log.ActivityFile)
	})

	t.Run("environment variables with prefix override defaults", func(t *testing.T) {
		t.Setenv("BACKOFFICE_APP_PORT", "9000")
		t.Setenv("BACKOFFICE_DATABASE_HOST", "db.internal")
		t.Setenv("BACKOFFICE_DATABASE_PORT", "5433")
		t.Setenv("BACKOFFICE_BUBBLE_PAGE_SIZE", "50")
		t.Setenv("BACKOFFICE_FILES_LEGACY_HOSTS", "legacy.example.com, cdn.example.com")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Bubble.PageSize)
		assert.Equal(t, []string{"legacy.example.com", "cdn.example.com"}, cfg.Files.LegacyHosts)
	})

	t.Run("plain PUBLIC_BASE_URL is honoured and trailing slash trimmed", func(t *testing.T) {
		t.Setenv("PUBLIC_BASE_URL", "https://files.example.com/")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://files.example.com", cfg.App.PublicBaseURL)
	})

	t.Run("s3 driver without bucket fails validation", func(t *testing.T) {
		t.Setenv("BACKOFFICE_FILES_DRIVER", "s3")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:      AppConfig{Env: "development", PublicBaseURL: DefaultPublicBaseURL, Timezone: "UTC"},
			Database: DatabaseConfig{Host: "localhost", Port: 5432, DBName: "backoffice"},
			Files:    FilesConfig{Driver: "local", RootDir: "files"},
			JWT:      JWTConfig{Secret: defaultJWTSecret},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Database.Port = 70000 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Files.Driver = "ftp" }, wantErr: true},
		{name: "redis without host", mutate: func(c *Config) { c.Redis.Enabled = true }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) { c.App.Env = "production" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.App.Timezone = "Mars/Olympus" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", DBName: "backoffice", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/backoffice?sslmode=disable", d.DSN())
}
