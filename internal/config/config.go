package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPublicBaseURL is used for rewritten attachment URLs when nothing else is configured.
const DefaultPublicBaseURL = "https://backoffice.eternalgy.me"

const defaultJWTSecret = "default_super_secret_key"

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Bubble   BubbleConfig
	Files    FilesConfig
	S3       S3Config
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Receipt  ReceiptConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name          string
	Env           string
	Port          string
	PublicBaseURL string
	Timezone      string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	LogLevel        string
}

// BubbleConfig holds the legacy platform Data API settings
type BubbleConfig struct {
	BaseURL  string // e.g. https://app.example.com/version-live/api/1.1/obj
	APIToken string
	PageSize int
	Timeout  time.Duration
}

// FilesConfig holds attachment storage settings
type FilesConfig struct {
	Driver          string // local, s3
	RootDir         string
	LegacyHosts     []string
	DownloadTimeout time.Duration
}

// S3Config holds S3-compatible object storage settings
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	UseSSL       bool
}

// RedisConfig holds the optional progress relay connection
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

// JWTConfig holds token verification settings
type JWTConfig struct {
	Secret string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level        string // debug, info, warn, error
	Format       string // json, console
	Output       string // stdout, stderr, or file path
	ActivityFile string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	CORSAllowOrigins []string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// ReceiptConfig points at the external receipt classifier
type ReceiptConfig struct {
	AnalyzerURL string
	Timeout     time.Duration
}

// Load reads configuration with the following priority (highest first):
//  1. environment variables with BACKOFFICE_ prefix (e.g. BACKOFFICE_DATABASE_PASSWORD)
//  2. configs/.env and .env files (loaded into the environment)
//  3. config.toml
//  4. built-in defaults
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/app")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:          v.GetString("app.name"),
			Env:           v.GetString("app.env"),
			Port:          v.GetString("app.port"),
			PublicBaseURL: v.GetString("app.public_base_url"),
			Timezone:      v.GetString("app.timezone"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Bubble: BubbleConfig{
			BaseURL:  v.GetString("bubble.base_url"),
			APIToken: v.GetString("bubble.api_token"),
			PageSize: v.GetInt("bubble.page_size"),
			Timeout:  v.GetDuration("bubble.timeout"),
		},
		Files: FilesConfig{
			Driver:          v.GetString("files.driver"),
			RootDir:         v.GetString("files.root_dir"),
			LegacyHosts:     splitList(v.GetStringSlice("files.legacy_hosts")),
			DownloadTimeout: v.GetDuration("files.download_timeout"),
		},
		S3: S3Config{
			Endpoint:     v.GetString("s3.endpoint"),
			Region:       v.GetString("s3.region"),
			Bucket:       v.GetString("s3.bucket"),
			AccessKey:    v.GetString("s3.access_key"),
			SecretKey:    v.GetString("s3.secret_key"),
			UsePathStyle: v.GetBool("s3.use_path_style"),
			UseSSL:       v.GetBool("s3.use_ssl"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Log: LogConfig{
			Level:        v.GetString("log.level"),
			Format:       v.GetString("log.format"),
			Output:       v.GetString("log.output"),
			ActivityFile: v.GetString("log.activity_file"),
		},
		HTTP: HTTPConfig{
			CORSAllowOrigins: splitList(v.GetStringSlice("http.cors_allow_origins")),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
		},
		Receipt: ReceiptConfig{
			AnalyzerURL: v.GetString("receipt.analyzer_url"),
			Timeout:     v.GetDuration("receipt.timeout"),
		},
	}

	// Legacy deployments set the plain variable.
	if legacy := os.Getenv("PUBLIC_BASE_URL"); legacy != "" && os.Getenv("BACKOFFICE_APP_PUBLIC_BASE_URL") == "" {
		cfg.App.PublicBaseURL = legacy
	}
	cfg.App.PublicBaseURL = strings.TrimRight(cfg.App.PublicBaseURL, "/")
	if cfg.App.PublicBaseURL == "" {
		cfg.App.PublicBaseURL = DefaultPublicBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backoffice")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.public_base_url", DefaultPublicBaseURL)
	v.SetDefault("app.timezone", "Asia/Kuala_Lumpur")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "backoffice")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("bubble.base_url", "")
	v.SetDefault("bubble.page_size", 100)
	v.SetDefault("bubble.timeout", 30*time.Second)

	v.SetDefault("files.driver", "local")
	v.SetDefault("files.root_dir", "storage/files")
	v.SetDefault("files.legacy_hosts", []string{"bubble.io", "appforest_uf", "cdn.bubble.io"})
	v.SetDefault("files.download_timeout", 60*time.Second)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_path_style", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.channel", "backoffice:sync-progress")

	v.SetDefault("jwt.secret", defaultJWTSecret)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.activity_file", "logs/activity.log")

	v.SetDefault("http.cors_allow_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 0)

	v.SetDefault("receipt.timeout", 45*time.Second)
}

// splitList accepts both real lists and a single comma separated env value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks for configuration combinations that cannot work
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database name is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if _, err := url.ParseRequestURI(c.App.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid public base url: %w", err)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	switch c.Files.Driver {
	case "local":
		if c.Files.RootDir == "" {
			return errors.New("files root_dir is required for the local driver")
		}
	case "s3":
		if c.S3.Bucket == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return errors.New("s3 bucket, access_key and secret_key are required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown files driver %q", c.Files.Driver)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return errors.New("redis host is required when redis is enabled")
	}
	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return errors.New("jwt secret must be set in production")
	}
	return nil
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Location returns the business timezone used for calendar-date comparisons
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the postgres connection string
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// Addr returns the redis host:port pair
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
