package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	SeedFile   string
	LogLevel   string
	Env        string
	// Token settings
	JwtSecret     string
	TokenTTL      time.Duration
	TokenIssuer   string
	ResourceID    string
	RequiredScope string
	// HTTP settings
	RateLimitPerMinute int
	AllowedOrigins     []string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Bind registers defaults and environment lookups on v. Keys are the
// lower-cased environment variable names, e.g. "db_adapter" reads DB_ADAPTER.
func Bind(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_adapter", "memory")
	v.SetDefault("sqlite_file", "./data/jwtauth.db")
	v.SetDefault("seed_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("env", "")
	v.SetDefault("jwt_secret", "change-me")
	v.SetDefault("token_ttl", 12*time.Hour)
	v.SetDefault("token_issuer", "")
	v.SetDefault("resource_id", "my_resource_id")
	v.SetDefault("required_scope", "foobar_scope")
	v.SetDefault("rate_limit_per_minute", 600)
	v.SetDefault("cors_allowed_origins", []string{"*"})
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "jwtauth")
	v.SetDefault("postgres_password", "jwtauth")
	v.SetDefault("postgres_db", "jwtauth")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// legacy DB_* names
	_ = v.BindEnv("postgres_host", "POSTGRES_HOST", "DB_HOST")
	_ = v.BindEnv("postgres_port", "POSTGRES_PORT", "DB_PORT")
	_ = v.BindEnv("postgres_user", "POSTGRES_USER", "DB_USER")
	_ = v.BindEnv("postgres_password", "POSTGRES_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("postgres_db", "POSTGRES_DB", "DB_NAME")
	_ = v.BindEnv("postgres_sslmode", "POSTGRES_SSLMODE", "DB_SSLMODE")
	_ = v.BindEnv("env", "ENV", "NODE_ENV")
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// New loads configuration from the environment only.
func New() (*Config, error) {
	v := viper.New()
	Bind(v)
	return Load(v)
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		Port:               v.GetString("port"),
		DBAdapter:          strings.ToLower(v.GetString("db_adapter")),
		SQLiteFile:         v.GetString("sqlite_file"),
		SeedFile:           v.GetString("seed_file"),
		LogLevel:           v.GetString("log_level"),
		Env:                v.GetString("env"),
		JwtSecret:          v.GetString("jwt_secret"),
		TokenTTL:           v.GetDuration("token_ttl"),
		TokenIssuer:        v.GetString("token_issuer"),
		ResourceID:         v.GetString("resource_id"),
		RequiredScope:      v.GetString("required_scope"),
		RateLimitPerMinute: v.GetInt("rate_limit_per_minute"),
		AllowedOrigins:     v.GetStringSlice("cors_allowed_origins"),
		PostgresDSN:        v.GetString("postgres_dsn"),
		PostgresHost:       v.GetString("postgres_host"),
		PostgresPort:       v.GetString("postgres_port"),
		PostgresUser:       v.GetString("postgres_user"),
		PostgresPassword:   v.GetString("postgres_password"),
		PostgresDB:         v.GetString("postgres_db"),
		PostgresSSLMode:    v.GetString("postgres_sslmode"),
	}

	switch c.DBAdapter {
	case "memory":
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.JwtSecret == "" {
		return nil, errors.New("JWT_SECRET must not be empty")
	}
	if c.IsProduction() && c.JwtSecret == "change-me" {
		return nil, errors.New("JWT_SECRET must be set in production")
	}
	if c.TokenTTL < time.Second {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %s (minimum 1s)", c.TokenTTL)
	}
	if c.RequiredScope == "" {
		return nil, errors.New("REQUIRED_SCOPE must not be empty")
	}
	if c.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %d", c.RateLimitPerMinute)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
