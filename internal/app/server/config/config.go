package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env    string
	DB     DB
	Server Server
	Sync   Sync
}

type DB struct {
	Driver          string
	DatabaseURI     string
	Migrations      string
	ConnectAttempts int
}

type Server struct {
	RunAddress       string
	APITokenHash     string
	RateLimitEnabled bool
	ShutdownTimeout  time.Duration
}

type Sync struct {
	AlgorithmVersions    []string
	AppVersionConstraint string
	ScoreTolerance       float64
	MaxServerChanges     int
	ErrorHistorySize     int
}

// Load читает .env (если он есть) и переменные окружения
func Load() (*Config, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_uri", "propsync.db")
	v.SetDefault("algorithm_versions", "1.0.0,1.0.1,1.1.0")
	v.SetDefault("app_version_constraint", ">= 1.0.0")
	v.SetDefault("score_tolerance", 0.1)
	v.SetDefault("max_server_changes", 0)
	v.SetDefault("error_history_size", 100)
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("db_connect_attempts", 5)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	cfg := &Config{
		Env: v.GetString("app_env"),
		DB: DB{
			Driver:          strings.ToLower(v.GetString("database_driver")),
			DatabaseURI:     v.GetString("database_uri"),
			Migrations:      v.GetString("migrations_path"),
			ConnectAttempts: v.GetInt("db_connect_attempts"),
		},
		Server: Server{
			RunAddress:       v.GetString("run_address"),
			APITokenHash:     v.GetString("api_token_hash"),
			RateLimitEnabled: v.GetBool("rate_limit_enabled"),
			ShutdownTimeout:  v.GetDuration("shutdown_timeout"),
		},
		Sync: Sync{
			AlgorithmVersions:    splitList(v.GetString("algorithm_versions")),
			AppVersionConstraint: v.GetString("app_version_constraint"),
			ScoreTolerance:       v.GetFloat64("score_tolerance"),
			MaxServerChanges:     v.GetInt("max_server_changes"),
			ErrorHistorySize:     v.GetInt("error_history_size"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DB.Driver)
	}
	if c.DB.DatabaseURI == "" {
		return errors.New("DATABASE_URI is required")
	}
	if c.Sync.ScoreTolerance <= 0 {
		return fmt.Errorf("SCORE_TOLERANCE must be positive, got %v", c.Sync.ScoreTolerance)
	}
	if c.Sync.MaxServerChanges < 0 {
		return fmt.Errorf("MAX_SERVER_CHANGES must not be negative, got %d", c.Sync.MaxServerChanges)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
