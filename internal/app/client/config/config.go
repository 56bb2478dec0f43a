package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerAddress    = "localhost:8080"
	defaultEnv              = "local"
	defaultConfigDir        = ".propsync"
	defaultAlgorithmVersion = "1.0.0"
	defaultAppVersion       = "1.0.0"
	defaultRetryAttempts    = 3
)

type Config struct {
	Env              string `mapstructure:"env"`
	ServerAddress    string `mapstructure:"server_address"`
	DeviceID         string `mapstructure:"device_id"`
	APIToken         string `mapstructure:"api_token"`
	AlgorithmVersion string `mapstructure:"algorithm_version"`
	AppVersion       string `mapstructure:"app_version"`
	ConfigDir        string `mapstructure:"config_dir"`
	// StatePath: файл с отметкой последней синхронизации
	StatePath string `mapstructure:"state_path"`
	// ReplicaPath: локальная SQLite-копия записей
	ReplicaPath   string `mapstructure:"replica_path"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
	EnableTLS     bool   `mapstructure:"enable_tls"`
}

// Load читает файл конфигурации (если он есть) и переменные окружения PROPSYNC_*.
// Пустой cfgFile означает поиск config.yaml в ~/.propsync и текущей директории.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("propsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	configDir := filepath.Join(homeDir, defaultConfigDir)

	v.SetDefault("env", defaultEnv)
	v.SetDefault("server_address", defaultServerAddress)
	v.SetDefault("device_id", "")
	v.SetDefault("api_token", "")
	v.SetDefault("algorithm_version", defaultAlgorithmVersion)
	v.SetDefault("app_version", defaultAppVersion)
	v.SetDefault("config_dir", configDir)
	v.SetDefault("state_path", "")
	v.SetDefault("replica_path", "")
	v.SetDefault("retry_attempts", defaultRetryAttempts)
	v.SetDefault("enable_tls", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyPaths()

	return cfg, nil
}

func (c *Config) applyPaths() {
	if c.StatePath == "" {
		c.StatePath = filepath.Join(c.ConfigDir, "state.json")
	}
	if c.ReplicaPath == "" {
		c.ReplicaPath = filepath.Join(c.ConfigDir, "replica.db")
	}
}

// Validate проверяет поля, без которых нельзя обратиться к серверу
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return errors.New("server_address must not be empty")
	}
	if c.DeviceID == "" {
		return errors.New("device_id must not be empty: set it in config, PROPSYNC_DEVICE_ID or --device")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be positive, got %d", c.RetryAttempts)
	}
	return nil
}

// BaseURL возвращает адрес сервера со схемой
func (c *Config) BaseURL() string {
	if strings.HasPrefix(c.ServerAddress, "http://") || strings.HasPrefix(c.ServerAddress, "https://") {
		return strings.TrimRight(c.ServerAddress, "/")
	}
	scheme := "http://"
	if c.EnableTLS {
		scheme = "https://"
	}
	return scheme + strings.TrimRight(c.ServerAddress, "/")
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
