package config

import (
	"fmt"
	"os"
)

// AppConfig holds application-level settings
type AppConfig struct {
	ListenAddr  string `json:"listen_addr" yaml:"listen_addr"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogFile     string `json:"log_file" yaml:"log_file"`
	Development bool   `json:"development" yaml:"development"`
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "./logs/costscan.log"),
		Development: getEnvBool("DEVELOPMENT", false),
	}
}

// Config is the root configuration object
type Config struct {
	App        *AppConfig        `json:"app" yaml:"app"`
	ClickHouse *ClickHouseConfig `json:"clickhouse" yaml:"clickhouse"`
	MySQL      *MySQLConfig      `json:"mysql" yaml:"mysql"`
	AliCloud   *AliCloudConfig   `json:"alicloud" yaml:"alicloud"`
	Importer   *ImporterConfig   `json:"importer" yaml:"importer"`
	Scheduler  *SchedulerConfig  `json:"scheduler" yaml:"scheduler"`
	Telegram   *TelegramConfig   `json:"telegram" yaml:"telegram"`
}

// NewDefaultConfig builds a configuration from environment variables and defaults
func NewDefaultConfig() *Config {
	return &Config{
		App:        NewAppConfig(),
		ClickHouse: NewClickHouseConfig(),
		MySQL:      NewMySQLConfig(),
		AliCloud:   NewAliCloudConfig(),
		Importer:   NewImporterConfig(),
		Scheduler:  NewSchedulerConfig(),
		Telegram:   NewTelegramConfig(),
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults.
// Environment variables take effect through the New*Config constructors and
// fill any section the file leaves empty.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Missing file is not fatal: run on env/defaults
		return cfg, nil
	}

	fileCfg, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	mergeConfig(cfg, fileCfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeConfig overlays non-nil sections from src onto dst
func mergeConfig(dst, src *Config) {
	if src.App != nil {
		dst.App = src.App
	}
	if src.ClickHouse != nil {
		dst.ClickHouse = src.ClickHouse
	}
	if src.MySQL != nil {
		dst.MySQL = src.MySQL
	}
	if src.AliCloud != nil {
		dst.AliCloud = src.AliCloud
	}
	if src.Importer != nil {
		dst.Importer = src.Importer
	}
	if src.Scheduler != nil {
		dst.Scheduler = src.Scheduler
	}
	if src.Telegram != nil {
		dst.Telegram = src.Telegram
	}
}
