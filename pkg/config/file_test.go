package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.App == nil {
		t.Fatal("App config should not be nil")
	}
	if cfg.ClickHouse == nil {
		t.Fatal("ClickHouse config should not be nil")
	}
	if cfg.MySQL == nil {
		t.Fatal("MySQL config should not be nil")
	}
	if cfg.Importer == nil {
		t.Fatal("Importer config should not be nil")
	}
	if cfg.Importer.ChunkSize <= 0 {
		t.Errorf("default chunk size must be positive, got %d", cfg.Importer.ChunkSize)
	}
	if cfg.Scheduler == nil || cfg.Scheduler.ImportCron == "" {
		t.Error("scheduler defaults missing")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_config.yaml")

	originalConfig := &Config{
		ClickHouse: &ClickHouseConfig{
			Hosts:    []string{"test-host"},
			Port:     9001,
			Database: "test_db",
			Username: "test_user",
			Password: "test_pass",
		},
		MySQL: &MySQLConfig{
			Host:     "db-host",
			Port:     3307,
			Database: "costscan_test",
			Username: "tester",
		},
		App: &AppConfig{
			ListenAddr: ":9090",
			LogLevel:   "debug",
			LogFile:    "/tmp/test.log",
		},
		Importer: &ImporterConfig{
			ChunkSize:         100,
			ResourceChunkSize: 200,
			InitialMonths:     6,
			MaxRetries:        3,
			RetryBaseDelayMS:  250,
			RetryMaxDelayMS:   1000,
		},
	}

	if err := SaveConfig(originalConfig, tempFile); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loadedConfig, err := LoadConfig(tempFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(loadedConfig.ClickHouse.Hosts) == 0 || loadedConfig.ClickHouse.Hosts[0] != "test-host" {
		t.Errorf("Expected host test-host, got %v", loadedConfig.ClickHouse.Hosts)
	}
	if loadedConfig.MySQL.Port != 3307 {
		t.Errorf("Expected MySQL port 3307, got %d", loadedConfig.MySQL.Port)
	}
	if loadedConfig.App.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", loadedConfig.App.LogLevel)
	}
	if loadedConfig.Importer.InitialMonths != 6 {
		t.Errorf("Expected 6 initial months, got %d", loadedConfig.Importer.InitialMonths)
	}

	// Sections the file omits fall back to defaults
	if loadedConfig.Scheduler == nil {
		t.Error("omitted scheduler section must fall back to defaults")
	}
}

func TestLoadConfigRejectsInvalidImporter(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "bad_config.yaml")

	bad := &Config{
		Importer: &ImporterConfig{
			ChunkSize:         0,
			ResourceChunkSize: 10,
			RetryBaseDelayMS:  100,
			RetryMaxDelayMS:   200,
		},
	}
	if err := SaveConfig(bad, tempFile); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := LoadConfig(tempFile); err == nil {
		t.Error("zero chunk size must be rejected")
	}
}

func TestConfigWithEnvVars(t *testing.T) {
	os.Setenv("MYSQL_DATABASE", "env_db")
	os.Setenv("IMPORTER_CHUNK_SIZE", "42")
	os.Setenv("IMPORTER_COST_TOLERANCE", "0.05")
	os.Setenv("IMPORTER_MISMATCH_THRESHOLD", "0.25")
	defer func() {
		os.Unsetenv("MYSQL_DATABASE")
		os.Unsetenv("IMPORTER_CHUNK_SIZE")
		os.Unsetenv("IMPORTER_COST_TOLERANCE")
		os.Unsetenv("IMPORTER_MISMATCH_THRESHOLD")
	}()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.MySQL.Database != "env_db" {
		t.Errorf("Expected env database env_db, got %s", cfg.MySQL.Database)
	}
	if cfg.Importer.ChunkSize != 42 {
		t.Errorf("Expected env chunk size 42, got %d", cfg.Importer.ChunkSize)
	}
	if cfg.Importer.CostTolerance != 0.05 {
		t.Errorf("Expected env cost tolerance 0.05, got %v", cfg.Importer.CostTolerance)
	}
	if cfg.Importer.MismatchThreshold != 0.25 {
		t.Errorf("Expected env mismatch threshold 0.25, got %v", cfg.Importer.MismatchThreshold)
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := &MySQLConfig{
		Host:     "localhost",
		Port:     3306,
		Database: "costscan",
		Username: "root",
		Password: "secret",
		Params:   "charset=utf8mb4",
	}

	want := "root:secret@tcp(localhost:3306)/costscan?charset=utf8mb4"
	if got := cfg.DSN(); got != want {
		t.Errorf("Expected DSN %s, got %s", want, got)
	}
}
