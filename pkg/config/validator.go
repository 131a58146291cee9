package config

import "fmt"

// Validate checks a loaded configuration for obvious mistakes
func Validate(cfg *Config) error {
	if cfg == nil {
		return ErrMissingConfig
	}

	if cfg.ClickHouse != nil {
		if len(cfg.ClickHouse.Hosts) == 0 {
			return fmt.Errorf("clickhouse: %w", ErrMissingHosts)
		}
		if cfg.ClickHouse.Database == "" {
			return fmt.Errorf("clickhouse: %w", ErrMissingDatabase)
		}
	}

	if cfg.MySQL != nil {
		if cfg.MySQL.Database == "" {
			return fmt.Errorf("mysql: %w", ErrMissingDatabase)
		}
	}

	if cfg.Importer != nil {
		if cfg.Importer.ChunkSize <= 0 || cfg.Importer.ResourceChunkSize <= 0 {
			return ErrInvalidChunkSize
		}
		if cfg.Importer.MaxRetries < 0 || cfg.Importer.RetryBaseDelayMS <= 0 {
			return ErrInvalidRetryPolicy
		}
		if cfg.Importer.RetryMaxDelayMS < cfg.Importer.RetryBaseDelayMS {
			return ErrInvalidRetryPolicy
		}
	}

	return nil
}
