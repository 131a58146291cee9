package config

// ImporterConfig holds tuning for the report import pipeline.
// Chunk sizes and retry policies are configuration, not package constants,
// so tests and deployments can vary them independently.
type ImporterConfig struct {
	ChunkSize          int     `json:"chunk_size" yaml:"chunk_size"`                   // raw records per upsert flush
	ResourceChunkSize  int     `json:"resource_chunk_size" yaml:"resource_chunk_size"` // resource ids per clean-expense batch
	InitialMonths      int     `json:"initial_months" yaml:"initial_months"`           // first-import widening window
	MaxRetries         int     `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelayMS   int     `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMS    int     `json:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	CostTolerance      float64 `json:"cost_tolerance" yaml:"cost_tolerance"` // rounding tolerance for ledger diffs
	NotifyOnMismatch   bool    `json:"notify_on_mismatch" yaml:"notify_on_mismatch"`
	MismatchThreshold  float64 `json:"mismatch_threshold" yaml:"mismatch_threshold"` // total-bill vs clean-expense alert threshold
}

func NewImporterConfig() *ImporterConfig {
	return &ImporterConfig{
		ChunkSize:         getEnvInt("IMPORTER_CHUNK_SIZE", 200),
		ResourceChunkSize: getEnvInt("IMPORTER_RESOURCE_CHUNK_SIZE", 500),
		InitialMonths:     getEnvInt("IMPORTER_INITIAL_MONTHS", 3),
		MaxRetries:        getEnvInt("IMPORTER_MAX_RETRIES", 5),
		RetryBaseDelayMS:  getEnvInt("IMPORTER_RETRY_BASE_DELAY_MS", 500),
		RetryMaxDelayMS:   getEnvInt("IMPORTER_RETRY_MAX_DELAY_MS", 30000),
		CostTolerance:     getEnvFloat("IMPORTER_COST_TOLERANCE", 0.000001),
		NotifyOnMismatch:  getEnvBool("IMPORTER_NOTIFY_ON_MISMATCH", true),
		MismatchThreshold: getEnvFloat("IMPORTER_MISMATCH_THRESHOLD", 0.01),
	}
}
