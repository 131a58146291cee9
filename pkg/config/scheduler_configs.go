package config

// SchedulerConfig controls the cron dispatcher that runs account imports
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ImportCron  string `json:"import_cron" yaml:"import_cron"`
	MaxParallel int    `json:"max_parallel" yaml:"max_parallel"` // accounts imported concurrently
}

func NewSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:     getEnvBool("SCHEDULER_ENABLED", true),
		ImportCron:  getEnv("SCHEDULER_IMPORT_CRON", "0 30 2 * * *"),
		MaxParallel: getEnvInt("SCHEDULER_MAX_PARALLEL", 2),
	}
}
