package config

// AliCloudConfig holds Alibaba Cloud BSS OpenAPI credentials and tuning
type AliCloudConfig struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret" yaml:"access_key_secret"`
	Region          string `json:"region" yaml:"region"`
	Timeout         int    `json:"timeout" yaml:"timeout"`     // seconds
	MaxRetries      int    `json:"max_retries" yaml:"max_retries"`
	QPSLimit        int    `json:"qps_limit" yaml:"qps_limit"` // BSS OpenAPI single-user quota is 10/s
	PageSize        int    `json:"page_size" yaml:"page_size"`
}

func NewAliCloudConfig() *AliCloudConfig {
	return &AliCloudConfig{
		AccessKeyID:     getEnv("ALICLOUD_ACCESS_KEY_ID", ""),
		AccessKeySecret: getEnv("ALICLOUD_ACCESS_KEY_SECRET", ""),
		Region:          getEnv("ALICLOUD_REGION", "cn-hangzhou"),
		Timeout:         getEnvInt("ALICLOUD_TIMEOUT", 30),
		MaxRetries:      getEnvInt("ALICLOUD_MAX_RETRIES", 5),
		QPSLimit:        getEnvInt("ALICLOUD_QPS_LIMIT", 10),
		PageSize:        getEnvInt("ALICLOUD_PAGE_SIZE", 300),
	}
}

// IsConfigured reports whether the credentials are present
func (c *AliCloudConfig) IsConfigured() bool {
	return c.AccessKeyID != "" && c.AccessKeySecret != ""
}
