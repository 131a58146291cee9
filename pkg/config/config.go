package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseConfig struct {
	Hosts    []string `json:"hosts" yaml:"hosts"`
	Port     int      `json:"port" yaml:"port"`
	Database string   `json:"database" yaml:"database"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	Debug    bool     `json:"debug" yaml:"debug"`
	Protocol string   `json:"protocol" yaml:"protocol"` // native, http
}

func NewClickHouseConfig() *ClickHouseConfig {
	hosts := []string{getEnv("CLICKHOUSE_HOST", "localhost")}
	if hostsEnv := os.Getenv("CLICKHOUSE_HOSTS"); hostsEnv != "" {
		hosts = parseHosts(hostsEnv)
	}

	// Default port depends on the protocol
	protocol := getEnv("CLICKHOUSE_PROTOCOL", "native")
	defaultPort := 9000
	if protocol == "http" {
		defaultPort = 8123
	}

	return &ClickHouseConfig{
		Hosts:    hosts,
		Port:     getEnvInt("CLICKHOUSE_PORT", defaultPort),
		Database: getEnv("CLICKHOUSE_DATABASE", "costscan"),
		Username: getEnv("CLICKHOUSE_USERNAME", "default"),
		Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		Debug:    getEnvBool("CLICKHOUSE_DEBUG", false),
		Protocol: protocol,
	}
}

func (c *ClickHouseConfig) DSN() string {
	host := "localhost"
	if len(c.Hosts) > 0 {
		host = c.Hosts[0]
	}

	scheme := "clickhouse"
	if c.Protocol == "http" {
		scheme = "http"
	}

	username := url.QueryEscape(c.Username)
	password := url.QueryEscape(c.Password)

	return fmt.Sprintf("%s://%s:%s@%s:%d/%s",
		scheme, username, password, host, c.Port, c.Database)
}

// GetProtocol returns the wire protocol, defaulting to native
func (c *ClickHouseConfig) GetProtocol() clickhouse.Protocol {
	if c.Protocol == "http" {
		return clickhouse.HTTP
	}
	return clickhouse.Native
}

func (c *ClickHouseConfig) GetAddresses() []string {
	addresses := make([]string, len(c.Hosts))
	for i, host := range c.Hosts {
		addresses[i] = fmt.Sprintf("%s:%d", host, c.Port)
	}
	return addresses
}

func parseHosts(hostsStr string) []string {
	parts := strings.Split(hostsStr, ",")
	hosts := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}
	return hosts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue := parseIntOrDefault(value, defaultValue); intValue != defaultValue {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func parseIntOrDefault(s string, defaultValue int) int {
	if len(s) == 0 {
		return defaultValue
	}

	result := 0
	for _, char := range s {
		if char < '0' || char > '9' {
			return defaultValue
		}
		result = result*10 + int(char-'0')
	}
	return result
}
