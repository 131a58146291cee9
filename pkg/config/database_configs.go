package config

import "fmt"

// MySQLConfig holds the metadata/raw store database settings
type MySQLConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Params   string `json:"params" yaml:"params"`
}

func NewMySQLConfig() *MySQLConfig {
	return &MySQLConfig{
		Host:     getEnv("MYSQL_HOST", "localhost"),
		Port:     getEnvInt("MYSQL_PORT", 3306),
		Database: getEnv("MYSQL_DATABASE", "costscan"),
		Username: getEnv("MYSQL_USERNAME", "root"),
		Password: getEnv("MYSQL_PASSWORD", ""),
		Params:   getEnv("MYSQL_PARAMS", "charset=utf8mb4&parseTime=True&loc=UTC"),
	}
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Params)
}
