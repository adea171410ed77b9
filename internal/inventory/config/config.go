// Package config 配置
package config

import (
	"strconv"

	commonconfig "github.com/retailcore/salesaga/pkg/config"
)

// Config 库存服务配置
type Config struct {
	ServiceName string
	HTTPPort    int

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Tracing
	TracingEnabled    bool
	JaegerEndpoint    string
	TracingSampleRate float64
}

// Load 加载配置
func Load() *Config {
	return &Config{
		ServiceName: commonconfig.GetEnv("SERVICE_NAME", "retail-inventory"),
		HTTPPort:    commonconfig.GetEnvInt("HTTP_PORT", 8092),

		DBHost:     commonconfig.GetEnv("DB_HOST", "localhost"),
		DBPort:     commonconfig.GetEnvInt("DB_PORT", 5432),
		DBUser:     commonconfig.GetEnv("DB_USER", "retail"),
		DBPassword: commonconfig.GetEnv("DB_PASSWORD", "retail123"),
		DBName:     commonconfig.GetEnv("DB_NAME", "retail"),

		TracingEnabled:    commonconfig.GetEnvBool("TRACING_ENABLED", false),
		JaegerEndpoint:    commonconfig.GetEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		TracingSampleRate: 1.0,
	}
}

// DSN 返回数据库连接字符串
func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" port=" + strconv.Itoa(c.DBPort) +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=disable"
}
