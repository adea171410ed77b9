// Package config 配置
package config

import (
	"strconv"

	commonconfig "github.com/retailcore/salesaga/pkg/config"
)

// Config 销售服务配置
type Config struct {
	ServiceName string
	HTTPPort    int

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisAddr     string
	RedisPassword string

	// 远端服务
	InventoryBaseURL string
	LedgerBaseURL    string

	WorkerID int64

	// 延迟记账补登
	ReconcileCron string

	// Tracing
	TracingEnabled    bool
	JaegerEndpoint    string
	TracingSampleRate float64
}

// Load 加载配置
func Load() *Config {
	return &Config{
		ServiceName: commonconfig.GetEnv("SERVICE_NAME", "retail-sales"),
		HTTPPort:    commonconfig.GetEnvInt("HTTP_PORT", 8091),

		DBHost:     commonconfig.GetEnv("DB_HOST", "localhost"),
		DBPort:     commonconfig.GetEnvInt("DB_PORT", 5432),
		DBUser:     commonconfig.GetEnv("DB_USER", "retail"),
		DBPassword: commonconfig.GetEnv("DB_PASSWORD", "retail123"),
		DBName:     commonconfig.GetEnv("DB_NAME", "retail"),

		RedisAddr:     commonconfig.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: commonconfig.GetEnv("REDIS_PASSWORD", ""),

		InventoryBaseURL: commonconfig.GetEnv("INVENTORY_BASE_URL", "http://localhost:8092"),
		LedgerBaseURL:    commonconfig.GetEnv("LEDGER_BASE_URL", "http://localhost:8093"),

		WorkerID: commonconfig.GetEnvInt64("WORKER_ID", 1),

		ReconcileCron: commonconfig.GetEnv("RECONCILE_CRON", "*/5 * * * *"),

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
