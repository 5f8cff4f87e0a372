package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Draw      DrawConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
	Audit     AuditConfig
	LogLevel  string
}

type ServerConfig struct {
	Addr string
}

// StorageConfig 儲存後端於啟動時決定，執行中不會切換
type StorageConfig struct {
	Backend    string
	MaxRetries int
	MaxElapsed time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type DrawConfig struct {
	CatalogFile     string
	MaxDrawAttempts int
	MaxCodeAttempts int
	QueueBuffer     int
}

type SessionConfig struct {
	Name   string
	Secret string
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

type AuditConfig struct {
	Schedule string
}

var AppConfig *Config

func LoadConfig() *Config {
	// .env 不存在時直接使用環境變數
	_ = godotenv.Load()

	AppConfig = &Config{
		Server:    GetServerConfig(),
		Storage:   GetStorageConfig(),
		Database:  GetDatabaseConfig(),
		Redis:     GetRedisConfig(),
		Draw:      GetDrawConfig(),
		Session:   GetSessionConfig(),
		Telemetry: GetTelemetryConfig(),
		Audit:     AuditConfig{Schedule: getEnv("AUDIT_SCHEDULE", "@every 5m")},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	return AppConfig
}

func LoadTestConfig() *Config {
	testConfig := &DatabaseConfig{
		Host:     "localhost",
		Port:     "5433", // 測試 DB 用 5433 port
		User:     "postgres",
		Password: "postgres",
		DBName:   "test_db",
		SSLMode:  "disable",
	}

	testRedisConfig := RedisConfig{
		Host:     "localhost",
		Port:     "6380", // 測試 Redis 用 6380 port
		Password: "",
		DB:       1,
	}

	return &Config{
		Server:   ServerConfig{Addr: ":0"},
		Storage:  StorageConfig{Backend: StorageMemory, MaxRetries: 3, MaxElapsed: 500 * time.Millisecond},
		Database: *testConfig,
		Redis:    testRedisConfig,
		Draw: DrawConfig{
			MaxDrawAttempts: 5,
			MaxCodeAttempts: 10,
			QueueBuffer:     16,
		},
		Session:  SessionConfig{Name: "luckydraw", Secret: "test-secret"},
		Audit:    AuditConfig{Schedule: "@every 1s"},
		LogLevel: "debug",
	}
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr: getEnv("SERVER_ADDR", ":8080"),
	}
}

func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:    getEnv("STORAGE_BACKEND", StorageRedis),
		MaxRetries: getEnvInt("STORAGE_MAX_RETRIES", 8),
		MaxElapsed: getEnvDuration("STORAGE_MAX_ELAPSED", 2*time.Second),
	}
}

func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "postgres"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}
}

func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func GetDrawConfig() DrawConfig {
	return DrawConfig{
		CatalogFile:     getEnv("PRIZE_CATALOG_FILE", ""),
		MaxDrawAttempts: getEnvInt("DRAW_MAX_ATTEMPTS", 5),
		MaxCodeAttempts: getEnvInt("TICKET_CODE_MAX_ATTEMPTS", 10),
		QueueBuffer:     getEnvInt("PENDING_QUEUE_BUFFER", 1024),
	}
}

func GetSessionConfig() SessionConfig {
	return SessionConfig{
		Name:   getEnv("SESSION_NAME", "luckydraw"),
		Secret: getEnv("SESSION_SECRET", "change-me"),
	}
}

func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:  getEnv("SERVICE_NAME", "lucky-draw"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		panic(err)
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		panic(err)
	}
	return value
}
