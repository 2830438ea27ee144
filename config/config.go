package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// MySQL configuration
	DatabaseDSN string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Waiting room configuration
	MaxActiveUsers int
	AdmitBatchSize int
	QueueEntryTTL  time.Duration

	// Stock configuration
	StockCacheTTL time.Duration

	// Distributed lock configuration
	LockWaitTimeout   time.Duration
	LockLeaseTimeout  time.Duration
	LockRetryInterval time.Duration

	// Reaper configuration
	QueueSweepInterval       time.Duration
	ReservationSweepInterval time.Duration
	ReservationTimeout       time.Duration

	// Rate limiting
	RateLimit       int
	RateLimitWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// MySQL
		DatabaseDSN: getEnv("DATABASE_DSN", "ticket:ticket@tcp(localhost:3306)/ticket?parseTime=true"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Waiting room
		MaxActiveUsers: getEnvAsInt("MAX_ACTIVE_USERS", 1000),
		AdmitBatchSize: getEnvAsInt("ADMIT_BATCH_SIZE", 10),
		QueueEntryTTL:  getEnvAsDuration("QUEUE_ENTRY_TTL", "30m"),

		// Stock
		StockCacheTTL: getEnvAsDuration("STOCK_CACHE_TTL", "24h"),

		// Locks
		LockWaitTimeout:   getEnvAsDuration("LOCK_WAIT_TIMEOUT", "5s"),
		LockLeaseTimeout:  getEnvAsDuration("LOCK_LEASE_TIMEOUT", "10s"),
		LockRetryInterval: getEnvAsDuration("LOCK_RETRY_INTERVAL", "100ms"),

		// Reaper
		QueueSweepInterval:       getEnvAsDuration("QUEUE_SWEEP_INTERVAL", "5m"),
		ReservationSweepInterval: getEnvAsDuration("RESERVATION_SWEEP_INTERVAL", "30m"),
		ReservationTimeout:       getEnvAsDuration("RESERVATION_TIMEOUT", "30m"),

		// Rate limiting
		RateLimit:       getEnvAsInt("RATE_LIMIT", 30),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
