package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
	Relay    RelayConfig
	Recovery RecoveryConfig
	Ranking  RankingConfig
	Event    EventConfig
	Log      LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"commerce_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// RedisConfig holds the connection settings for the ranking store and cache.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// KafkaConfig holds streaming-bus settings. Brokers is comma-separated.
type KafkaConfig struct {
	Brokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string `envconfig:"KAFKA_GROUP_ID" default:"ranking-scorer"`
}

// BrokerList splits Brokers into individual addresses.
func (c KafkaConfig) BrokerList() []string {
	parts := strings.Split(c.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PaymentConfig holds the payment gateway client settings.
type PaymentConfig struct {
	BaseURL          string  `envconfig:"PAYMENT_BASE_URL" default:"http://localhost:8082"`
	Timeout          int     `envconfig:"PAYMENT_TIMEOUT" default:"5"` // seconds, per request
	Bulkhead         int64   `envconfig:"PAYMENT_BULKHEAD" default:"20"`
	FailureThreshold float64 `envconfig:"CIRCUIT_FAILURE_THRESHOLD" default:"0.5"`
	Window           uint32  `envconfig:"CIRCUIT_WINDOW" default:"20"`
	OpenDuration     int     `envconfig:"CIRCUIT_OPEN_DURATION" default:"30"` // seconds
	CallbackURL      string  `envconfig:"PAYMENT_CALLBACK_URL" default:"http://localhost:3000/api/payments/callback"`
}

// RelayConfig holds outbox relay settings.
type RelayConfig struct {
	BatchSize    int  `envconfig:"RELAY_BATCH_SIZE" default:"100"`
	PollInterval int  `envconfig:"RELAY_POLL_INTERVAL" default:"1"` // seconds
	AdvisoryLock bool `envconfig:"OUTBOX_ADVISORY_LOCK" default:"false"`
}

// RecoveryConfig holds the payment recovery loop settings.
type RecoveryConfig struct {
	Interval int `envconfig:"RECOVERY_INTERVAL" default:"60"` // seconds
}

// RankingConfig holds ranking pipeline settings.
type RankingConfig struct {
	TTLHours        int     `envconfig:"RANKING_TTL" default:"48"` // hours
	CarryOverWeight float64 `envconfig:"CARRY_OVER_WEIGHT" default:"0.1"`
	SnapshotTopK    int64   `envconfig:"SNAPSHOT_TOP_K" default:"1000"`
	SnapshotCron    string  `envconfig:"SNAPSHOT_CRON" default:"*/5 * * * *"`
	LikeSyncCron    string  `envconfig:"LIKECOUNT_SYNC_CRON" default:"*/5 * * * *"`
}

// EventConfig sizes the in-process bus worker pool. Workers 0 means CPU·2.
type EventConfig struct {
	Workers   int `envconfig:"EVENT_WORKERS" default:"0"`
	QueueSize int `envconfig:"EVENT_QUEUE_SIZE" default:"1024"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
