package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Webhook WebhookConfig
	Audit   AuditConfig
	Live    LiveConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	TicketEvents string
}

type WebhookConfig struct {
	// Secret signs every inbound delivery. No default: deployments must set
	// PETZI_SECRET explicitly, a well-known fallback would make signature
	// verification decorative.
	Secret string
	Path   string
}

type AuditConfig struct {
	Enabled bool
	DBPath  string
}

type LiveConfig struct {
	// NewSalesInitialLimit is the backlog window used to establish the
	// new-sales watermark.
	NewSalesInitialLimit int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "petzi-tickets-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				TicketEvents: getEnv("KAFKA_TOPIC_TICKET_EVENTS", "ticket-events"),
			},
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("PETZI_SECRET"),
			Path:   getEnv("WEBHOOK_PATH", "/webhook/petzi"),
		},
		Audit: AuditConfig{
			Enabled: getEnvBool("AUDIT_ENABLED", true),
			DBPath:  getEnv("AUDIT_DB_PATH", "webhook_audit.db"),
		},
		Live: LiveConfig{
			NewSalesInitialLimit: getEnvInt("NEW_SALES_INITIAL_LIMIT", 25),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
