package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Every field has a development default; production overrides via
// EXAMDESK_* variables.
type Config struct {
	Addr string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	Publish PublishConfig
	Gateway GatewayConfig
}

// RedisConfig mirrors the go-redis options we override.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the publication event notifier.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// PublishConfig bounds the result publication pipeline.
type PublishConfig struct {
	BatchSize     int
	ResultTTL     time.Duration
	Workers       int
	Backlog       int
	RetryAttempts int
	RetryBackoff  time.Duration
	StallAfter    time.Duration
}

// GatewayConfig points at the payment gateway.
type GatewayConfig struct {
	URL           string
	WebhookSecret string
	Timeout       time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envStr("EXAMDESK_ADDR", ":8080"),
		PostgresURL: os.Getenv("EXAMDESK_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("EXAMDESK_REDIS_URL"),
			PoolSize:     envInt("EXAMDESK_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("EXAMDESK_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDur("EXAMDESK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("EXAMDESK_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("EXAMDESK_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("EXAMDESK_KAFKA_BROKERS")),
			Topic:   envStr("EXAMDESK_KAFKA_TOPIC", "exam.results.published"),
		},
		Publish: PublishConfig{
			BatchSize:     envInt("EXAMDESK_PUBLISH_BATCH_SIZE", 500),
			ResultTTL:     envDur("EXAMDESK_RESULT_TTL", 24*time.Hour),
			Workers:       envInt("EXAMDESK_PUBLISH_WORKERS", 10),
			Backlog:       envInt("EXAMDESK_PUBLISH_BACKLOG", 32),
			RetryAttempts: envInt("EXAMDESK_PUBLISH_RETRY_ATTEMPTS", 4),
			RetryBackoff:  envDur("EXAMDESK_PUBLISH_RETRY_BACKOFF", 200*time.Millisecond),
			StallAfter:    envDur("EXAMDESK_PUBLISH_STALL_AFTER", 5*time.Minute),
		},
		Gateway: GatewayConfig{
			URL:           os.Getenv("EXAMDESK_GATEWAY_URL"),
			WebhookSecret: os.Getenv("EXAMDESK_GATEWAY_WEBHOOK_SECRET"),
			Timeout:       envDur("EXAMDESK_GATEWAY_TIMEOUT", 10*time.Second),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
