package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	AppPort    string
	LogLevel   string
	LogFormat  string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// VoucherPIN is the shared staff secret gating redemption.
	VoucherPIN string

	KafkaBrokers           string
	KafkaClientID          string
	KafkaGroupID           string
	KafkaReplyGroupID      string
	KafkaRetryGroupID      string
	KafkaInstanceID        string
	KafkaTopicPartitions   string
	KafkaRetryPartitions   string
	KafkaReplicationFactor string
	EventDrivenEnabled     bool
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	instanceID := k.String("KAFKA_INSTANCE_ID")
	if instanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceID = "unknown"
		} else {
			instanceID = hostname
		}
	}

	return &Config{
		AppPort:    valueOrDefault(k.String("APP_PORT"), "8080"),
		LogLevel:   valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:  valueOrDefault(k.String("LOG_FORMAT"), "json"),
		DBHost:     valueOrDefault(k.String("DB_HOST"), "localhost"),
		DBPort:     valueOrDefault(k.String("DB_PORT"), "5432"),
		DBUser:     valueOrDefault(k.String("DB_USER"), "postgres"),
		DBPassword: valueOrDefault(k.String("DB_PASSWORD"), "postgres"),
		DBName:     valueOrDefault(k.String("DB_NAME"), "voucherdb"),
		DBSSLMode:  valueOrDefault(k.String("DB_SSLMODE"), "disable"),

		VoucherPIN: valueOrDefault(k.String("VOUCHER_PIN"), "1217"),

		KafkaBrokers:           valueOrDefault(k.String("KAFKA_BROKERS"), "kafka:9092"),
		KafkaClientID:          valueOrDefault(k.String("KAFKA_CLIENT_ID"), "voucher-engine"),
		KafkaGroupID:           valueOrDefault(k.String("KAFKA_GROUP_ID"), "voucher-consumers"),
		KafkaReplyGroupID:      valueOrDefault(k.String("KAFKA_REPLY_GROUP_ID"), "voucher-gateway-resp"),
		KafkaRetryGroupID:      valueOrDefault(k.String("KAFKA_RETRY_GROUP_ID"), "voucher-retry"),
		KafkaInstanceID:        instanceID,
		KafkaTopicPartitions:   valueOrDefault(k.String("KAFKA_TOPIC_PARTITIONS"), "3"),
		KafkaRetryPartitions:   valueOrDefault(k.String("KAFKA_RETRY_PARTITIONS"), "1"),
		KafkaReplicationFactor: valueOrDefault(k.String("KAFKA_REPLICATION_FACTOR"), "1"),
		EventDrivenEnabled:     parseBool(k.String("EVENT_DRIVEN_ENABLED")),
	}, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) TopicPartitions() int {
	return parseInt(c.KafkaTopicPartitions, 3)
}

func (c *Config) RetryPartitions() int {
	return parseInt(c.KafkaRetryPartitions, 1)
}

func (c *Config) ReplicationFactor() int16 {
	return int16(parseInt(c.KafkaReplicationFactor, 1))
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return parsed
}
