package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from the environment once at startup and passed
// explicitly to whatever needs it.
type Config struct {
	Port string `envconfig:"PORT" default:"8082"`

	DBHost string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort string `envconfig:"DB_PORT" default:"3306"`
	DBUser string `envconfig:"DB_USER" default:"root"`
	DBPass string `envconfig:"DB_PASS" default:""`
	DBName string `envconfig:"DB_NAME" default:"storefront"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092,localhost:9093,localhost:9094"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"order-topic"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"secret"`

	// Audit entries older than this are purged; defaults to 90 days.
	AuditRetention     time.Duration `envconfig:"AUDIT_RETENTION" default:"2160h"`
	AuditPurgeInterval time.Duration `envconfig:"AUDIT_PURGE_INTERVAL" default:"1h"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// DSN builds the MySQL connection string. parseTime is required so
// DATETIME columns scan into time.Time.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}
