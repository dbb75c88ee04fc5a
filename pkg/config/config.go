// Package config loads service settings from an optional .env file, an
// optional YAML file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr     string `yaml:"http_addr"`
	GatewayAddr  string `yaml:"gateway_addr"`
	EmbedGateway bool   `yaml:"embed_gateway"`

	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	DevLogin     bool          `yaml:"dev_login"`
	AllowOrigins []string      `yaml:"allow_origins"`

	DatabaseDSN    string   `yaml:"database_dsn"`
	ScyllaHosts    []string `yaml:"scylla_hosts"`
	ScyllaKeyspace string   `yaml:"scylla_keyspace"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	KafkaBrokers      []string `yaml:"kafka_brokers"`
	NotificationTopic string   `yaml:"notification_topic"`
	NotifierGroup     string   `yaml:"notifier_group"`

	NodeID int64 `yaml:"node_id"`

	LogLevel  string `yaml:"log_level"`
	LogSink   string `yaml:"log_sink"`
	LogFormat string `yaml:"log_format"`
}

// Defaults is the configuration of a single-process development setup.
func Defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		GatewayAddr:       ":8081",
		EmbedGateway:      true,
		TokenTTL:          24 * time.Hour,
		DatabaseDSN:       "groupchat.db",
		ScyllaKeyspace:    "chat",
		NotificationTopic: "notification-jobs",
		NotifierGroup:     "notifier",
		NodeID:            1,
		LogLevel:          "info",
		LogSink:           "stdout",
		LogFormat:         "text",
	}
}

// Load builds the configuration. A missing .env file is ignored; a missing
// YAML file is an error only when path is non-empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GatewayAddr = getEnv("GATEWAY_ADDR", c.GatewayAddr)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.ScyllaHosts = getList("SCYLLA_HOSTS", c.ScyllaHosts)
	c.ScyllaKeyspace = getEnv("SCYLLA_KEYSPACE", c.ScyllaKeyspace)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.KafkaBrokers = getList("KAFKA_BROKERS", c.KafkaBrokers)
	c.NotificationTopic = getEnv("NOTIFICATION_TOPIC", c.NotificationTopic)
	c.NotifierGroup = getEnv("NOTIFIER_GROUP", c.NotifierGroup)
	c.AllowOrigins = getList("ALLOW_ORIGINS", c.AllowOrigins)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogSink = getEnv("LOG_SINK", c.LogSink)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	var err error
	if c.EmbedGateway, err = getBool("EMBED_GATEWAY", c.EmbedGateway); err != nil {
		return err
	}
	if c.DevLogin, err = getBool("AUTH_DEV_LOGIN", c.DevLogin); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("TOKEN_TTL"); ok {
		if c.TokenTTL, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("TOKEN_TTL: %w", err)
		}
	}
	if v, ok := os.LookupEnv("NODE_ID"); ok {
		if c.NodeID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("NODE_ID: %w", err)
		}
	}
	return nil
}

// Validate rejects settings no service can start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("node id %d out of range 0-1023", c.NodeID))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	return errors.Join(errs...)
}

// UseScylla reports whether messages live in Scylla instead of the SQL store.
func (c *Config) UseScylla() bool { return len(c.ScyllaHosts) > 0 }

// UseRedis reports whether realtime events go through Redis.
func (c *Config) UseRedis() bool { return c.RedisAddr != "" }

// UseKafka reports whether notification jobs go through Kafka.
func (c *Config) UseKafka() bool { return len(c.KafkaBrokers) > 0 }

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getBool(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
