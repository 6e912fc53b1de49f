package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — конфигурация worker.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Steps     StepsConfig     `mapstructure:"steps"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
}

// APIConfig — параметры HTTP API.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// MongoConfig — параметры хранилища.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// AMQPConfig — параметры RabbitMQ. Пустой URL выключает MQ-транспорт.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Prefetch int    `mapstructure:"prefetch"`
}

// DispatchConfig — параметры dispatcher.
type DispatchConfig struct {
	QueueSize   int `mapstructure:"queue_size"`
	Concurrency int `mapstructure:"concurrency"`
}

// StepsConfig — значения по умолчанию для шагов.
type StepsConfig struct {
	DefaultTimeoutSec int `mapstructure:"default_timeout_sec"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	InitialDelayMs    int `mapstructure:"initial_delay_ms"`
	MaxDelayMs        int `mapstructure:"max_delay_ms"`
}

// AuthConfig — параметры identity provider.
type AuthConfig struct {
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
	JWKSURL      string `mapstructure:"jwks_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// SchedulerConfig — параметры планировщика.
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TickIntervalSec int  `mapstructure:"tick_interval_sec"`
}

// RecoveryConfig — параметры восстановления после рестарта.
type RecoveryConfig struct {
	// StaleAfterSec — порог, после которого RUNNING run без обновлений
	// считается брошенным.
	StaleAfterSec int `mapstructure:"stale_after_sec"`
}

// Load читает конфигурацию из файла и окружения RELAY_*.
// Путь "" означает поиск relay.yaml в текущей директории.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/relay")
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Файл опционален: конфигурация может прийти целиком из env.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen", ":8080")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "relay")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.prefetch", 8)
	v.SetDefault("dispatch.queue_size", 64)
	v.SetDefault("dispatch.concurrency", 8)
	v.SetDefault("steps.default_timeout_sec", 30)
	v.SetDefault("steps.max_attempts", 3)
	v.SetDefault("steps.initial_delay_ms", 1000)
	v.SetDefault("steps.max_delay_ms", 30000)
	// Пустые defaults регистрируют ключи: без них viper не видит
	// значения, пришедшие только из окружения.
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.token_url", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_interval_sec", 15)
	v.SetDefault("recovery.stale_after_sec", 300)
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required")
	}
	if c.Auth.Issuer == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	return nil
}

// TickInterval возвращает период тика планировщика.
func (c *SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

// StaleAfter возвращает порог брошенных runs.
func (c *RecoveryConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}
