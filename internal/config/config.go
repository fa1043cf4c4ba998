package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Webhook  Webhook  `yaml:"webhook"`
	Delivery Delivery `yaml:"delivery"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"livehooks-api"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	// MetricsPort serves /metrics for the worker binary; the api binary
	// exposes /metrics on its main port.
	MetricsPort string `yaml:"metrics_port" env:"HTTP_METRICS_PORT" env-default:"9093"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"livehooks_db"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

// Kafka configures the optional analytics event feed. Leaving Brokers
// empty disables publishing entirely.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"livekit-events"`
}

type Webhook struct {
	// Secret verifies inbound LiveKit callbacks. Empty disables
	// signature verification; main logs that choice at startup.
	Secret        string        `yaml:"secret" env:"LIVEKIT_WEBHOOK_SECRET"`
	RetryAttempts int           `yaml:"retry_attempts" env:"WEBHOOK_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"WEBHOOK_RETRY_DELAY" env-default:"5s"`
	Timeout       time.Duration `yaml:"timeout" env:"WEBHOOK_TIMEOUT" env-default:"30s"`
}

type Delivery struct {
	Workers   int `yaml:"workers" env:"DELIVERY_WORKERS" env-default:"4"`
	QueueSize int `yaml:"queue_size" env:"DELIVERY_QUEUE_SIZE" env-default:"256"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	return cfg, nil
}
