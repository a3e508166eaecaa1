package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds runtime settings read from the environment. Command-line flags
// take precedence over these values.
type Env struct {
	Database        string        `env:"MELTSHOP_DB"               envDefault:"meltshop.db"`
	HTTPAddr        string        `env:"MELTSHOP_HTTP_ADDR"        envDefault:":8080"`
	KafkaBrokers    []string      `env:"MELTSHOP_KAFKA_BROKERS"    envSeparator:","`
	KafkaTopic      string        `env:"MELTSHOP_KAFKA_TOPIC"      envDefault:"meltshop.notifications"`
	MonitorInterval time.Duration `env:"MELTSHOP_MONITOR_INTERVAL"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}
