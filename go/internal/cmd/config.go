package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional yaml config file. Environment variables override it
// for the settings that differ per deployment.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	NATS struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Timer struct {
		LeaseDurationSeconds   int `yaml:"lease_duration_seconds"`
		RenewalIntervalSeconds int `yaml:"renewal_interval_seconds"`
		TickIntervalSeconds    int `yaml:"tick_interval_seconds"`
	} `yaml:"timer"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Port = "8080"
	config.NATS.URL = "nats://localhost:4222"
	config.NATS.StreamName = "DEBATE_EVENTS"
	config.NATS.SubjectPrefix = "debate.events"
	config.Timer.LeaseDurationSeconds = 15
	config.Timer.RenewalIntervalSeconds = 5
	config.Timer.TickIntervalSeconds = 1
	return &config
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// No file; defaults plus env overrides.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Timer.LeaseDurationSeconds = getEnvAsInt("TIMER_LEASE_DURATION_SECONDS", config.Timer.LeaseDurationSeconds)
	config.Timer.RenewalIntervalSeconds = getEnvAsInt("TIMER_RENEWAL_INTERVAL_SECONDS", config.Timer.RenewalIntervalSeconds)
	config.Timer.TickIntervalSeconds = getEnvAsInt("TIMER_TICK_INTERVAL_SECONDS", config.Timer.TickIntervalSeconds)
	return config, nil
}

func (c *Config) leaseDuration() time.Duration {
	return time.Duration(c.Timer.LeaseDurationSeconds) * time.Second
}

func (c *Config) renewalInterval() time.Duration {
	return time.Duration(c.Timer.RenewalIntervalSeconds) * time.Second
}

func (c *Config) tickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
