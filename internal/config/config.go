package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "swarm.yml"

// Defaults applied by Validate when a field is left empty.
const (
	DefaultVersion         = "1.0"
	DefaultInstance        = "default"
	DefaultStorageLocation = "redis://localhost:6379/0"
	DefaultBusyTimeout     = 10 * time.Minute
	DefaultReclaimTimeout  = 30 * time.Minute
	DefaultOfflineAfter    = time.Hour
	DefaultKafkaTopic      = "swarm.broadcasts"
	DefaultAMQPQueue       = "swarm.broadcasts"
	DefaultHealthAddr      = ":8080"
)

// SwarmConfig represents the top-level swarm.yml configuration.
// Scalar settings can be overridden with SWARM_* environment variables.
type SwarmConfig struct {
	Version            string              `yaml:"version" ignored:"true"`
	Instance           string              `yaml:"instance" envconfig:"INSTANCE"`
	StorageLocation    string              `yaml:"storage_location" envconfig:"STORAGE_LOCATION"`
	BusyTimeout        time.Duration       `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT"`
	ReclaimTimeout     time.Duration       `yaml:"reclaim_timeout" envconfig:"RECLAIM_TIMEOUT"`
	OfflineAfter       time.Duration       `yaml:"offline_after" envconfig:"OFFLINE_AFTER"`
	ValidateRecipients bool                `yaml:"validate_recipients" envconfig:"VALIDATE_RECIPIENTS"`
	Specialties        map[string][]string `yaml:"specialties,omitempty" ignored:"true"`
	Relay              RelayConfig         `yaml:"relay,omitempty" ignored:"true"`
}

// RelayConfig configures where broadcasts are forwarded. Overridden with
// SWARM_RELAY_* environment variables.
type RelayConfig struct {
	SlackBotToken string   `yaml:"slack_bot_token,omitempty" envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string   `yaml:"slack_channel,omitempty" envconfig:"SLACK_CHANNEL"`
	SlackAPIURL   string   `yaml:"slack_api_url,omitempty" envconfig:"SLACK_API_URL"` // Empty uses Slack's public API
	KafkaBrokers  []string `yaml:"kafka_brokers,omitempty" envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `yaml:"kafka_topic,omitempty" envconfig:"KAFKA_TOPIC"`
	AMQPURL       string   `yaml:"amqp_url,omitempty" envconfig:"AMQP_URL"`
	AMQPQueue     string   `yaml:"amqp_queue,omitempty" envconfig:"AMQP_QUEUE"`
	HealthAddr    string   `yaml:"health_addr,omitempty" envconfig:"HEALTH_ADDR"`
}

// SlackEnabled reports whether broadcasts go to Slack.
func (r RelayConfig) SlackEnabled() bool {
	return r.SlackBotToken != ""
}

// KafkaEnabled reports whether broadcasts go to Kafka.
func (r RelayConfig) KafkaEnabled() bool {
	return len(r.KafkaBrokers) > 0
}

// AMQPEnabled reports whether broadcasts go to a RabbitMQ queue.
func (r RelayConfig) AMQPEnabled() bool {
	return r.AMQPURL != ""
}

// Default returns a configuration with every default applied.
func Default() *SwarmConfig {
	cfg := &SwarmConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *SwarmConfig) applyDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if c.StorageLocation == "" {
		c.StorageLocation = DefaultStorageLocation
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	if c.ReclaimTimeout == 0 {
		c.ReclaimTimeout = DefaultReclaimTimeout
	}
	if c.OfflineAfter == 0 {
		c.OfflineAfter = DefaultOfflineAfter
	}
	if c.Specialties == nil {
		c.Specialties = map[string][]string{}
	}
	if c.Relay.KafkaTopic == "" {
		c.Relay.KafkaTopic = DefaultKafkaTopic
	}
	if c.Relay.AMQPQueue == "" {
		c.Relay.AMQPQueue = DefaultAMQPQueue
	}
	if c.Relay.HealthAddr == "" {
		c.Relay.HealthAddr = DefaultHealthAddr
	}
}

// Validate applies defaults and performs strict validation on the configuration.
func (c *SwarmConfig) Validate() error {
	c.applyDefaults()

	if c.Version != DefaultVersion {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, DefaultVersion)
	}

	if strings.ContainsAny(c.Instance, ": \t\n") {
		return fmt.Errorf("invalid instance name %q: must not contain ':' or whitespace", c.Instance)
	}

	if _, err := redis.ParseURL(c.StorageLocation); err != nil {
		return fmt.Errorf("invalid storage_location: %w", err)
	}

	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout must be positive, got %s", c.BusyTimeout)
	}
	if c.ReclaimTimeout < 0 {
		return fmt.Errorf("reclaim_timeout must be positive, got %s", c.ReclaimTimeout)
	}
	if c.OfflineAfter <= c.BusyTimeout {
		return fmt.Errorf("offline_after (%s) must exceed busy_timeout (%s)", c.OfflineAfter, c.BusyTimeout)
	}

	for id := range c.Specialties {
		if err := blackboard.ValidateAgentID(id); err != nil {
			return fmt.Errorf("specialties: %w", err)
		}
	}

	if c.Relay.SlackEnabled() && c.Relay.SlackChannel == "" {
		return fmt.Errorf("relay.slack_channel is required when relay.slack_bot_token is set")
	}

	return nil
}

// RedisOptions parses the storage location into client options.
func (c *SwarmConfig) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.StorageLocation)
	if err != nil {
		return nil, fmt.Errorf("invalid storage_location: %w", err)
	}
	return opts, nil
}

// Load reads swarm.yml from path, applies environment overrides and validates
// the result. A missing file is not an error: defaults and environment apply.
func Load(path string) (*SwarmConfig, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := envconfig.Process("SWARM", config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := envconfig.Process("SWARM_RELAY", &config.Relay); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
