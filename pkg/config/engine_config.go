// Package config provides configuration loading for the engine file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Event-log sink names.
const (
	SinkBus   = "bus"
	SinkRedis = "redis"
)

// EngineConfigFile represents the structure of the engine.yaml file.
type EngineConfigFile struct {
	WorkerID string         `yaml:"worker_id"`
	EventLog EventLogConfig `yaml:"event_log"`
	Actors   ActorsConfig   `yaml:"actors"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// EventLogConfig selects where event-log records go and how they are built.
type EventLogConfig struct {
	MessageTypePolicy string        `yaml:"message_type_policy" validate:"oneof=join_all single_flow_only"`
	Sinks             []string      `yaml:"sinks"               validate:"dive,oneof=bus redis"`
	RedisStream       string        `yaml:"redis_stream"`
	RedisMaxLen       int64         `yaml:"redis_max_len"       validate:"gte=0"`
	QueueSize         int           `yaml:"queue_size"          validate:"gt=0"`
	DeliveryTimeout   time.Duration `yaml:"delivery_timeout"    validate:"gt=0"`
}

// ActorsConfig tunes the actor mailboxes.
type ActorsConfig struct {
	MailboxSize int           `yaml:"mailbox_size" validate:"gt=0"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gt=0"`
}

// SweeperConfig controls the periodic completion check.
type SweeperConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule" validate:"required_if=Enabled true"`
}

// HTTPConfig bounds how long a request waits for the engine.
type HTTPConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultEngineConfig returns the configuration used when no file is given.
func DefaultEngineConfig() EngineConfigFile {
	return EngineConfigFile{
		EventLog: EventLogConfig{
			MessageTypePolicy: "join_all",
			Sinks:             []string{SinkBus},
			QueueSize:         256,
			DeliveryTimeout:   5 * time.Second,
		},
		Actors: ActorsConfig{
			MailboxSize: 64,
			IdleTimeout: time.Minute,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
		HTTP: HTTPConfig{
			RequestTimeout: 10 * time.Second,
		},
	}
}

// LoadEngineConfig loads the engine file, filling unset keys with defaults.
func LoadEngineConfig(filepath string) (EngineConfigFile, error) {
	config := DefaultEngineConfig()

	data, err := os.ReadFile(filepath)
	if err != nil {
		return EngineConfigFile{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return EngineConfigFile{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	err = ValidateEngineConfig(config)
	if err != nil {
		return EngineConfigFile{}, err
	}

	return config, nil
}

// LoadEngineConfigOrDefault loads filepath, or returns the defaults when filepath is empty.
func LoadEngineConfigOrDefault(filepath string) (EngineConfigFile, error) {
	if filepath == "" {
		return DefaultEngineConfig(), nil
	}

	return LoadEngineConfig(filepath)
}

// ValidateEngineConfig validates the engine configuration.
func ValidateEngineConfig(config EngineConfigFile) error {
	err := validate.Struct(config)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]

			return fmt.Errorf("invalid engine config: %s fails %q", first.Namespace(), first.Tag())
		}

		return fmt.Errorf("invalid engine config: %w", err)
	}

	return nil
}

// HasSink reports whether the named sink is enabled.
func (c EventLogConfig) HasSink(name string) bool {
	for _, sink := range c.Sinks {
		if sink == name {
			return true
		}
	}

	return false
}
