// Package config loads the weave.yaml host configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that points at the config file.
const EnvConfig = "WEAVE_CONFIG"

// DefaultPath is read when neither a flag nor EnvConfig names a file.
const DefaultPath = "weave.yaml"

// Config is the root of weave.yaml.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Session     SessionConfig     `yaml:"session"`
	Host        HostConfig        `yaml:"host"`
	Store       StoreConfig       `yaml:"store"`
	HTTP        HTTPConfig        `yaml:"http"`
	Journal     JournalConfig     `yaml:"journal"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type InterpreterConfig struct {
	MaxDepth int    `yaml:"max_depth"`
	Seed     uint64 `yaml:"seed"` // 0 means nondeterministic drift
}

// SessionConfig seeds newly created sessions.
type SessionConfig struct {
	ID      string               `yaml:"id"`
	Model   map[string]float64   `yaml:"model"`
	Vectors map[string][]float64 `yaml:"vectors"`
}

type HostConfig struct {
	Sim       *SimConfig    `yaml:"sim"`
	Sensors   []ChannelSpec `yaml:"sensors"`
	Actuators []ChannelSpec `yaml:"actuators"`
}

// SimConfig enables the simulated light-seeker world.
type SimConfig struct {
	Light   [2]float64 `yaml:"light"`
	Robot   [2]float64 `yaml:"robot"`
	Falloff float64    `yaml:"falloff"`
}

// ChannelSpec declares one sensor or actuator. Params are kind-specific and
// decoded with DecodeParams.
type ChannelSpec struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

type StoreConfig struct {
	Backend       string      `yaml:"backend"` // memory | file | redis | bolt
	Path          string      `yaml:"path"`
	Redis         RedisConfig `yaml:"redis"`
	EncryptionKey string      `yaml:"encryption_key"` // base64, 32 bytes decoded
	Ephemeral     []string    `yaml:"ephemeral"`      // model keys never persisted
}

type RedisConfig struct {
	Addr   string        `yaml:"addr"`
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
	Lock   bool          `yaml:"lock"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// ScheduleConfig drives autonomous ticks in serve mode.
type ScheduleConfig struct {
	Cron    string `yaml:"cron"`
	Program string `yaml:"program"` // path to the program run on every tick
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:         LogConfig{Level: "info", Format: "text"},
		Interpreter: InterpreterConfig{MaxDepth: 64},
		Session:     SessionConfig{ID: "default"},
		Store:       StoreConfig{Backend: "memory"},
		HTTP:        HTTPConfig{Addr: ":8080"},
		MQTT:        MQTTConfig{ClientID: "weave", TopicPrefix: "weave"},
	}
}

// Resolve picks the config path: the explicit path, then EnvConfig, then DefaultPath.
// The second result reports whether the path was asked for explicitly.
func Resolve(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, true
	}
	return DefaultPath, false
}

// Load reads the configuration. A missing default file yields Default();
// a missing explicit file is an error.
func Load(path string) (*Config, error) {
	resolved, explicit := Resolve(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values yaml cannot.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "redis", "bolt":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		return errors.New("store.redis.addr is required for the redis backend")
	}
	if c.Store.Backend == "bolt" && c.Store.Path == "" {
		return errors.New("store.path is required for the bolt backend")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	for _, list := range [][]ChannelSpec{c.Host.Sensors, c.Host.Actuators} {
		for i, ch := range list {
			if ch.Name == "" || ch.Kind == "" {
				return fmt.Errorf("host channel #%d needs both name and kind", i+1)
			}
		}
	}
	return nil
}

// DecodeParams decodes free-form channel params into out (a pointer to a struct
// with mapstructure tags). Durations may be written as strings ("250ms").
func DecodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid channel params: %w", err)
	}
	return nil
}
