package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrNoTopics is returned when the broker configuration names no
// subscription topic. The service has nothing to do without one, so
// the caller treats this as fatal.
var ErrNoTopics = errors.New("no MQTT topics configured (set broker.topic or broker.topics)")

// Config is the root configuration struct
type Config struct {
	Broker   BrokerConfig   `mapstructure:"broker"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	API      APIConfig      `mapstructure:"api"`
}

// BrokerConfig holds MQTT broker connection settings
type BrokerConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	ClientID string   `mapstructure:"client_id"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Topic    string   `mapstructure:"topic"`
	Topics   []string `mapstructure:"topics"`
}

// TopicList returns the subscription topics: the topics list when set,
// otherwise the single topic value.
func (b BrokerConfig) TopicList() []string {
	if len(b.Topics) > 0 {
		return b.Topics
	}
	if b.Topic != "" {
		return []string{b.Topic}
	}
	return nil
}

// URL returns the tcp:// broker address.
func (b BrokerConfig) URL() string {
	return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port)
}

// PathsConfig holds filesystem locations for the pipeline's outputs
type PathsConfig struct {
	Data      string `mapstructure:"data"`
	Output    string `mapstructure:"output"`
	Templates string `mapstructure:"templates"`
}

// ServerConfig holds metadata about the node hosting this service
type ServerConfig struct {
	NodeID       string        `mapstructure:"node_id"`
	Timezone     string        `mapstructure:"timezone"`
	ActiveWindow time.Duration `mapstructure:"active_window"`
}

// ScheduleConfig holds scheduler interval settings
type ScheduleConfig struct {
	Export time.Duration `mapstructure:"export"`
	Render time.Duration `mapstructure:"render"`
}

// ArchiveConfig holds the raw-frame archive settings
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// APIConfig holds the read-only HTTP API settings
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 1883)
	v.SetDefault("broker.client_id", "meshinfo")
	v.SetDefault("paths.data", "data")
	v.SetDefault("paths.output", "output")
	v.SetDefault("paths.templates", "templates")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.active_window", 2*time.Hour)
	v.SetDefault("schedule.export", 60*time.Second)
	v.SetDefault("schedule.render", 60*time.Second)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", "data/archive")
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", ":8080")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields once at startup so every component can
// assume a well-formed configuration.
func (c *Config) Validate() error {
	if len(c.Broker.TopicList()) == 0 {
		return ErrNoTopics
	}
	if c.Broker.Host == "" {
		return errors.New("broker.host must not be empty")
	}
	if c.Paths.Data == "" {
		return errors.New("paths.data must not be empty")
	}
	if c.Paths.Output == "" {
		return errors.New("paths.output must not be empty")
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("server.timezone: %w", err)
	}
	return nil
}

// Location returns the configured timezone. Validate has already checked
// that the name parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
