package config

import "time"

// Config holds bot runner configuration values.
type Config struct {
	Username      string        `mapstructure:"username" yaml:"username"`
	Password      string        `mapstructure:"password" yaml:"password,omitempty"`
	Session       string        `mapstructure:"session" yaml:"session,omitempty"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure      bool          `mapstructure:"insecure" yaml:"insecure"`
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string        `mapstructure:"log_format" yaml:"log_format"`
	PumpInterval  time.Duration `mapstructure:"pump_interval" yaml:"pump_interval"`
	Rooms         []string      `mapstructure:"rooms" yaml:"rooms"`
	Admins        []string      `mapstructure:"admins" yaml:"admins"`
	RegisterDelay time.Duration `mapstructure:"register_delay" yaml:"register_delay"`
	StatusAddr    string        `mapstructure:"status_addr" yaml:"status_addr"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Endpoint:      "https://coinchat.org:443",
		LogLevel:      "info",
		LogFormat:     "console",
		PumpInterval:  600 * time.Millisecond,
		Rooms:         []string{"botgames"},
		RegisterDelay: 3 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Username != "" {
		c.Username = other.Username
	}
	if other.Password != "" {
		c.Password = other.Password
	}
	if other.Session != "" {
		c.Session = other.Session
	}
	if other.Endpoint != "" {
		c.Endpoint = other.Endpoint
	}
	if other.Insecure {
		c.Insecure = true
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.PumpInterval != 0 {
		c.PumpInterval = other.PumpInterval
	}
	if len(other.Rooms) > 0 {
		c.Rooms = other.Rooms
	}
	if len(other.Admins) > 0 {
		c.Admins = other.Admins
	}
	if other.RegisterDelay != 0 {
		c.RegisterDelay = other.RegisterDelay
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
}
