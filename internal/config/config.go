// Package config loads and validates gateway configuration from YAML
// with environment variable expansion.
package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  CoreConfig     `yaml:"gateway"`
	Events   EventsConfig   `yaml:"events"`
}

// InstanceConfig identifies this gateway process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds handshake identity settings. An empty token secret
// enables the development owner query-parameter mode.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

// CoreConfig holds gateway and transport tuning.
type CoreConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout"`
	IdleAfter      time.Duration `yaml:"idle_after"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	ReadLimit      int64         `yaml:"read_limit"`
}

// EventsConfig holds the optional event broker connection. An empty URL
// disables publishing.
type EventsConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}
