package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr      = ":8090"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCommandTimeout  = 30 * time.Second
	DefaultIdleAfter       = 60 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultPingInterval    = 15 * time.Second
	DefaultPongTimeout     = 60 * time.Second
	DefaultReadLimit       = 1 << 20
	DefaultSubjectPrefix   = "deskgate.events"
)

func (c *GatewayConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultListenAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Gateway.CommandTimeout == 0 {
		c.Gateway.CommandTimeout = DefaultCommandTimeout
	}
	if c.Gateway.IdleAfter == 0 {
		c.Gateway.IdleAfter = DefaultIdleAfter
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}
	if c.Gateway.PongTimeout == 0 {
		c.Gateway.PongTimeout = DefaultPongTimeout
	}
	if c.Gateway.ReadLimit == 0 {
		c.Gateway.ReadLimit = DefaultReadLimit
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = DefaultSubjectPrefix
	}
}
