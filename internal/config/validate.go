package config

import "errors"

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Gateway.CommandTimeout <= 0 {
		return errors.New("gateway.command_timeout must be positive")
	}
	if c.Gateway.WriteTimeout <= 0 {
		return errors.New("gateway.write_timeout must be positive")
	}
	if c.Gateway.PingInterval <= 0 {
		return errors.New("gateway.ping_interval must be positive")
	}
	if c.Gateway.PongTimeout <= c.Gateway.PingInterval {
		return errors.New("gateway.pong_timeout must exceed gateway.ping_interval")
	}
	if c.Gateway.ReadLimit < 1 {
		return errors.New("gateway.read_limit must be >= 1")
	}

	return nil
}
