package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Bind == "" {
		return errors.New("ingest.bind must be set")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Size <= 0 {
		return errors.New("batch.size must be positive")
	}
	if c.Batch.FlushInterval <= 0 {
		return errors.New("batch.flush_interval must be positive")
	}
	if c.Batch.MaxLogLines < 0 {
		return errors.New("batch.max_log_lines must not be negative")
	}
	return nil
}

func (c *Config) validateDedup() error {
	if c.Dedup.Capacity <= 0 {
		return errors.New("dedup.capacity must be positive")
	}
	return nil
}

func (c *Config) validateTransport() error {
	if c.Transport.DaemonAddress == "" && c.Transport.HostSocket == "" {
		return errors.New("transport requires daemon_address or host_socket")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
