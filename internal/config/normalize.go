package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTransport()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if dir := strings.TrimSpace(c.Paths.OutputDir); dir != "" {
		if c.Paths.OutputDir, err = expandPath(dir); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	} else {
		c.Paths.OutputDir = ""
	}
	if sock := strings.TrimSpace(c.Paths.ControlSocket); sock != "" {
		if c.Paths.ControlSocket, err = expandPath(sock); err != nil {
			return fmt.Errorf("paths.control_socket: %w", err)
		}
	} else {
		c.Paths.ControlSocket = filepath.Join(c.Paths.StateDir, "xtapd.sock")
	}
	return nil
}

func (c *Config) normalizeTransport() {
	c.Transport.DaemonAddress = strings.TrimSpace(c.Transport.DaemonAddress)
	if socket := strings.TrimSpace(c.Transport.HostSocket); socket != "" {
		if expanded, err := expandPath(socket); err == nil {
			c.Transport.HostSocket = expanded
		}
	}
	if c.Transport.SendTimeout <= 0 {
		c.Transport.SendTimeout = defaultSendTimeout
	}
	if c.Transport.ProbeTimeout <= 0 {
		c.Transport.ProbeTimeout = defaultProbeTimeout
	}
	if c.Transport.BootstrapTimeout <= 0 {
		c.Transport.BootstrapTimeout = defaultBootstrapTimeout
	}
	if c.Transport.DisconnectWindow <= 0 {
		c.Transport.DisconnectWindow = defaultDisconnectWindow
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
