// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	applog "ephys/internal/log"

	"gopkg.in/yaml.v3"
)

// DefaultPath is searched when LoadConfig is given an empty path.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the working directory for DefaultPath. If no file is found, it uses built-in
// defaults. After loading, it applies environment variable overrides and validates the
// final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the host cannot run with.
func (c *Config) Validate() error {
	if c.Processor.Name == "" {
		return fmt.Errorf("processor.name must be set")
	}
	if l := c.Processor.GateControlLine; l != nil && (*l < 0 || *l > MaxTTLLine) {
		return fmt.Errorf("processor.gate_control_line must be in [0, %d], got %d", MaxTTLLine, *l)
	}
	if c.Processor.BitVolts < 0 {
		return fmt.Errorf("processor.bit_volts must not be negative, got %f", c.Processor.BitVolts)
	}

	a := c.Acquisition
	switch a.Source {
	case SourceSynthetic, SourcePortAudio:
	default:
		return fmt.Errorf("acquisition.source %q is not one of %q, %q", a.Source, SourceSynthetic, SourcePortAudio)
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("acquisition.sample_rate must be positive, got %f", a.SampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("acquisition.frames_per_buffer must be in (0, %d], got %d", MaxBufferFrames, a.FramesPerBuffer)
	}
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("acquisition.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice)
	}
	if len(a.Streams) == 0 {
		return fmt.Errorf("acquisition.streams must list at least one stream")
	}

	seen := make(map[uint16]bool, len(a.Streams))
	for i, s := range a.Streams {
		if s.Channels <= 0 {
			return fmt.Errorf("acquisition.streams[%d].channels must be positive, got %d", i, s.Channels)
		}
		if seen[s.ID] {
			return fmt.Errorf("acquisition.streams[%d].id %d is duplicated", i, s.ID)
		}
		seen[s.ID] = true
	}
	if total := c.TotalChannels(); total > MaxChannels {
		return fmt.Errorf("total channel count %d exceeds %d", total, MaxChannels)
	}
	if a.Source == SourcePortAudio && len(a.Streams) != 1 {
		return fmt.Errorf("portaudio source supports exactly one stream, got %d", len(a.Streams))
	}

	if c.Recording.Enabled && c.Recording.BaseDir == "" {
		return fmt.Errorf("recording.base_dir must be set when recording is enabled")
	}

	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file or default values.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Debugf("Config: overriding debug from env: %v", bVal)
		}
	}
	// ENV_PROCESSOR
	if val, ok := os.LookupEnv("ENV_PROCESSOR"); ok && val != "" {
		c.Processor.Name = val
		applog.Debugf("Config: overriding processor.name from env: %s", val)
	}
	// ENV_RECORDING_DIR
	if val, ok := os.LookupEnv("ENV_RECORDING_DIR"); ok && val != "" {
		c.Recording.BaseDir = val
		applog.Debugf("Config: overriding recording.base_dir from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Debugf("Config: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("Config: overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Debugf("Config: overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
