// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the acquisition host.
const (
	DefaultProcessor       = "template"
	DefaultSource          = SourceSynthetic
	DefaultChannels        = 8     // Channels in the default stream
	DefaultSampleRate      = 30000 // Typical extracellular sampling rate (Hz)
	DefaultFramesPerBuffer = 1024
	DefaultDeviceID        = MinDeviceID
	DefaultStreamID        = 100
	DefaultStreamName      = "example_data"
	DefaultRecordingDir    = "./recordings"
	DefaultSessionDB       = "sessions.db"
	DefaultWebSocketAddr   = ":8080"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPInterval     = 33 * time.Millisecond // ~30Hz
	DefaultTTLInterval     = time.Second
	DefaultToneHz          = 8.0
	DefaultFFTSize         = 1024
	DefaultFFTWindow       = "Hann"
	DefaultGateThreshold   = 0.0
	DefaultBitVolts        = 0.195 // Microvolts per bit in recorded WAV files.
	DefaultBurstThreshold  = 50.0
	DefaultBurstRatio      = 2.0
	DefaultBurstCooldown   = 100 * time.Millisecond

	// Hardware and processing limits
	MinDeviceID     = -1 // -1 represents system default device
	MaxBufferFrames = 8192
	MaxChannels     = 1024
	MaxTTLLine      = 255
)

// Acquisition sources.
const (
	SourceSynthetic = "synthetic"
	SourcePortAudio = "portaudio"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug       bool              `yaml:"debug"`
	LogLevel    string            `yaml:"log_level"`
	LogFile     string            `yaml:"log_file"`
	Command     string            `yaml:"command,omitempty"` // One-off command instead of running the host.
	Processor   ProcessorConfig   `yaml:"processor"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Recording   RecordingConfig   `yaml:"recording"`
	Transport   TransportConfig   `yaml:"transport"`

	Monitor bool `yaml:"-"` // Set from the CLI only.
}

// ProcessorConfig selects the processor and holds settings for the bundled ones.
type ProcessorConfig struct {
	Name            string  `yaml:"name"`
	FFTSize         int     `yaml:"fft_size"`
	FFTWindow       string  `yaml:"fft_window"`
	FFTChannel      int     `yaml:"fft_channel"`
	GateThreshold   float64 `yaml:"gate_threshold"`    // Absolute amplitude below which samples are zeroed.
	GateControlLine *int    `yaml:"gate_control_line"` // TTL line enabling the gate; nil leaves it always on.
	BitVolts        float64 `yaml:"bit_volts"`         // WAV recorder scale.

	BurstThreshold float64       `yaml:"burst_threshold"` // Minimum buffer RMS for a burst onset.
	BurstRatio     float64       `yaml:"burst_ratio"`     // Minimum RMS increase over the previous buffer.
	BurstCooldown  time.Duration `yaml:"burst_cooldown"`
}

// AcquisitionConfig describes where blocks come from and their shape.
type AcquisitionConfig struct {
	Source          string         `yaml:"source"` // "synthetic" or "portaudio"
	InputDevice     int            `yaml:"input_device"`
	LowLatency      bool           `yaml:"low_latency"`
	SampleRate      float64        `yaml:"sample_rate"`
	FramesPerBuffer int            `yaml:"frames_per_buffer"`
	Streams         []StreamConfig `yaml:"streams"`
	TTLInterval     time.Duration  `yaml:"ttl_interval"` // Synthetic source only.
	ToneHz          float64        `yaml:"tone_hz"`      // Synthetic source only.
}

// StreamConfig describes one data stream.
type StreamConfig struct {
	ID       uint16 `yaml:"id"`
	Name     string `yaml:"name"`
	Channels int    `yaml:"channels"`
	Enabled  bool   `yaml:"enabled"`
}

// RecordingConfig holds settings related to recording sessions.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseDir   string `yaml:"base_dir"`   // Sessions are created as subdirectories.
	SessionDB string `yaml:"session_db"` // Path of the session index.
}

// TransportConfig holds settings for publishing processor output.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddr    string        `yaml:"websocket_addr"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Processor: ProcessorConfig{
			Name:          DefaultProcessor,
			FFTSize:       DefaultFFTSize,
			FFTWindow:     DefaultFFTWindow,
			GateThreshold: DefaultGateThreshold,
			BitVolts:      DefaultBitVolts,

			BurstThreshold: DefaultBurstThreshold,
			BurstRatio:     DefaultBurstRatio,
			BurstCooldown:  DefaultBurstCooldown,
		},
		Acquisition: AcquisitionConfig{
			Source:          DefaultSource,
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Streams: []StreamConfig{
				{ID: DefaultStreamID, Name: DefaultStreamName, Channels: DefaultChannels, Enabled: true},
			},
			TTLInterval: DefaultTTLInterval,
			ToneHz:      DefaultToneHz,
		},
		Recording: RecordingConfig{
			BaseDir:   DefaultRecordingDir,
			SessionDB: DefaultSessionDB,
		},
		Transport: TransportConfig{
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPInterval,
		},
	}
}

// TotalChannels sums the channel count of every configured stream.
func (c *Config) TotalChannels() int {
	n := 0
	for _, s := range c.Acquisition.Streams {
		n += s.Channels
	}
	return n
}
