// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"ephys/internal/config"
	"ephys/internal/host"
	applog "ephys/internal/log"
)

// PortAudioSource reads a single interleaved float32 input stream and
// delivers it as blocks. PortAudio must be initialized by the caller.
type PortAudioSource struct {
	cfg     config.AcquisitionConfig
	sink    Sink
	stream  host.Stream
	device  *portaudio.DeviceInfo
	latency time.Duration

	block  *host.Block
	sample int64

	mu       sync.Mutex
	paStream *portaudio.Stream
}

// NewPortAudioSource resolves the input device for a single-stream
// configuration.
func NewPortAudioSource(cfg config.AcquisitionConfig, sink Sink) (*PortAudioSource, error) {
	streams := Streams(cfg)
	if len(streams) != 1 {
		return nil, fmt.Errorf("portaudio source needs exactly one stream, got %d", len(streams))
	}

	device, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	s := &PortAudioSource{
		cfg:    cfg,
		sink:   sink,
		stream: streams[0],
		device: device,
		block:  host.NewBlock(streams, cfg.FramesPerBuffer),
	}
	if cfg.LowLatency {
		s.latency = device.DefaultLowInputLatency
	} else {
		s.latency = device.DefaultHighInputLatency
	}
	return s, nil
}

// Start opens and starts the input stream. Starting a running source is a
// no-op.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paStream != nil {
		return nil
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: s.stream.Channels,
			Device:   s.device,
			Latency:  s.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      s.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.processInput)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	s.paStream = stream
	applog.Infof("Source: portaudio %q (%d channels @ %.0f Hz, latency %s)",
		s.device.Name, s.stream.Channels, s.cfg.SampleRate, s.latency)
	return nil
}

// Stop stops and closes the input stream. Stopping a stopped source is a
// no-op.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paStream == nil {
		return nil
	}
	if err := s.paStream.Stop(); err != nil {
		return err
	}
	if err := s.paStream.Close(); err != nil {
		return err
	}
	s.paStream = nil
	return nil
}

// processInput is the PortAudio callback. It runs on the audio thread and
// reuses the preallocated block.
func (s *PortAudioSource) processInput(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	frames := deinterleave(in, s.block.Data)
	s.block.SampleCounts[s.stream.ID] = frames
	s.block.Advance(s.sample)
	s.sample += int64(frames)

	if err := s.sink.Process(s.block); err != nil {
		applog.Warnf("Source: block rejected: %v", err)
	}
}

// deinterleave splits frame-major samples into per-channel rows and
// returns the number of complete frames copied.
func deinterleave(in []float32, out [][]float32) int {
	channels := len(out)
	if channels == 0 {
		return 0
	}
	frames := len(in) / channels
	if len(out[0]) < frames {
		frames = len(out[0])
	}
	for i := 0; i < frames; i++ {
		base := i * channels
		for c := 0; c < channels; c++ {
			out[c][i] = in[base+c]
		}
	}
	return frames
}
