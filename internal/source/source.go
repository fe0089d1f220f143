// SPDX-License-Identifier: MIT
/*
Package source produces acquisition blocks and events and pushes them into
a Sink, normally a *host.Node.

Two sources exist: a PortAudio input stream for real hardware and a
synthetic generator used for development and tests. Both report sample
numbers counted from the start of the acquisition run.
*/
package source

import (
	"context"

	"ephys/internal/config"
	"ephys/internal/host"
	"ephys/internal/processor"
)

// Sink consumes what a source produces.
type Sink interface {
	Process(b *host.Block) error
	HandleTTLEvent(ev processor.TTLEvent)
}

var _ Sink = (*host.Node)(nil)

// Source is a running producer of blocks.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
}

// Streams converts the configured streams into host stream settings, all
// sharing the acquisition sample rate.
func Streams(cfg config.AcquisitionConfig) []host.Stream {
	streams := make([]host.Stream, len(cfg.Streams))
	for i, s := range cfg.Streams {
		streams[i] = host.Stream{
			ID:         s.ID,
			Name:       s.Name,
			SampleRate: cfg.SampleRate,
			Channels:   s.Channels,
			Enabled:    s.Enabled,
		}
	}
	return streams
}

// New builds the source selected by cfg.Source.
func New(cfg config.AcquisitionConfig, sink Sink) (Source, error) {
	if cfg.Source == config.SourcePortAudio {
		return NewPortAudioSource(cfg, sink)
	}
	return NewSyntheticSource(cfg, sink), nil
}
