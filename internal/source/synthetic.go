// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"ephys/internal/config"
	"ephys/internal/host"
	applog "ephys/internal/log"
	"ephys/internal/processor"
)

const (
	syntheticAmplitude = 100.0 // µV
	syntheticNoise     = 5.0   // µV, uniform
	syntheticTTLLine   = 0
)

// SyntheticSource generates one sine per channel, at multiples of the base
// tone, plus a TTL line that toggles at a fixed interval.
type SyntheticSource struct {
	cfg  config.AcquisitionConfig
	sink Sink

	streams  []host.Stream
	block    *host.Block
	frames   int
	rate     float64
	ttlEvery int64

	sample   atomic.Int64
	ttlState bool
	rng      *rand.Rand

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSyntheticSource creates a stopped generator for the configured streams.
func NewSyntheticSource(cfg config.AcquisitionConfig, sink Sink) *SyntheticSource {
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = config.DefaultFramesPerBuffer
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = config.DefaultSampleRate
	}
	streams := Streams(cfg)

	s := &SyntheticSource{
		cfg:     cfg,
		sink:    sink,
		streams: streams,
		block:   host.NewBlock(streams, frames),
		frames:  frames,
		rate:    rate,
		rng:     rand.New(rand.NewPCG(1, 2)),
	}
	if cfg.TTLInterval > 0 {
		s.ttlEvery = int64(cfg.TTLInterval.Seconds() * rate)
	}
	return s
}

// Period is the wall-clock duration of one block.
func (s *SyntheticSource) Period() time.Duration {
	return time.Duration(float64(s.frames) / s.rate * float64(time.Second))
}

// Start launches the generator goroutine. Starting a running source is a
// no-op.
func (s *SyntheticSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	applog.Infof("Source: synthetic (%d streams, %d frames @ %.0f Hz, period %s)",
		len(s.streams), s.frames, s.rate, s.Period())
	go s.run(ctx, s.done)
	return nil
}

func (s *SyntheticSource) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Step(); err != nil {
				applog.Warnf("Source: block rejected: %v", err)
			}
		}
	}
}

// Stop halts the generator and waits for it to exit. Stopping a stopped
// source is a no-op.
func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	applog.Infof("Source: synthetic stopped at sample %d", s.sample.Load())
	return nil
}

// Step generates and delivers one block. TTL transitions that fall inside
// the block are delivered before it.
func (s *SyntheticSource) Step() error {
	start := s.sample.Load()
	end := start + int64(s.frames)

	if s.ttlEvery > 0 {
		next := (start + s.ttlEvery - 1) / s.ttlEvery * s.ttlEvery
		for ; next < end; next += s.ttlEvery {
			s.ttlState = !s.ttlState
			s.sink.HandleTTLEvent(processor.TTLEvent{
				State:        s.ttlState,
				SampleNumber: next,
				Line:         syntheticTTLLine,
				StreamID:     s.streams[0].ID,
			})
		}
	}

	c := 0
	for _, st := range s.streams {
		for ch := 0; ch < st.Channels; ch++ {
			freq := s.cfg.ToneHz * float64(ch+1)
			row := s.block.Data[c]
			for i := range row {
				t := float64(start+int64(i)) / s.rate
				noise := (s.rng.Float64()*2 - 1) * syntheticNoise
				row[i] = float32(syntheticAmplitude*math.Sin(2*math.Pi*freq*t) + noise)
			}
			c++
		}
		s.block.SampleCounts[st.ID] = s.frames
	}
	s.block.Advance(start)
	s.sample.Store(end)

	return s.sink.Process(s.block)
}

// Sample returns the number of samples generated so far.
func (s *SyntheticSource) Sample() int64 {
	return s.sample.Load()
}
