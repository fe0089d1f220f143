// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephys/internal/config"
	"ephys/internal/host"
	"ephys/internal/processor"
)

type recordingSink struct {
	mu     sync.Mutex
	blocks []int64
	counts []int
	first  []float32
	ttl    []processor.TTLEvent
	err    error
}

func (r *recordingSink) Process(b *host.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range b.SampleCounts {
		r.blocks = append(r.blocks, b.FirstSample[id])
		r.counts = append(r.counts, n)
		break
	}
	r.first = append(r.first, b.Data[0][0])
	return r.err
}

func (r *recordingSink) HandleTTLEvent(ev processor.TTLEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = append(r.ttl, ev)
}

func (r *recordingSink) blockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

func testAcquisition() config.AcquisitionConfig {
	return config.AcquisitionConfig{
		Source:          config.SourceSynthetic,
		SampleRate:      1000,
		FramesPerBuffer: 100,
		TTLInterval:     250 * time.Millisecond,
		ToneHz:          10,
		Streams: []config.StreamConfig{
			{ID: 100, Name: "probe", Channels: 2, Enabled: true},
			{ID: 101, Name: "aux", Channels: 1, Enabled: false},
		},
	}
}

func TestStreams(t *testing.T) {
	streams := Streams(testAcquisition())
	require.Len(t, streams, 2)
	assert.Equal(t, host.Stream{ID: 100, Name: "probe", SampleRate: 1000, Channels: 2, Enabled: true}, streams[0])
	assert.False(t, streams[1].Enabled)
}

func TestSyntheticStep(t *testing.T) {
	sink := &recordingSink{}
	s := NewSyntheticSource(testAcquisition(), sink)

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Step())
	}

	assert.Equal(t, []int64{0, 100, 200, 300, 400, 500}, sink.blocks)
	assert.Equal(t, int64(600), s.Sample())
	for _, n := range sink.counts {
		assert.Equal(t, 100, n)
	}

	// Toggles at 0, 250 and 500.
	require.Len(t, sink.ttl, 3)
	assert.Equal(t, int64(0), sink.ttl[0].SampleNumber)
	assert.True(t, sink.ttl[0].State)
	assert.Equal(t, int64(250), sink.ttl[1].SampleNumber)
	assert.False(t, sink.ttl[1].State)
	assert.Equal(t, int64(500), sink.ttl[2].SampleNumber)
	assert.Equal(t, uint16(100), sink.ttl[2].StreamID)
}

func TestSyntheticAmplitude(t *testing.T) {
	var got *host.Block
	sink := &captureSink{fn: func(b *host.Block) { got = b }}
	s := NewSyntheticSource(testAcquisition(), sink)
	require.NoError(t, s.Step())

	require.Len(t, got.Data, 3)
	for c, row := range got.Data {
		for i, v := range row {
			if v > syntheticAmplitude+syntheticNoise || v < -syntheticAmplitude-syntheticNoise {
				t.Fatalf("sample [%d][%d] = %g out of range", c, i, v)
			}
		}
	}
}

type captureSink struct {
	fn func(*host.Block)
}

func (c *captureSink) Process(b *host.Block) error       { c.fn(b); return nil }
func (c *captureSink) HandleTTLEvent(processor.TTLEvent) {}

func TestSyntheticNoTTL(t *testing.T) {
	cfg := testAcquisition()
	cfg.TTLInterval = 0
	sink := &recordingSink{}
	s := NewSyntheticSource(cfg, sink)
	require.NoError(t, s.Step())
	assert.Empty(t, sink.ttl)
}

func TestSyntheticSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("rejected")}
	s := NewSyntheticSource(testAcquisition(), sink)
	assert.EqualError(t, s.Step(), "rejected")
}

func TestSyntheticStartStop(t *testing.T) {
	cfg := testAcquisition()
	cfg.FramesPerBuffer = 10 // 10ms blocks
	sink := &recordingSink{}
	s := NewSyntheticSource(cfg, sink)
	assert.Equal(t, 10*time.Millisecond, s.Period())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return sink.blockCount() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	n := sink.blockCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, sink.blockCount(), "no blocks after Stop")
}

func TestSyntheticContextCancel(t *testing.T) {
	cfg := testAcquisition()
	cfg.FramesPerBuffer = 10
	s := NewSyntheticSource(cfg, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("generator did not exit on context cancel")
	}
	require.NoError(t, s.Stop())
}

func TestSyntheticIntoNode(t *testing.T) {
	node := host.NewNode(processor.NewRegistry())
	cfg := testAcquisition()
	require.NoError(t, node.UpdateSettings(Streams(cfg)))
	require.NoError(t, node.SetProcessor(processor.TemplateName))
	require.NoError(t, node.StartAcquisition())

	s := NewSyntheticSource(cfg, node)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Step())
	}

	stats := node.Stats()
	assert.Equal(t, uint64(3), stats.Blocks)
	assert.Equal(t, uint64(300), stats.Samples, "disabled stream samples are not counted")
	assert.Equal(t, uint64(2), stats.TTLEvents)
	assert.True(t, stats.Ready)
}

func TestNewSelectsSource(t *testing.T) {
	src, err := New(testAcquisition(), &recordingSink{})
	require.NoError(t, err)
	assert.IsType(t, &SyntheticSource{}, src)
}

func TestDeinterleave(t *testing.T) {
	in := []float32{1, 10, 2, 20, 3, 30, 4}
	out := [][]float32{make([]float32, 4), make([]float32, 4)}

	frames := deinterleave(in, out)
	assert.Equal(t, 3, frames)
	assert.Equal(t, []float32{1, 2, 3, 0}, out[0])
	assert.Equal(t, []float32{10, 20, 30, 0}, out[1])

	assert.Equal(t, 0, deinterleave(in, nil))
}

func TestDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, errors.New("mock error")
	}

	_, err := Devices()
	assert.ErrorContains(t, err, "mock error")
	_, err = InputDevice(3)
	assert.ErrorContains(t, err, "mock error")
}

func TestInputDeviceValidation(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return []*portaudio.DeviceInfo{
			{Name: "Speakers", MaxOutputChannels: 2},
			{Name: "Headstage", MaxInputChannels: 32, DefaultSampleRate: 30000},
		}, nil
	}

	_, err := InputDevice(0)
	assert.ErrorContains(t, err, "no input channels")
	_, err = InputDevice(5)
	assert.ErrorContains(t, err, "invalid device ID")

	dev, err := InputDevice(1)
	require.NoError(t, err)
	assert.Equal(t, "Headstage", dev.Name)

	devices, err := Devices()
	require.NoError(t, err)
	assert.Equal(t, "Output", devices[0].Kind())
	assert.Equal(t, "Input", devices[1].Kind())

	var sb strings.Builder
	ListDevices(&sb, devices)
	assert.Contains(t, sb.String(), "[1] Headstage (Input)")
	assert.Contains(t, sb.String(), "Default sample rate: 30000 Hz")
}
