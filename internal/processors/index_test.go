// SPDX-License-Identifier: MIT
package processors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephys/internal/config"
	"ephys/internal/host"
	"ephys/internal/processor"
	"ephys/internal/processors/wavrecorder"
	"ephys/pkg/utils"
)

func TestRegisterAll(t *testing.T) {
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Settings: Static(config.NewConfig().Processor)}))

	assert.Equal(t, []string{"burst", "gate", "spectrum", "template", "wavrecorder"}, reg.Names())

	for _, name := range reg.Names() {
		f, err := reg.Lookup(name)
		require.NoError(t, err, name)
		p, err := f(8, 30000)
		require.NoError(t, err, name)
		assert.NotNil(t, p, name)
	}
}

func TestRegisterAllTwice(t *testing.T) {
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{}))
	assert.Error(t, RegisterAll(reg, Deps{}))
}

func TestBadWindowFailsConstruction(t *testing.T) {
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Settings: Static(config.ProcessorConfig{FFTWindow: "square-ish"})}))

	f, err := reg.Lookup("spectrum")
	require.NoError(t, err)
	_, err = f(2, 1000)
	assert.ErrorIs(t, err, processor.ErrInvalidSettings)
}

func TestSettingsReadOnReload(t *testing.T) {
	pc := config.ProcessorConfig{GateThreshold: 5}
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Settings: func() config.ProcessorConfig { return pc }}))

	node := host.NewNode(reg)
	defer node.Close()
	require.NoError(t, node.UpdateSettings([]host.Stream{{ID: 1, SampleRate: 1000, Channels: 1, Enabled: true}}))
	require.NoError(t, node.SetProcessor("gate"))

	pc.GateThreshold = 50
	require.NoError(t, node.Reload())

	block := host.NewBlock(node.Streams(), 2)
	copy(block.Data[0], []float32{10, 60})
	require.NoError(t, node.Process(block))
	assert.Equal(t, []float32{0, 60}, block.Data[0])
}

func TestSpectrumThroughHost(t *testing.T) {
	mt := &utils.MockTransport{}
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{
		Settings:  Static(config.ProcessorConfig{FFTSize: 256, FFTWindow: "hann"}),
		Transport: mt,
	}))

	node := host.NewNode(reg)
	defer node.Close()

	require.NoError(t, node.UpdateSettings([]host.Stream{{ID: 1, Name: "probe", SampleRate: 1000, Channels: 2, Enabled: true}}))
	require.NoError(t, node.SetProcessor("spectrum"))
	require.NoError(t, node.StartAcquisition())

	block := host.NewBlock(node.Streams(), 256)
	copy(block.Data[0], utils.SineWave(256, 1000, 62.5, 1))
	require.NoError(t, node.Process(block))

	require.Len(t, mt.Messages(), 1)
	assert.Equal(t, 16, utils.FindPeakBin(mt.LastData, 1, len(mt.LastData)-1))
	assert.True(t, node.Stats().Ready)
}

func TestGateThroughHost(t *testing.T) {
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Settings: Static(config.ProcessorConfig{GateThreshold: 5})}))

	node := host.NewNode(reg)
	defer node.Close()

	require.NoError(t, node.UpdateSettings([]host.Stream{{ID: 1, SampleRate: 1000, Channels: 1, Enabled: true}}))
	require.NoError(t, node.SetProcessor("gate"))

	block := host.NewBlock(node.Streams(), 4)
	copy(block.Data[0], []float32{1, 10, -3, -7})
	require.NoError(t, node.Process(block))
	assert.Equal(t, []float32{0, 10, 0, -7}, block.Data[0])
}

func TestUnknownProcessor(t *testing.T) {
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{}))
	_, err := reg.Lookup("python")
	assert.True(t, errors.Is(err, processor.ErrUnknownProcessor))
}

func TestGateControlLineFromSettings(t *testing.T) {
	line := 2
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Settings: Static(config.ProcessorConfig{
		GateThreshold:   5,
		GateControlLine: &line,
	})}))

	node := host.NewNode(reg)
	defer node.Close()
	require.NoError(t, node.UpdateSettings([]host.Stream{{ID: 1, SampleRate: 1000, Channels: 1, Enabled: true}}))
	require.NoError(t, node.SetProcessor("gate"))

	process := func() []float32 {
		block := host.NewBlock(node.Streams(), 2)
		copy(block.Data[0], []float32{1, 10})
		require.NoError(t, node.Process(block))
		return block.Data[0]
	}

	node.HandleTTLEvent(processor.TTLEvent{Line: 2, State: false, StreamID: 1})
	assert.Equal(t, []float32{1, 10}, process(), "low control line disables the gate")

	node.HandleTTLEvent(processor.TTLEvent{Line: 3, State: true, StreamID: 1})
	assert.Equal(t, []float32{1, 10}, process(), "other lines are ignored")

	node.HandleTTLEvent(processor.TTLEvent{Line: 2, State: true, StreamID: 1})
	assert.Equal(t, []float32{0, 10}, process())
}

func TestGateControlLineOutOfRange(t *testing.T) {
	line := 256
	reg := processor.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Settings: Static(config.ProcessorConfig{GateControlLine: &line})}))

	f, err := reg.Lookup("gate")
	require.NoError(t, err)
	_, err = f(1, 1000)
	assert.ErrorIs(t, err, processor.ErrInvalidSettings)
}

// failingRecorder fails on its second buffer.
type failingRecorder struct {
	*wavrecorder.Recorder
	buffers int
}

func (f *failingRecorder) Process(buf *processor.Buffer) error {
	f.buffers++
	if f.buffers == 2 {
		return errors.New("disk full")
	}
	return f.Recorder.Process(buf)
}

func TestRecorderClosedAfterFailureDuringRecording(t *testing.T) {
	var rec *failingRecorder
	reg := processor.NewRegistry()
	require.NoError(t, reg.Register("failing", func(numChannels int, sampleRate float64) (processor.Processor, error) {
		r, err := wavrecorder.New(numChannels, sampleRate, wavrecorder.Options{BitVolts: 1})
		if err != nil {
			return nil, err
		}
		rec = &failingRecorder{Recorder: r}
		return rec, nil
	}))

	node := host.NewNode(reg)
	defer node.Close()
	require.NoError(t, node.UpdateSettings([]host.Stream{{ID: 3, SampleRate: 1000, Channels: 2, Enabled: true}}))
	require.NoError(t, node.SetProcessor("failing"))

	dir := filepath.Join(t.TempDir(), "session")
	require.NoError(t, node.StartAcquisition())
	require.NoError(t, node.StartRecording(dir))

	for i := 0; i < 3; i++ {
		require.NoError(t, node.Process(host.NewBlock(node.Streams(), 16)))
	}
	require.False(t, node.Stats().Ready)

	require.NoError(t, node.StopRecording())
	assert.False(t, rec.Recording(), "failed recorder must still be stopped")

	f, err := os.Open(filepath.Join(dir, "continuous_3.wav"))
	require.NoError(t, err)
	defer f.Close()
	pcm, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, pcm.Data, 16*2, "header must cover the buffer written before the failure")
}
