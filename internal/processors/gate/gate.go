// SPDX-License-Identifier: MIT
package gate

import (
	"math"

	applog "ephys/internal/log"
	"ephys/internal/processor"
)

// Name is the registry name of the processor.
const Name = "gate"

// Gate zeroes every sample whose absolute value is below the threshold.
// The buffer is modified in place, so downstream stages see gated data.
// A TTL event on the control line toggles the gate while acquiring.
type Gate struct {
	threshold   float32
	enabled     bool
	controlLine uint8
	useControl  bool
	gated       uint64
}

var _ processor.Processor = (*Gate)(nil)

// Options configure a Gate.
type Options struct {
	Threshold   float64
	ControlLine *uint8 // TTL line that toggles the gate; nil disables control.
}

// NewFactory returns a processor.Factory building gates. opts is called
// for every instance, so rebuilt instances see current options.
func NewFactory(opts func() (Options, error)) processor.Factory {
	return func(numChannels int, sampleRate float64) (processor.Processor, error) {
		o, err := opts()
		if err != nil {
			return nil, err
		}
		return New(numChannels, sampleRate, o)
	}
}

// New creates an enabled gate.
func New(numChannels int, sampleRate float64, opts Options) (*Gate, error) {
	if err := processor.ValidateSettings(numChannels, sampleRate); err != nil {
		return nil, err
	}
	g := &Gate{enabled: true}
	g.SetThreshold(opts.Threshold)
	if opts.ControlLine != nil {
		g.controlLine = *opts.ControlLine
		g.useControl = true
	}
	applog.Infof("Gate: initializing (threshold: %g, channels: %d)", g.Threshold(), numChannels)
	return g, nil
}

// SetThreshold sets the absolute amplitude threshold. Negative and NaN
// values are treated as zero, which lets every sample through.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0 || math.IsNaN(threshold) {
		threshold = 0
	}
	if threshold > math.MaxFloat32 {
		threshold = math.MaxFloat32
	}
	g.threshold = float32(threshold)
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold)
}

func (g *Gate) Enable()  { g.enabled = true }
func (g *Gate) Disable() { g.enabled = false }

// Enabled reports whether the gate is active.
func (g *Gate) Enabled() bool { return g.enabled }

// Gated returns the number of samples zeroed since construction.
func (g *Gate) Gated() uint64 { return g.gated }

// Process zeroes sub-threshold samples in place.
func (g *Gate) Process(buf *processor.Buffer) error {
	if !g.enabled || g.threshold == 0 {
		return nil
	}
	th := g.threshold
	for _, row := range buf.Data {
		for i, s := range row {
			if s < th && s > -th {
				row[i] = 0
				g.gated++
			}
		}
	}
	return nil
}

func (g *Gate) StartAcquisition() error { return nil }
func (g *Gate) StopAcquisition() error  { return nil }

// HandleTTLEvent enables the gate on a rising edge of the control line and
// disables it on a falling edge.
func (g *Gate) HandleTTLEvent(ev processor.TTLEvent) error {
	if !g.useControl || ev.Line != g.controlLine {
		return nil
	}
	g.enabled = ev.State
	applog.Debugf("Gate: line %d set enabled=%v at sample %d", ev.Line, ev.State, ev.SampleNumber)
	return nil
}

func (g *Gate) HandleSpikeEvent(processor.SpikeEvent) error { return nil }
func (g *Gate) StartRecording(string) error                 { return nil }
func (g *Gate) StopRecording() error                        { return nil }
