// SPDX-License-Identifier: MIT
package burst

import (
	"math"

	applog "ephys/internal/log"
	"ephys/internal/processor"
	"ephys/internal/transport"
)

// Name is the registry name of the processor.
const Name = "burst"

// Defaults used when Options fields are zero.
const (
	DefaultThreshold = 50.0 // µV RMS
	DefaultRatio     = 2.0
)

// Event is published for every detected burst onset.
type Event struct {
	Type         string  `json:"type"`
	StreamID     uint16  `json:"stream_id"`
	Channel      int     `json:"channel"`
	SampleNumber int64   `json:"sample_number"`
	RMS          float64 `json:"rms"`
}

// Options configure a Detector.
type Options struct {
	Threshold float64 // Minimum buffer RMS for an onset.
	Ratio     float64 // Minimum RMS increase over the previous buffer.
	Cooldown  float64 // Seconds after an onset during which no new onset fires.
	Transport transport.Transport
}

// Detector flags buffers whose RMS energy rises above a threshold by at
// least a ratio over the previous buffer, independently per channel.
type Detector struct {
	threshold  float64
	ratio      float64
	cooldown   int64 // samples
	transport  transport.Transport
	acquiring  bool
	lastEnergy map[key]float64
	lastOnset  map[key]int64
	onsets     uint64
}

type key struct {
	stream  uint16
	channel int
}

var _ processor.Processor = (*Detector)(nil)

// NewFactory returns a processor.Factory building detectors. opts is called
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

// New creates a detector.
func New(numChannels int, sampleRate float64, opts Options) (*Detector, error) {
	if err := processor.ValidateSettings(numChannels, sampleRate); err != nil {
		return nil, err
	}
	d := &Detector{
		threshold:  opts.Threshold,
		ratio:      opts.Ratio,
		cooldown:   int64(opts.Cooldown * sampleRate),
		transport:  opts.Transport,
		lastEnergy: make(map[key]float64),
		lastOnset:  make(map[key]int64),
	}
	if d.threshold <= 0 {
		d.threshold = DefaultThreshold
	}
	if d.ratio <= 0 {
		d.ratio = DefaultRatio
	}
	if d.transport == nil {
		d.transport = transport.NewLoggingTransport()
	}
	applog.Infof("Burst: initializing (threshold: %.2f, ratio: %.2f, cooldown: %d samples)", d.threshold, d.ratio, d.cooldown)
	return d, nil
}

// Onsets returns the number of bursts detected.
func (d *Detector) Onsets() uint64 { return d.onsets }

// Process checks every channel of the buffer for an onset.
func (d *Detector) Process(buf *processor.Buffer) error {
	if !d.acquiring {
		return nil
	}
	for c, row := range buf.Data {
		k := key{buf.StreamID, c}
		energy := rms(row)
		last := d.lastEnergy[k]
		d.lastEnergy[k] = energy

		if energy <= d.threshold || (last != 0 && energy/last <= d.ratio) {
			continue
		}
		if prev, ok := d.lastOnset[k]; ok && buf.FirstSample-prev < d.cooldown {
			continue
		}
		d.lastOnset[k] = buf.FirstSample
		d.onsets++

		ev := &Event{Type: "burst", StreamID: buf.StreamID, Channel: c, SampleNumber: buf.FirstSample, RMS: energy}
		if err := d.transport.Send(ev); err != nil {
			applog.Warnf("Burst: failed to send event: %v", err)
		}
	}
	return nil
}

// rms returns the root mean square of the samples.
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// StartAcquisition clears the per-channel history.
func (d *Detector) StartAcquisition() error {
	clear(d.lastEnergy)
	clear(d.lastOnset)
	d.acquiring = true
	return nil
}

func (d *Detector) StopAcquisition() error {
	d.acquiring = false
	return nil
}

func (d *Detector) HandleTTLEvent(processor.TTLEvent) error     { return nil }
func (d *Detector) HandleSpikeEvent(processor.SpikeEvent) error { return nil }
func (d *Detector) StartRecording(string) error                 { return nil }
func (d *Detector) StopRecording() error                        { return nil }
