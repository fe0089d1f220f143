// SPDX-License-Identifier: MIT
/*
Package spectrum is a processor that computes the magnitude spectrum of one
channel per block and publishes it, together with LFP band energies, to a
transport. It never modifies the buffer.

Samples are accumulated until a full FFT frame is available, so blocks
shorter than the FFT size still produce a spectrum every few calls.
*/
package spectrum

import (
	"fmt"
	"math/cmplx"
	"sync"

	applog "ephys/internal/log"
	"ephys/internal/processor"
	"ephys/internal/transport"
	"ephys/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Name is the registry name of the processor.
const Name = "spectrum"

const maxFFTSize = 1 << 16

// Options configure the processor.
type Options struct {
	FFTSize   int        // Power of two; rounded up when not.
	Window    WindowFunc // Window applied before the FFT.
	Channel   int        // Channel index within each stream.
	Transport transport.Transport
}

// Frame is the message published for every computed spectrum.
type Frame struct {
	Type         string             `json:"type"`
	StreamID     uint16             `json:"stream_id"`
	SampleNumber int64              `json:"sample_number"`
	BinHz        float64            `json:"bin_hz"`
	Magnitudes   []float64          `json:"magnitudes"`
	Bands        map[string]float64 `json:"bands"`
}

// MagnitudeValues implements transport.MagnitudeCarrier.
func (f *Frame) MagnitudeValues() []float64 { return f.Magnitudes }

// Processor computes spectra of a single channel.
type Processor struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64
	channel    int
	transport  transport.Transport
	acquiring  bool
	stream     uint16 // Only the first stream seen is analysed.
	locked     bool

	window  []float64
	pending []float64 // Samples waiting for a full frame.
	input   []float64
	coeffs  []complex128

	mu        sync.RWMutex // Guards magnitude for readers outside the host.
	magnitude []float64
	frame     Frame // Header of the next published frame.
}

var _ processor.Processor = (*Processor)(nil)

// NewFactory returns a processor.Factory building spectrum processors.
// opts is called for every instance, so rebuilt instances see current
// options.
func NewFactory(opts func() (Options, error)) processor.Factory {
	return func(numChannels int, sampleRate float64) (processor.Processor, error) {
		o, err := opts()
		if err != nil {
			return nil, err
		}
		return New(numChannels, sampleRate, o)
	}
}

// New creates a spectrum processor.
func New(numChannels int, sampleRate float64, opts Options) (*Processor, error) {
	if err := processor.ValidateSettings(numChannels, sampleRate); err != nil {
		return nil, err
	}
	if opts.Channel < 0 || opts.Channel >= numChannels {
		return nil, fmt.Errorf("%w: spectrum channel %d out of range [0, %d)", processor.ErrInvalidSettings, opts.Channel, numChannels)
	}

	size := opts.FFTSize
	if size <= 1 {
		size = 1024
	}
	if !bitint.IsPowerOfTwo(size) || size > maxFFTSize {
		size = bitint.ClampPowerOfTwo(size, 2, maxFFTSize)
		applog.Warnf("Spectrum: FFT size %d is not a power of two up to %d, using %d", opts.FFTSize, maxFFTSize, size)
	}
	bins := size/2 + 1

	t := opts.Transport
	if t == nil {
		t = transport.NewLoggingTransport()
	}

	applog.Infof("Spectrum: initializing (size: %d, sample rate: %.1f Hz, channel: %d)", size, sampleRate, opts.Channel)

	p := &Processor{
		fft:        fourier.NewFFT(size),
		fftSize:    size,
		sampleRate: sampleRate,
		channel:    opts.Channel,
		transport:  t,
		window:     windowCoefficients(size, opts.Window),
		pending:    make([]float64, 0, size),
		input:      make([]float64, size),
		coeffs:     make([]complex128, bins),
		magnitude:  make([]float64, bins),
	}
	p.frame = Frame{Type: "spectrum", BinHz: p.BinHz()}
	return p, nil
}

// Process feeds the configured channel into the FFT and publishes one
// frame per full window.
func (p *Processor) Process(buf *processor.Buffer) error {
	if !p.locked {
		p.stream, p.locked = buf.StreamID, true
	}
	if buf.StreamID != p.stream || p.channel >= buf.NumChannels() {
		return nil
	}
	samples := buf.Data[p.channel]

	for i, s := range samples {
		p.pending = append(p.pending, float64(s))
		if len(p.pending) < p.fftSize {
			continue
		}
		p.compute()
		p.frame.StreamID = buf.StreamID
		p.frame.SampleNumber = buf.FirstSample + int64(i) + 1 - int64(p.fftSize)
		p.publish()
		p.pending = p.pending[:0]
	}
	return nil
}

func (p *Processor) compute() {
	for i, s := range p.pending {
		p.input[i] = s * p.window[i]
	}
	p.fft.Coefficients(p.coeffs, p.input)

	p.mu.Lock()
	for i, c := range p.coeffs {
		p.magnitude[i] = cmplx.Abs(c)
	}
	p.mu.Unlock()
}

func (p *Processor) publish() {
	if !p.acquiring {
		return
	}

	// Transports may hold the frame after Send returns, so each one gets
	// its own copy.
	frame := &Frame{
		Type:         p.frame.Type,
		StreamID:     p.frame.StreamID,
		SampleNumber: p.frame.SampleNumber,
		BinHz:        p.frame.BinHz,
		Magnitudes:   make([]float64, len(p.magnitude)),
		Bands:        make(map[string]float64, len(NeuralBands)),
	}
	p.mu.RLock()
	copy(frame.Magnitudes, p.magnitude)
	p.mu.RUnlock()
	bandEnergy(frame.Magnitudes, frame.BinHz, NeuralBands, frame.Bands)

	if err := p.transport.Send(frame); err != nil {
		applog.Warnf("Spectrum: error sending frame: %v", err)
	}
}

// StartAcquisition enables publishing.
func (p *Processor) StartAcquisition() error {
	p.acquiring = true
	p.pending = p.pending[:0]
	return nil
}

// StopAcquisition disables publishing and drops partial frames.
func (p *Processor) StopAcquisition() error {
	p.acquiring = false
	p.pending = p.pending[:0]
	return nil
}

func (p *Processor) HandleTTLEvent(processor.TTLEvent) error     { return nil }
func (p *Processor) HandleSpikeEvent(processor.SpikeEvent) error { return nil }
func (p *Processor) StartRecording(string) error                 { return nil }
func (p *Processor) StopRecording() error                        { return nil }

// MagnitudesInto copies the latest magnitudes into dst, which must hold
// FFTSize/2+1 values.
func (p *Processor) MagnitudesInto(dst []float64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(dst) != len(p.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(p.magnitude))
	}
	copy(dst, p.magnitude)
	return nil
}

// FrequencyForBin returns the center frequency (Hz) of a bin, or 0 when
// out of range.
func (p *Processor) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= len(p.magnitude) {
		return 0
	}
	return float64(bin) * p.BinHz()
}

// BinHz returns the frequency resolution.
func (p *Processor) BinHz() float64 {
	return p.sampleRate / float64(p.fftSize)
}

// FFTSize returns the number of FFT points.
func (p *Processor) FFTSize() int {
	return p.fftSize
}
