// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport records every message sent to it instead of publishing.
// It satisfies the transport.Transport interface.
type MockTransport struct {
	mu       sync.Mutex
	messages []any
	LastData []float64
	closed   bool
}

type magnitudeCarrier interface {
	MagnitudeValues() []float64
}

// Send stores the message. Magnitude spectra are copied into LastData.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, data)
	if mc, ok := data.(magnitudeCarrier); ok {
		vals := mc.MagnitudeValues()
		m.LastData = make([]float64, len(vals))
		copy(m.LastData, vals)
	}
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.messages...)
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SineWave returns size samples of a sine at frequency Hz.
func SineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// ComplexWave returns a theta rhythm (6Hz) with a nested gamma (40Hz)
// component and a small 300Hz spiking band, scaled to amplitude.
func ComplexWave(size int, sampleRate, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*6*tm)*0.5 +
			math.Sin(2*math.Pi*40*tm)*0.3 +
			math.Sin(2*math.Pi*300*tm)*0.2
		buffer[i] = float32(signal * amplitude)
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
