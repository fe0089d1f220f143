// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 30000
	testFrequency  = 250.0
)

var testMagnitudes []float64

type fakeSpectrum []float64

func (f fakeSpectrum) MagnitudeValues() []float64 { return f }

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)

	// Creates a "hill" with peak at position testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}

	os.Exit(m.Run())
}

func TestMockTransport(t *testing.T) {
	tests := []struct {
		name      string
		inputData fakeSpectrum
	}{
		{"Empty Data", fakeSpectrum{}},
		{"Single Value", fakeSpectrum{0.5}},
		{"Multiple Values", fakeSpectrum{0.1, 0.2, 0.3, 0.4, 0.5}},
		{"Large Dataset", make(fakeSpectrum, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := &MockTransport{}

			if err := mt.Send(tt.inputData); err != nil {
				t.Errorf("MockTransport.Send() error = %v", err)
			}

			if len(mt.LastData) != len(tt.inputData) {
				t.Errorf("MockTransport.Send() stored length = %d, want %d",
					len(mt.LastData), len(tt.inputData))
			}

			if len(tt.inputData) > 0 {
				originalValue := tt.inputData[0]
				tt.inputData[0] = 999.999 // Modify original.

				if mt.LastData[0] == 999.999 {
					t.Errorf("MockTransport.Send() stored reference instead of copy")
				}

				tt.inputData[0] = originalValue
			}
		})
	}
}

func TestMockTransportMessages(t *testing.T) {
	mt := &MockTransport{}
	_ = mt.Send("status")
	_ = mt.Send(42)

	msgs := mt.Messages()
	if len(msgs) != 2 || msgs[0] != "status" || msgs[1] != 42 {
		t.Errorf("Messages() = %v, want [status 42]", msgs)
	}
	if mt.LastData != nil {
		t.Errorf("non-spectrum messages must not set LastData")
	}

	if mt.Closed() {
		t.Error("Closed() true before Close")
	}
	_ = mt.Close()
	if !mt.Closed() {
		t.Error("Closed() false after Close")
	}
}

func TestComplexWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
	}{
		{"Standard", 1024, 30000},
		{"Small", 16, 1000},
		{"Large", 8192, 40000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComplexWave(tt.size, tt.sampleRate, 100)

			if len(result) != tt.size {
				t.Errorf("ComplexWave() buffer size = %d, want %d", len(result), tt.size)
			}

			hasNonZero := false
			for _, v := range result {
				if v != 0 {
					hasNonZero = true
				}
				if math.Abs(float64(v)) > 100 {
					t.Fatalf("ComplexWave() sample %g exceeds amplitude", v)
				}
			}

			if !hasNonZero {
				t.Errorf("ComplexWave() produced all zeros")
			}
		})
	}
}

func TestSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"Standard", testSize, testSampleRate, testFrequency},
		{"Low Frequency", 4096, 1000, 8},
		{"High Frequency", 2048, 30000, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SineWave(tt.size, tt.sampleRate, tt.frequency, 1.0)

			if len(result) != tt.size {
				t.Errorf("SineWave() buffer size = %d, want %d", len(result), tt.size)
			}

			samplesPerCycle := tt.sampleRate / tt.frequency

			if samplesPerCycle > 2 && float64(tt.size) > samplesPerCycle {
				crossCount := 0
				for i := 1; i < tt.size; i++ {
					if (result[i-1] < 0 && result[i] >= 0) ||
						(result[i-1] >= 0 && result[i] < 0) {
						crossCount++
					}
				}

				// Two crossings per cycle, 20% margin for phase alignment.
				expectedCrossings := float64(tt.size) / (samplesPerCycle / 2)
				tolerance := 0.2 * expectedCrossings

				if math.Abs(float64(crossCount)-expectedCrossings) > tolerance {
					t.Errorf("SineWave() zero crossings = %d, expected approximately %.1f±%.1f",
						crossCount, expectedCrossings, tolerance)
				}
			}
		})
	}
}

func TestSineWaveAmplitude(t *testing.T) {
	result := SineWave(1000, 1000, 10, 50)
	peak := 0.0
	for _, v := range result {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if math.Abs(peak-50) > 0.01 {
		t.Errorf("SineWave() peak = %g, want 50", peak)
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", testMagnitudes, 0, testSize / 3, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FindPeakBin(tt.mags, tt.start, tt.end); result != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", result, tt.expected)
			}
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(testMagnitudes, 0, len(testMagnitudes)-1)
	})

	if allocs > 0 {
		t.Errorf("FindPeakBin allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkSineWave(b *testing.B) {
	benchmarks := []struct {
		name string
		size int
	}{
		{"Small", 64},
		{"Standard", 1024},
		{"Large", 8192},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				SineWave(bm.size, testSampleRate, testFrequency, 1)
			}
		})
	}
}

func BenchmarkFindPeakBin(b *testing.B) {
	benchmarks := []struct {
		name string
		size int
	}{
		{"Small", 64},
		{"Standard", 1024},
		{"Large", 8192},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			mags := make([]float64, bm.size)
			peakPos := bm.size / 2
			for i := range mags {
				mags[i] = math.Exp(-0.01 * math.Pow(float64(i-peakPos), 2))
			}

			b.ReportAllocs()
			for b.Loop() {
				FindPeakBin(mags, 0, bm.size-1)
			}
		})
	}
}
