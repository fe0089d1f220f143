// SPDX-License-Identifier: MIT
package processor

import (
	"errors"
	"testing"
)

const (
	testChannels   = 8
	testSampleRate = 30000
	testSamples    = 1024
)

func newTestBuffer(channels, samples int) *Buffer {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, samples)
		for i := range data[c] {
			data[c][i] = float32(c*samples + i)
		}
	}
	return &Buffer{StreamID: 1, SampleRate: testSampleRate, Data: data}
}

func TestNewTemplate(t *testing.T) {
	p, err := NewTemplate(testChannels, testSampleRate)
	if err != nil {
		t.Fatalf("NewTemplate(%d, %d) error: %v", testChannels, testSampleRate, err)
	}
	if p == nil {
		t.Fatal("expected processor, got nil")
	}
}

func TestNewTemplateInvalidSettings(t *testing.T) {
	tests := []struct {
		desc       string
		channels   int
		sampleRate float64
	}{
		{"Zero channels", 0, testSampleRate},
		{"Negative channels", -2, testSampleRate},
		{"Zero sample rate", testChannels, 0},
		{"Negative sample rate", testChannels, -1},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			p, err := NewTemplate(tt.channels, tt.sampleRate)
			if !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
			if p != nil {
				t.Errorf("expected nil processor, got %+v", p)
			}
		})
	}
}

func TestTemplateProcessKeepsShape(t *testing.T) {
	p, _ := NewTemplate(testChannels, testSampleRate)
	buf := newTestBuffer(testChannels, testSamples)

	if err := p.Process(buf); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if buf.NumChannels() != testChannels {
		t.Errorf("channels: got %d, want %d", buf.NumChannels(), testChannels)
	}
	if buf.NumSamples() != testSamples {
		t.Errorf("samples: got %d, want %d", buf.NumSamples(), testSamples)
	}
	if got := buf.Data[3][7]; got != float32(3*testSamples+7) {
		t.Errorf("sample changed: got %f", got)
	}
}

func TestTemplateLifecyclePairs(t *testing.T) {
	p, _ := NewTemplate(testChannels, testSampleRate)
	buf := newTestBuffer(testChannels, testSamples)

	steps := []struct {
		name string
		call func() error
	}{
		{"Process before acquisition", func() error { return p.Process(buf) }},
		{"StartAcquisition", p.StartAcquisition},
		{"Process", func() error { return p.Process(buf) }},
		{"StartRecording", func() error { return p.StartRecording(t.TempDir()) }},
		{"Process while recording", func() error { return p.Process(buf) }},
		{"StopRecording", p.StopRecording},
		{"StopAcquisition", p.StopAcquisition},
		{"StopAcquisition again", p.StopAcquisition},
		{"StopRecording without start", p.StopRecording},
	}

	for _, step := range steps {
		if err := step.call(); err != nil {
			t.Errorf("%s: unexpected error %v", step.name, err)
		}
	}
}

func TestTemplateEvents(t *testing.T) {
	p, _ := NewTemplate(testChannels, testSampleRate)

	ttl := TTLEvent{State: true, SampleNumber: 123456, Channel: 0, Line: 3, StreamID: 100}
	if err := p.HandleTTLEvent(ttl); err != nil {
		t.Errorf("HandleTTLEvent error: %v", err)
	}
	if err := p.HandleSpikeEvent(SpikeEvent{SampleNumber: 42, Electrode: 1}); err != nil {
		t.Errorf("HandleSpikeEvent error: %v", err)
	}
	if err := p.HandleSpikeEvent(SpikeEvent{}); err != nil {
		t.Errorf("HandleSpikeEvent zero value error: %v", err)
	}
}

func TestBufferEmpty(t *testing.T) {
	var buf Buffer
	if buf.NumChannels() != 0 || buf.NumSamples() != 0 {
		t.Errorf("empty buffer: got %dx%d", buf.NumChannels(), buf.NumSamples())
	}
}
