// SPDX-License-Identifier: MIT
/*
Package processor defines the contract between the acquisition host and a
user-supplied processor.

Lifecycle, as driven by the host:
  - A new instance is built by a Factory whenever the channel count or
    sample rate changes. The previous instance is discarded.
  - Process is called once per enabled stream for every data block.
  - StartAcquisition/StopAcquisition bracket a run of Process calls.
  - StartRecording/StopRecording bracket a persistence session inside an
    acquisition run.
  - TTL and spike events are delivered between Process calls.

The host serializes every call on an instance. Implementations only need
their own locking for state they share with other goroutines.
*/
package processor

import (
	"errors"
	"fmt"
)

// ErrInvalidSettings is returned by a Factory given a non-positive channel
// count or sample rate.
var ErrInvalidSettings = errors.New("invalid processor settings")

// Processor is the set of entry points the host invokes.
type Processor interface {
	// Process handles one block of a single stream. Changes made to
	// buf.Data are copied back into the host's buffer and are visible to
	// downstream stages. It must not retain buf after returning, and must
	// return within the real-time budget of one block.
	Process(buf *Buffer) error

	StartAcquisition() error
	StopAcquisition() error

	// HandleTTLEvent is called for every digital line transition.
	HandleTTLEvent(ev TTLEvent) error

	// HandleSpikeEvent is called for every detected spike.
	HandleSpikeEvent(ev SpikeEvent) error

	// StartRecording receives the session directory, which stays valid
	// until the matching StopRecording.
	StartRecording(recordingDir string) error
	StopRecording() error
}

// Factory builds a Processor for the given channel count and sample rate.
type Factory func(numChannels int, sampleRate float64) (Processor, error)

// Buffer is one channel-major block of samples owned by the host.
type Buffer struct {
	StreamID    uint16
	SampleRate  float64
	FirstSample int64       // Sample number of Data[c][0].
	Data        [][]float32 // Data[channel][sample].
}

// NumChannels returns the number of channel rows in the buffer.
func (b *Buffer) NumChannels() int {
	return len(b.Data)
}

// NumSamples returns the number of samples per channel.
func (b *Buffer) NumSamples() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// TTLEvent describes a single digital line transition.
type TTLEvent struct {
	State        bool
	SampleNumber int64
	Channel      int   // Event channel index within the stream.
	Line         uint8 // Digital line on that channel.
	StreamID     uint16
}

// SpikeEvent describes a single detected spike.
type SpikeEvent struct {
	SampleNumber int64
	Electrode    int
	SortedID     uint16 // Zero when unsorted.
	StreamID     uint16
}

// ValidateSettings checks the Factory preconditions.
func ValidateSettings(numChannels int, sampleRate float64) error {
	if numChannels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidSettings, numChannels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidSettings, sampleRate)
	}
	return nil
}
