// SPDX-License-Identifier: MIT
package processor

// Template is the starting point for a new processor. Every method is a
// no-op; copy it and fill in the bodies.
type Template struct {
	numChannels int
	sampleRate  float64
}

var _ Processor = (*Template)(nil)

// NewTemplate is called whenever the host settings change.
func NewTemplate(numChannels int, sampleRate float64) (Processor, error) {
	if err := ValidateSettings(numChannels, sampleRate); err != nil {
		return nil, err
	}
	return &Template{numChannels: numChannels, sampleRate: sampleRate}, nil
}

// Process each data buffer.
func (t *Template) Process(buf *Buffer) error {
	return nil
}

// StartAcquisition is called at the start of acquisition.
func (t *Template) StartAcquisition() error {
	return nil
}

// StopAcquisition is called when acquisition is stopped.
func (t *Template) StopAcquisition() error {
	return nil
}

// HandleTTLEvent responds to TTL events.
func (t *Template) HandleTTLEvent(ev TTLEvent) error {
	return nil
}

// HandleSpikeEvent responds to spike events.
func (t *Template) HandleSpikeEvent(ev SpikeEvent) error {
	return nil
}

// StartRecording is called when recording starts.
func (t *Template) StartRecording(recordingDir string) error {
	return nil
}

// StopRecording is called when recording stops.
func (t *Template) StopRecording() error {
	return nil
}
