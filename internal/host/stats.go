// SPDX-License-Identifier: MIT
package host

// Stats is a point-in-time view of a Node.
type Stats struct {
	Processor    string
	Ready        bool
	Epoch        uint64 // Incremented on every successful instance build.
	Channels     int
	SampleRate   float64
	Acquiring    bool
	Recording    bool
	RecordingDir string

	Blocks      uint64
	Samples     uint64
	TTLEvents   uint64
	SpikeEvents uint64
	Errors      uint64
	LastError   string

	recordingStart uint64
}

// Stats returns a snapshot of the node state and counters.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := n.stats
	s.Processor = n.name
	s.Ready = n.ready
	s.Epoch = n.epoch
	s.Channels = n.numChannels
	s.SampleRate = n.sampleRate
	s.Acquiring = n.acquiring
	s.Recording = n.recording
	s.RecordingDir = n.recordingDir
	return s
}
