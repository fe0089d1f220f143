// SPDX-License-Identifier: MIT
/*
Package host drives a processor.Processor on behalf of an acquisition source.

A Node owns at most one processor instance, rebuilt whenever the stream
settings or the selected processor change. Every call into the instance is
serialized by the node's mutex.

Failure handling:
  - An error or panic from any processor method is logged and puts the node
    into the not-ready state. A not-ready node passes blocks through
    untouched and drops events.
  - Reload or SetProcessor rebuilds the instance and clears the state.
  - An instance that received StartAcquisition or StartRecording always
    receives the matching stop call, even after it failed.
  - Host lifecycle state (acquiring, recording) never depends on the
    processor succeeding.
*/
package host

import (
	"fmt"
	"os"
	"sync"

	applog "ephys/internal/log"
	"ephys/internal/processor"
)

// SessionIndex records recording sessions. It is optional.
type SessionIndex interface {
	Begin(dir, processorName string) (id string, err error)
	End(id string, buffers uint64) error
}

// Option configures a Node.
type Option func(*Node)

// WithSessionIndex records every recording session in idx.
func WithSessionIndex(idx SessionIndex) Option {
	return func(n *Node) { n.sessions = idx }
}

// streamSlot holds the per-stream layout and the reusable buffer handed
// to the processor.
type streamSlot struct {
	stream  Stream
	offset  int         // First global channel of the stream.
	backing [][]float32 // Reused sample storage, one row per channel.
	rows    [][]float32 // Row headers passed as Buffer.Data.
	buf     processor.Buffer
}

type Node struct {
	registry *processor.Registry
	sessions SessionIndex

	mu sync.Mutex

	// Processor selection and instance.
	name    string
	factory processor.Factory
	proc    processor.Processor
	ready   bool
	epoch   uint64

	// Lifecycle calls delivered to the current instance.
	procAcquiring bool
	procRecording bool

	// Stream settings.
	slots       []streamSlot
	numChannels int
	sampleRate  float64

	// Lifecycle state.
	acquiring    bool
	recording    bool
	recordingDir string
	sessionID    string

	stats Stats
}

// NewNode returns a node that resolves processor names through reg.
func NewNode(reg *processor.Registry, opts ...Option) *Node {
	n := &Node{registry: reg}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetProcessor selects the processor registered under name and builds an
// instance if settings have been applied. During acquisition the previous
// instance is stopped and the new one started, so each instance sees
// paired lifecycle calls.
func (n *Node) SetProcessor(name string) error {
	factory, err := n.registry.Lookup(name)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	applog.Infof("Host: selecting processor %q", name)
	n.name = name
	n.factory = factory
	return n.rebuildLocked()
}

// Reload rebuilds the current processor instance and clears any error state.
func (n *Node) Reload() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.factory == nil {
		return ErrNoProcessor
	}
	applog.Infof("Host: reloading processor %q", n.name)
	return n.rebuildLocked()
}

// UpdateSettings applies a new stream layout and rebuilds the processor
// with the total channel count and the first stream's sample rate.
func (n *Node) UpdateSettings(streams []Stream) error {
	if len(streams) == 0 {
		return fmt.Errorf("%w: no streams", processor.ErrInvalidSettings)
	}

	slots := make([]streamSlot, len(streams))
	offset := 0
	for i, s := range streams {
		if s.Channels <= 0 {
			return fmt.Errorf("%w: stream %d has %d channels", processor.ErrInvalidSettings, s.ID, s.Channels)
		}
		slots[i] = streamSlot{
			stream:  s,
			offset:  offset,
			backing: make([][]float32, s.Channels),
			rows:    make([][]float32, s.Channels),
			buf:     processor.Buffer{StreamID: s.ID, SampleRate: s.SampleRate},
		}
		offset += s.Channels
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.acquiring {
		return ErrAcquisitionActive
	}

	n.slots = slots
	n.numChannels = offset
	n.sampleRate = streams[0].SampleRate
	applog.Infof("Host: settings updated (%d streams, %d channels, %.1f Hz)", len(slots), n.numChannels, n.sampleRate)

	if n.factory == nil {
		return nil
	}
	return n.rebuildLocked()
}

// Streams returns the current stream layout.
func (n *Node) Streams() []Stream {
	n.mu.Lock()
	defer n.mu.Unlock()

	streams := make([]Stream, len(n.slots))
	for i, s := range n.slots {
		streams[i] = s.stream
	}
	return streams
}

// rebuildLocked replaces the processor instance. A missing layout leaves
// the node without an instance until UpdateSettings is called.
func (n *Node) rebuildLocked() error {
	n.closeLifecycleLocked()
	n.proc = nil
	n.ready = false
	n.procAcquiring = false
	n.procRecording = false

	if n.factory == nil {
		return ErrNoProcessor
	}
	if n.numChannels == 0 {
		return nil
	}
	if err := processor.ValidateSettings(n.numChannels, n.sampleRate); err != nil {
		return err
	}

	p, err := n.construct()
	if err != nil {
		n.failLocked("construct", err)
		return fmt.Errorf("failed to construct processor %q: %w", n.name, err)
	}

	n.proc = p
	n.ready = true
	n.epoch++
	applog.Infof("Host: processor %q ready (epoch %d, %d channels, %.1f Hz)", n.name, n.epoch, n.numChannels, n.sampleRate)

	if n.acquiring {
		n.startAcquisitionLocked()
		if n.recording {
			n.startRecordingLocked(n.recordingDir)
		}
	}
	return nil
}

func (n *Node) construct() (p processor.Processor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	p, err = n.factory(n.numChannels, n.sampleRate)
	if err == nil && p == nil {
		err = fmt.Errorf("factory returned nil processor")
	}
	return p, err
}

// closeLifecycleLocked sends the outstanding stop calls to the current
// instance before it is discarded.
func (n *Node) closeLifecycleLocked() {
	n.stopProcRecordingLocked()
	n.stopProcAcquisitionLocked()
}

func (n *Node) startAcquisitionLocked() {
	if !n.ready || n.proc == nil {
		return
	}
	n.procAcquiring = true
	n.callLocked("start_acquisition", func(p processor.Processor) error { return p.StartAcquisition() })
}

func (n *Node) startRecordingLocked(dir string) {
	if !n.ready || n.proc == nil {
		return
	}
	n.procRecording = true
	n.callLocked("start_recording", func(p processor.Processor) error { return p.StartRecording(dir) })
}

// stopProcRecordingLocked delivers StopRecording to an instance that was
// started, whether or not it is still ready.
func (n *Node) stopProcRecordingLocked() {
	if !n.procRecording || n.proc == nil {
		return
	}
	n.procRecording = false
	n.callLocked("stop_recording", func(p processor.Processor) error { return p.StopRecording() })
}

func (n *Node) stopProcAcquisitionLocked() {
	if !n.procAcquiring || n.proc == nil {
		return
	}
	n.procAcquiring = false
	n.callLocked("stop_acquisition", func(p processor.Processor) error { return p.StopAcquisition() })
}

// invokeLocked calls fn on the current instance when the node is ready.
// Errors and panics disable the node. It reports whether fn succeeded.
func (n *Node) invokeLocked(op string, fn func(processor.Processor) error) bool {
	if !n.ready || n.proc == nil {
		return false
	}
	return n.callLocked(op, fn)
}

// callLocked calls fn on the current instance regardless of readiness.
func (n *Node) callLocked(op string, fn func(processor.Processor) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.failLocked(op, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	if err := fn(n.proc); err != nil {
		n.failLocked(op, err)
		return false
	}
	return true
}

func (n *Node) failLocked(op string, err error) {
	n.ready = false
	n.stats.Errors++
	n.stats.LastError = fmt.Sprintf("%s: %v", op, err)
	applog.Errorf("Host: processor %q failed in %s: %v (disabled until reload)", n.name, op, err)
}

// Process hands every enabled stream in b to the processor and copies the
// result back into b. Blocks pass through unchanged when the node is not
// ready.
func (n *Node) Process(b *Block) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.numChannels == 0 {
		return ErrNoSettings
	}
	if len(b.Data) != n.numChannels {
		return fmt.Errorf("%w: got %d channels, want %d", ErrBlockShape, len(b.Data), n.numChannels)
	}
	for i := range n.slots {
		s := &n.slots[i]
		ns := b.SampleCounts[s.stream.ID]
		for c := 0; c < s.stream.Channels; c++ {
			if ns > len(b.Data[s.offset+c]) {
				return fmt.Errorf("%w: stream %d reports %d samples, channel %d holds %d",
					ErrBlockShape, s.stream.ID, ns, c, len(b.Data[s.offset+c]))
			}
		}
	}

	n.stats.Blocks++

	for i := range n.slots {
		s := &n.slots[i]
		ns := b.SampleCounts[s.stream.ID]
		if !s.stream.Enabled || ns <= 0 {
			continue
		}
		n.stats.Samples += uint64(ns)
		if !n.ready {
			continue
		}

		for c := range s.backing {
			if cap(s.backing[c]) < ns {
				s.backing[c] = make([]float32, ns)
			}
			s.rows[c] = s.backing[c][:ns]
			copy(s.rows[c], b.Data[s.offset+c][:ns])
		}
		s.buf.Data = s.rows
		s.buf.FirstSample = b.FirstSample[s.stream.ID]

		buf := &s.buf
		if !n.invokeLocked("process", func(p processor.Processor) error { return p.Process(buf) }) {
			continue
		}

		for c := 0; c < s.stream.Channels && c < len(buf.Data); c++ {
			copy(b.Data[s.offset+c][:ns], buf.Data[c])
		}
	}
	return nil
}

// HandleTTLEvent forwards a TTL event to the processor.
func (n *Node) HandleTTLEvent(ev processor.TTLEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stats.TTLEvents++
	n.invokeLocked("handle_ttl_event", func(p processor.Processor) error { return p.HandleTTLEvent(ev) })
}

// HandleSpikeEvent forwards a spike event to the processor.
func (n *Node) HandleSpikeEvent(ev processor.SpikeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stats.SpikeEvents++
	n.invokeLocked("handle_spike_event", func(p processor.Processor) error { return p.HandleSpikeEvent(ev) })
}

// StartAcquisition opens an acquisition run.
func (n *Node) StartAcquisition() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.acquiring {
		return ErrAlreadyAcquiring
	}
	if n.numChannels == 0 {
		return ErrNoSettings
	}

	n.acquiring = true
	applog.Infof("Host: acquisition started")
	n.startAcquisitionLocked()
	return nil
}

// StopAcquisition closes the acquisition run, stopping any active
// recording first. Stopping an idle node is a no-op.
func (n *Node) StopAcquisition() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.acquiring {
		return nil
	}

	var err error
	if n.recording {
		err = n.stopRecordingLocked()
	}
	n.stopProcAcquisitionLocked()
	n.acquiring = false
	applog.Infof("Host: acquisition stopped")
	return err
}

// StartRecording opens a recording session in dir, creating it if needed.
// Recording requires an active acquisition run.
func (n *Node) StartRecording(dir string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.acquiring {
		return ErrNotAcquiring
	}
	if n.recording {
		return ErrAlreadyRecording
	}
	if err := prepareRecordingDir(dir); err != nil {
		return err
	}

	if n.sessions != nil {
		id, err := n.sessions.Begin(dir, n.name)
		if err != nil {
			return fmt.Errorf("failed to open session: %w", err)
		}
		n.sessionID = id
	}

	n.recording = true
	n.recordingDir = dir
	n.stats.recordingStart = n.stats.Blocks
	applog.Infof("Host: recording started in %s", dir)
	n.startRecordingLocked(dir)
	return nil
}

// StopRecording closes the recording session. Stopping when not recording
// is a no-op.
func (n *Node) StopRecording() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.recording {
		return nil
	}
	return n.stopRecordingLocked()
}

func (n *Node) stopRecordingLocked() error {
	n.stopProcRecordingLocked()

	var err error
	if n.sessions != nil && n.sessionID != "" {
		if endErr := n.sessions.End(n.sessionID, n.stats.Blocks-n.stats.recordingStart); endErr != nil {
			err = fmt.Errorf("failed to close session: %w", endErr)
		}
	}

	applog.Infof("Host: recording stopped (%s)", n.recordingDir)
	n.recording = false
	n.recordingDir = ""
	n.sessionID = ""
	return err
}

// Close stops acquisition and releases the processor instance.
func (n *Node) Close() error {
	err := n.StopAcquisition()

	n.mu.Lock()
	n.proc = nil
	n.ready = false
	n.mu.Unlock()
	return err
}

// prepareRecordingDir creates dir and checks that files can be written to it.
func prepareRecordingDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: empty path", ErrRecordingDir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordingDir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordingDir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
