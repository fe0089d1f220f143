// SPDX-License-Identifier: MIT
package wavrecorder

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "ephys/internal/log"
	"ephys/internal/processor"
)

const (
	// Name is the registry name of the processor.
	Name = "wavrecorder"

	// DefaultBitVolts is the microvolt value of one least significant bit.
	DefaultBitVolts = 0.195

	bitDepth      = 32
	pcmFormat     = 1
	eventsFile    = "events.csv"
	continuousFmt = "continuous_%d.wav"
)

var eventsHeader = []string{"type", "stream_id", "sample_number", "channel", "line", "state", "electrode", "sorted_id"}

// Recorder writes every stream to a 32-bit PCM WAV file and all events to
// a CSV file while recording is active.
type Recorder struct {
	bitVolts   float64
	sampleRate float64

	recording bool
	dir       string
	streams   map[uint16]*streamWriter
	events    *os.File
	eventsCSV *csv.Writer
}

type streamWriter struct {
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
}

var _ processor.Processor = (*Recorder)(nil)

// Options configure a Recorder.
type Options struct {
	BitVolts float64
}

// NewFactory returns a processor.Factory building recorders. opts is called
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

// New creates an idle recorder.
func New(numChannels int, sampleRate float64, opts Options) (*Recorder, error) {
	if err := processor.ValidateSettings(numChannels, sampleRate); err != nil {
		return nil, err
	}
	bv := opts.BitVolts
	if bv <= 0 {
		bv = DefaultBitVolts
	}
	return &Recorder{bitVolts: bv, sampleRate: sampleRate}, nil
}

// Recording reports whether files are open.
func (r *Recorder) Recording() bool { return r.recording }

// Dir returns the current recording directory.
func (r *Recorder) Dir() string { return r.dir }

// Process appends the buffer to its stream file. The first buffer of a
// stream opens the file with that stream's channel count.
func (r *Recorder) Process(buf *processor.Buffer) error {
	if !r.recording || buf.NumSamples() == 0 {
		return nil
	}

	sw, ok := r.streams[buf.StreamID]
	if !ok {
		var err error
		if sw, err = r.openStream(buf); err != nil {
			return err
		}
		r.streams[buf.StreamID] = sw
	}

	channels := buf.NumChannels()
	if sw.buf.Format.NumChannels != channels {
		return fmt.Errorf("wavrecorder: stream %d changed from %d to %d channels",
			buf.StreamID, sw.buf.Format.NumChannels, channels)
	}

	frames := buf.NumSamples()
	need := frames * channels
	if cap(sw.buf.Data) < need {
		sw.buf.Data = make([]int, need)
	}
	sw.buf.Data = sw.buf.Data[:need]

	for c, row := range buf.Data {
		for i, s := range row {
			sw.buf.Data[i*channels+c] = r.quantize(s)
		}
	}

	return sw.encoder.Write(sw.buf)
}

// quantize converts microvolts to counts. NaN maps to zero.
func (r *Recorder) quantize(s float32) int {
	v := math.Round(float64(s) / r.bitVolts)
	if math.IsNaN(v) {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int(v)
}

func (r *Recorder) openStream(buf *processor.Buffer) (*streamWriter, error) {
	rate := buf.SampleRate
	if rate <= 0 {
		rate = r.sampleRate
	}
	path := filepath.Join(r.dir, fmt.Sprintf(continuousFmt, buf.StreamID))
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	channels := buf.NumChannels()
	applog.Infof("Recorder: writing stream %d (%d channels @ %gHz) to %s", buf.StreamID, channels, rate, path)

	return &streamWriter{
		file:    file,
		encoder: wav.NewEncoder(file, int(rate), bitDepth, channels, pcmFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: int(rate)},
			Data:           make([]int, buf.NumSamples()*channels),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

func (r *Recorder) StartAcquisition() error { return nil }
func (r *Recorder) StopAcquisition() error  { return nil }

// HandleTTLEvent appends a ttl row while recording.
func (r *Recorder) HandleTTLEvent(ev processor.TTLEvent) error {
	if !r.recording {
		return nil
	}
	return r.writeEvent([]string{
		"ttl",
		strconv.Itoa(int(ev.StreamID)),
		strconv.FormatInt(ev.SampleNumber, 10),
		strconv.Itoa(ev.Channel),
		strconv.Itoa(int(ev.Line)),
		strconv.FormatBool(ev.State),
		"", "",
	})
}

// HandleSpikeEvent appends a spike row while recording.
func (r *Recorder) HandleSpikeEvent(ev processor.SpikeEvent) error {
	if !r.recording {
		return nil
	}
	return r.writeEvent([]string{
		"spike",
		strconv.Itoa(int(ev.StreamID)),
		strconv.FormatInt(ev.SampleNumber, 10),
		"", "", "",
		strconv.Itoa(ev.Electrode),
		strconv.Itoa(int(ev.SortedID)),
	})
}

func (r *Recorder) writeEvent(row []string) error {
	if err := r.eventsCSV.Write(row); err != nil {
		return err
	}
	r.eventsCSV.Flush()
	return r.eventsCSV.Error()
}

// StartRecording creates the events file in dir. Stream files are created
// as their first buffer arrives.
func (r *Recorder) StartRecording(dir string) error {
	if r.recording {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filepath.Join(dir, eventsFile))
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if err := w.Write(eventsHeader); err != nil {
		file.Close()
		return err
	}
	w.Flush()

	r.dir = dir
	r.events = file
	r.eventsCSV = w
	r.streams = make(map[uint16]*streamWriter)
	r.recording = true
	applog.Infof("Recorder: recording to %s", dir)
	return nil
}

// StopRecording finalizes every WAV header and closes all files. It is a
// no-op when not recording.
func (r *Recorder) StopRecording() error {
	if !r.recording {
		return nil
	}
	r.recording = false

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for id, sw := range r.streams {
		keep(sw.encoder.Close())
		keep(sw.file.Close())
		delete(r.streams, id)
	}

	r.eventsCSV.Flush()
	keep(r.eventsCSV.Error())
	keep(r.events.Close())
	r.events = nil
	r.eventsCSV = nil

	applog.Infof("Recorder: closed %s", r.dir)
	return firstErr
}
