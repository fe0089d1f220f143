// SPDX-License-Identifier: MIT
package host

// Stream describes one continuous data stream feeding the node.
type Stream struct {
	ID         uint16
	Name       string
	SampleRate float64
	Channels   int
	Enabled    bool
}

// Block is one acquisition cycle across every stream. Channels of all
// streams are laid out back to back in Data, in stream order.
type Block struct {
	Data         [][]float32      // Data[globalChannel][sample]
	SampleCounts map[uint16]int   // Valid samples per stream.
	FirstSample  map[uint16]int64 // Sample number of the first valid sample per stream.
}

// NewBlock allocates a block sized for streams with frames samples per
// channel. Every stream starts with a full sample count.
func NewBlock(streams []Stream, frames int) *Block {
	total := 0
	for _, s := range streams {
		total += s.Channels
	}

	b := &Block{
		Data:         make([][]float32, total),
		SampleCounts: make(map[uint16]int, len(streams)),
		FirstSample:  make(map[uint16]int64, len(streams)),
	}
	for c := range b.Data {
		b.Data[c] = make([]float32, frames)
	}
	for _, s := range streams {
		b.SampleCounts[s.ID] = frames
	}
	return b
}

// Advance sets every stream's first sample number to start.
func (b *Block) Advance(start int64) {
	for id := range b.SampleCounts {
		b.FirstSample[id] = start
	}
}
