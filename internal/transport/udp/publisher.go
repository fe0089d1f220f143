// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	applog "ephys/internal/log"
	"ephys/internal/transport"
)

// Publisher is a transport that keeps the most recent magnitude spectrum
// it was sent and transmits it over UDP at a fixed interval. Messages that
// carry no spectrum are ignored.
type Publisher struct {
	sender   *Sender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   []float64
	fresh    bool

	sequenceNum  uint32
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
	now          func() time.Time
}

// NewPublisher creates a publisher on top of sender. An interval <= 0
// defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: invalid interval provided, defaulting to %s", interval)
	}

	return &Publisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
		now:          time.Now,
	}, nil
}

// Send stores the spectrum carried by data for the next tick.
func (p *Publisher) Send(data any) error {
	carrier, ok := data.(transport.MagnitudeCarrier)
	if !ok {
		return nil
	}
	mags := carrier.MagnitudeValues()

	p.latestMu.Lock()
	if cap(p.latest) < len(mags) {
		p.latest = make([]float64, len(mags))
	}
	p.latest = p.latest[:len(mags)]
	copy(p.latest, mags)
	p.fresh = true
	p.latestMu.Unlock()
	return nil
}

// Start begins the periodic publishing process. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: started (interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// Calling Stop on a stopped publisher is a no-op.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: stopped")
	return nil
}

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Magnitude   |       Magnitudes        |
|      (uint32)     |   (int64, unix ns)    |     Count     |      (N * float32)      |
|                   |                       |    (uint16)   |                         |
+-------------------+-----------------------+---------------+-------------------------+
*/

// publish sends the latest spectrum if one arrived since the last tick.
func (p *Publisher) publish() {
	packet, ok := p.buildPacket()
	if !ok {
		return
	}
	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

// buildPacket packs the latest spectrum. It returns false when nothing new
// is available.
func (p *Publisher) buildPacket() ([]byte, bool) {
	p.latestMu.Lock()
	if !p.fresh {
		p.latestMu.Unlock()
		return nil, false
	}
	n := len(p.latest)
	if n > math.MaxUint16 {
		n = math.MaxUint16
	}
	if cap(p.f32Buffer) < n {
		p.f32Buffer = make([]float32, n)
	}
	p.f32Buffer = p.f32Buffer[:n]
	for i := range p.f32Buffer {
		p.f32Buffer[i] = float32(p.latest[i])
	}
	p.fresh = false
	p.latestMu.Unlock()

	p.sequenceNum++
	p.packetBuffer.Reset()

	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	_ = binary.Write(p.packetBuffer, binary.BigEndian, p.now().UnixNano())
	_ = binary.Write(p.packetBuffer, binary.BigEndian, uint16(n))
	_ = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)

	return p.packetBuffer.Bytes(), true
}

// Close stops the publisher and closes the sender.
func (p *Publisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

var _ transport.Transport = (*Publisher)(nil)
