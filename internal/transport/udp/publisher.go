// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	applog "peakbeat/internal/log"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 16 * time.Millisecond

// HeightsSource provides the latest bar heights. analysis.Snapshot satisfies it.
type HeightsSource interface {
	Len() int
	LoadInto(dst []float64) (uint64, error)
}

// PacketSender transmits one packet.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically reads the bar heights, packs them and sends them
// over UDP. It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   PacketSender
	heights  HeightsSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	// Reused by every packet.
	heightBuf []float64
	packet    []byte
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)

// NewUDPPublisher creates a publisher sending heights through sender every
// interval.
func NewUDPPublisher(interval time.Duration, sender PacketSender, heights HeightsSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if heights == nil {
		return nil, errors.New("UDPPublisher: heights source cannot be nil")
	}
	if heights.Len() > 0xFFFF {
		return nil, fmt.Errorf("UDPPublisher: %d bars do not fit in a packet", heights.Len())
	}

	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bars: %d)", interval, heights.Len())

	return &UDPPublisher{
		sender:    sender,
		heights:   heights,
		interval:  interval,
		heightBuf: make([]float64, heights.Len()),
		packet:    make([]byte, 0, HeaderSize+4*heights.Len()),
	}, nil
}

// Start begins publishing. Calling Start while running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals keep the goroutine off p.ticker and p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine and waits for it to exit. Calling
// Stop when not running is a no-op.
func (p *UDPPublisher) Stop() error {
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
	applog.Debugf("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

// buildAndSendPacket runs on every tick.
func (p *UDPPublisher) buildAndSendPacket() {
	if _, err := p.heights.LoadInto(p.heightBuf); err != nil {
		applog.Errorf("UDPPublisher: Error getting heights: %v", err)
		return
	}

	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, time.Now().UnixNano(), p.heightBuf)

	if err := p.sender.Send(p.packet); err != nil {
		applog.Debugf("UDPPublisher: Packet %d not sent: %v", p.sequenceNum, err)
	}
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}
