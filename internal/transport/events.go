// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"peakbeat/internal/analysis"
	applog "peakbeat/internal/log"
)

// Message types.
const (
	TypePeak     = "peak"
	TypeFinished = "finished"
)

// PeakMessage is the wire form of an analysis.PeakEvent.
type PeakMessage struct {
	Type string  `json:"type"`
	Bar  int     `json:"bar"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Peak float64 `json:"peak"`
}

// FinishedMessage announces that the current source played to its end.
type FinishedMessage struct {
	Type string `json:"type"`
}

// NewPeakMessage converts a peak event.
func NewPeakMessage(e analysis.PeakEvent) PeakMessage {
	return PeakMessage{
		Type: TypePeak,
		Bar:  e.Bar,
		X:    e.Position.X,
		Y:    e.Position.Y,
		Peak: e.Peak,
	}
}

// PeakPublisher forwards mapper peaks and playback notifications to a
// Transport.
type PeakPublisher struct {
	transport Transport
	sent      atomic.Uint64
	failed    atomic.Uint64
}

// Compile-time check for interface implementation.
var _ analysis.PeakListener = (*PeakPublisher)(nil)

// NewPeakPublisher sends through t.
func NewPeakPublisher(t Transport) *PeakPublisher {
	return &PeakPublisher{transport: t}
}

// OnPeak sends one PeakMessage. Send failures are logged, never returned to
// the mapper.
func (p *PeakPublisher) OnPeak(e analysis.PeakEvent) {
	p.send(NewPeakMessage(e))
}

// PublishFinished sends a FinishedMessage.
func (p *PeakPublisher) PublishFinished() {
	p.send(FinishedMessage{Type: TypeFinished})
}

func (p *PeakPublisher) send(msg any) {
	if err := p.transport.Send(msg); err != nil {
		if p.failed.Add(1) == 1 {
			applog.Warnf("PeakPublisher: Send failed: %v", err)
		}
		return
	}
	p.sent.Add(1)
}

// Stats returns the number of messages sent and failed.
func (p *PeakPublisher) Stats() (sent, failed uint64) {
	return p.sent.Load(), p.failed.Load()
}
