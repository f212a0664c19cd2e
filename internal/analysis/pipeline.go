// SPDX-License-Identifier: MIT
package analysis

import (
	"time"

	applog "peakbeat/internal/log"
)

// Pipeline receives spectra from the engine, measures the real time between
// them and drives a Mapper. It runs on the engine's delivery goroutine.
type Pipeline struct {
	mapper   *Mapper
	snapshot *Snapshot
	now      func() time.Time
	onFinish func()

	last    time.Time
	started bool
	heights []float64
	frames  uint64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithSnapshot publishes the bar heights after every update.
func WithSnapshot(s *Snapshot) PipelineOption {
	return func(p *Pipeline) { p.snapshot = s }
}

// WithFinishedHandler runs fn when playback reaches the end of the source.
func WithFinishedHandler(fn func()) PipelineOption {
	return func(p *Pipeline) { p.onFinish = fn }
}

// NewPipeline wraps mapper.
func NewPipeline(mapper *Mapper, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		mapper:  mapper,
		now:     time.Now,
		heights: make([]float64, mapper.BarCount()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnSpectrum updates the mapper with the time elapsed since the previous
// spectrum. The first spectrum after a restart or a new source uses zero.
func (p *Pipeline) OnSpectrum(magnitudes []float64) {
	now := p.now()
	var elapsed time.Duration
	if p.started {
		elapsed = now.Sub(p.last)
	}
	p.last = now
	p.started = true
	p.frames++

	p.mapper.Update(magnitudes, elapsed)

	if p.snapshot != nil {
		p.mapper.Heights(p.heights)
		p.snapshot.Store(p.heights)
	}
}

// OnPlaybackStarted makes the first spectrum of a new source use zero
// elapsed time, so a pause between sources is not counted.
func (p *Pipeline) OnPlaybackStarted() {
	p.started = false
}

// OnPlaybackFinished forwards the end-of-source notification.
func (p *Pipeline) OnPlaybackFinished() {
	applog.Infof("Pipeline: Playback finished after %d spectra", p.frames)
	p.started = false
	if p.onFinish != nil {
		p.onFinish()
	}
}

// Restart resets the visualization for a new track. Only call it while the
// engine is stopped.
func (p *Pipeline) Restart() {
	p.mapper.Reset()
	p.started = false
	p.frames = 0
	if p.snapshot != nil {
		clear(p.heights)
		p.snapshot.Store(p.heights)
	}
}

// Frames returns the number of spectra processed since the last restart.
func (p *Pipeline) Frames() uint64 {
	return p.frames
}
