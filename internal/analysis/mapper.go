// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"time"

	"peakbeat/internal/domain"
)

// Mapper defaults.
const (
	DefaultBarCount           = 30
	DefaultDBWindow           = 50.0
	DefaultFallSpeed          = 180.0 // Height units per second.
	DefaultGamma              = 0.7
	DefaultHighFrequencyBoost = 1.6
	DefaultMinPeakFraction    = 0.05
	DefaultEmissionInterval   = 650 * time.Millisecond
	DefaultReferenceDB        = 0.0
	DefaultWidth              = 600.0
	DefaultHeight             = 300.0
)

// magnitudeFloor keeps log10 finite for empty bins (-200 dB).
const magnitudeFloor = 1e-10

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PeakEvent is emitted for every bar whose windowed peak qualified at a flush.
type PeakEvent struct {
	Bar      int     // Bar index in [0, BarCount).
	Position Point   // Top of the bar in the anchored coordinate space.
	Peak     float64 // Highest bar height seen during the window.
}

// PeakListener receives peak events. Calls happen on the goroutine that
// drives Mapper.Update.
type PeakListener interface {
	OnPeak(event PeakEvent)
}

// PeakListenerFunc adapts a function to PeakListener.
type PeakListenerFunc func(event PeakEvent)

func (f PeakListenerFunc) OnPeak(event PeakEvent) { f(event) }

// MapperConfig is fixed at construction.
type MapperConfig struct {
	BarCount           int
	DBWindow           float64 // Dynamic range in dB mapped to full height.
	FallSpeed          float64 // Linear decay in height units per second.
	Gamma              float64
	HighFrequencyBoost float64
	MinPeakFraction    float64 // Fraction of Height a peak must reach to be emitted.
	EmissionInterval   time.Duration
	ReferenceDB        float64 // Lowest value the per-vector peak dB can take.
	Width              float64 // Horizontal extent shared by the bar slots.
	Height             float64 // Full bar height.
}

// DefaultMapperConfig returns the tuned defaults.
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		BarCount:           DefaultBarCount,
		DBWindow:           DefaultDBWindow,
		FallSpeed:          DefaultFallSpeed,
		Gamma:              DefaultGamma,
		HighFrequencyBoost: DefaultHighFrequencyBoost,
		MinPeakFraction:    DefaultMinPeakFraction,
		EmissionInterval:   DefaultEmissionInterval,
		ReferenceDB:        DefaultReferenceDB,
		Width:              DefaultWidth,
		Height:             DefaultHeight,
	}
}

// Validate reports the first invalid field wrapped in
// domain.ErrMalformedConfiguration.
func (c MapperConfig) Validate() error {
	switch {
	case c.BarCount < 2:
		return domain.Malformed("bar count must be at least 2, got %d", c.BarCount)
	case !(c.DBWindow > 0):
		return domain.Malformed("dB window must be positive, got %g", c.DBWindow)
	case c.FallSpeed < 0 || math.IsNaN(c.FallSpeed):
		return domain.Malformed("fall speed must not be negative, got %g", c.FallSpeed)
	case !(c.Gamma > 0):
		return domain.Malformed("gamma must be positive, got %g", c.Gamma)
	case !(c.HighFrequencyBoost > 0):
		return domain.Malformed("high frequency boost must be positive, got %g", c.HighFrequencyBoost)
	case c.MinPeakFraction < 0 || c.MinPeakFraction > 1 || math.IsNaN(c.MinPeakFraction):
		return domain.Malformed("min peak fraction must be within [0, 1], got %g", c.MinPeakFraction)
	case c.EmissionInterval <= 0:
		return domain.Malformed("emission interval must be positive, got %s", c.EmissionInterval)
	case !(c.Width > 0) || !(c.Height > 0):
		return domain.Malformed("visualization size must be positive, got %gx%g", c.Width, c.Height)
	case math.IsNaN(c.ReferenceDB) || math.IsInf(c.ReferenceDB, 0):
		return domain.Malformed("reference dB must be finite, got %g", c.ReferenceDB)
	}
	return nil
}

// Mapper turns magnitude spectra into animated bar heights and emits peak
// events on a fixed cadence. It holds no locks: Update, Heights, Anchor and
// Reset must all be called from one goroutine.
type Mapper struct {
	cfg      MapperConfig
	listener PeakListener
	origin   Point

	current    []float64 // Displayed bar heights.
	windowPeak []float64 // Max of current since the last flush.
	elapsed    time.Duration
}

// NewMapper validates cfg and returns a mapper delivering peaks to listener.
// A nil listener discards peaks.
func NewMapper(cfg MapperConfig, listener PeakListener) (*Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{
		cfg:        cfg,
		listener:   listener,
		current:    make([]float64, cfg.BarCount),
		windowPeak: make([]float64, cfg.BarCount),
	}, nil
}

// Config returns the configuration the mapper was built with.
func (m *Mapper) Config() MapperConfig { return m.cfg }

// BarCount returns the number of bars.
func (m *Mapper) BarCount() int { return m.cfg.BarCount }

// BinForBar returns the spectrum bin sampled by bar i for a vector of
// binCount bins. The quadratic warp packs bars toward low frequencies.
func (m *Mapper) BinForBar(i, binCount int) int {
	norm := float64(i) / float64(m.cfg.BarCount-1)
	return int(math.Floor(norm * norm * float64(binCount-1)))
}

// Update maps one magnitude vector onto the bars, advances the envelopes by
// elapsed and flushes peaks once the emission interval is reached. Empty
// vectors are ignored.
func (m *Mapper) Update(magnitudes []float64, elapsed time.Duration) {
	binCount := len(magnitudes)
	if binCount == 0 {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}

	peakDB := m.peakDecibels(magnitudes)
	floorDB := peakDB - m.cfg.DBWindow
	decay := m.cfg.FallSpeed * elapsed.Seconds()
	boost := m.cfg.HighFrequencyBoost - 1

	for i := range m.current {
		norm := float64(i) / float64(m.cfg.BarCount-1)
		bin := m.BinForBar(i, binCount)

		lo, hi := max(bin-1, 0), min(bin+1, binCount-1)
		var sum float64
		for b := lo; b <= hi; b++ {
			sum += magnitudes[b]
		}
		db := math.Max(floorDB, math.Min(peakDB, decibels(sum/float64(hi-lo+1))))

		level := (db - floorDB) / m.cfg.DBWindow
		level *= 1 + boost*norm*norm
		level = math.Max(0, math.Min(1, level))
		level = math.Pow(level, m.cfg.Gamma)
		target := level * m.cfg.Height

		// Instant attack, then linear fall.
		h := math.Max(m.current[i], target)
		h = math.Max(0, h-decay)
		m.current[i] = h

		if h > m.windowPeak[i] {
			m.windowPeak[i] = h
		}
	}

	m.elapsed += elapsed
	if m.elapsed >= m.cfg.EmissionInterval {
		m.flush()
	}
}

// peakDecibels returns the level of the loudest bin, never lower than the
// reference level.
func (m *Mapper) peakDecibels(magnitudes []float64) float64 {
	var loudest float64
	for _, mag := range magnitudes {
		loudest = math.Max(loudest, mag)
	}
	return math.Max(m.cfg.ReferenceDB, decibels(loudest))
}

func decibels(magnitude float64) float64 {
	return 20 * math.Log10(math.Max(magnitude, magnitudeFloor))
}

func (m *Mapper) flush() {
	threshold := m.cfg.MinPeakFraction * m.cfg.Height
	slot := m.cfg.Width / float64(m.cfg.BarCount)

	for i, peak := range m.windowPeak {
		if peak >= threshold && m.listener != nil {
			m.listener.OnPeak(PeakEvent{
				Bar: i,
				Position: Point{
					X: m.origin.X + (float64(i)+0.5)*slot,
					Y: m.origin.Y + m.current[i],
				},
				Peak: peak,
			})
		}
		m.windowPeak[i] = 0
	}
	m.elapsed = 0
}

// Heights copies the current bar heights into dst and returns the number of
// values copied.
func (m *Mapper) Heights(dst []float64) int {
	return copy(dst, m.current)
}

// Anchor sets the origin of the coordinate space peak positions are reported in.
func (m *Mapper) Anchor(origin Point) {
	m.origin = origin
}

// Reset zeroes every bar, every window peak and the emission timer.
func (m *Mapper) Reset() {
	clear(m.current)
	clear(m.windowPeak)
	m.elapsed = 0
}
