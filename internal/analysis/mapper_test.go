// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"peakbeat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBins = 512

type peakRecorder struct {
	events []PeakEvent
}

func (r *peakRecorder) OnPeak(e PeakEvent) { r.events = append(r.events, e) }

func newTestMapper(t testing.TB, listener PeakListener) *Mapper {
	t.Helper()
	m, err := NewMapper(DefaultMapperConfig(), listener)
	require.NoError(t, err)
	return m
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func heights(m *Mapper) []float64 {
	h := make([]float64, m.BarCount())
	m.Heights(h)
	return h
}

func TestNewMapperRejectsMalformedConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MapperConfig)
	}{
		{"Single Bar", func(c *MapperConfig) { c.BarCount = 1 }},
		{"Zero Bars", func(c *MapperConfig) { c.BarCount = 0 }},
		{"Zero dB Window", func(c *MapperConfig) { c.DBWindow = 0 }},
		{"Negative Fall Speed", func(c *MapperConfig) { c.FallSpeed = -1 }},
		{"Zero Gamma", func(c *MapperConfig) { c.Gamma = 0 }},
		{"Zero Boost", func(c *MapperConfig) { c.HighFrequencyBoost = 0 }},
		{"Peak Fraction Above One", func(c *MapperConfig) { c.MinPeakFraction = 1.5 }},
		{"Zero Interval", func(c *MapperConfig) { c.EmissionInterval = 0 }},
		{"Zero Height", func(c *MapperConfig) { c.Height = 0 }},
		{"Negative Width", func(c *MapperConfig) { c.Width = -10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMapperConfig()
			tt.mutate(&cfg)
			m, err := NewMapper(cfg, nil)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, domain.ErrMalformedConfiguration)
		})
	}
}

func TestBinMappingEndpointsAndOrder(t *testing.T) {
	m := newTestMapper(t, nil)

	assert.Equal(t, 0, m.BinForBar(0, testBins))
	assert.Equal(t, testBins-1, m.BinForBar(m.BarCount()-1, testBins))

	prev := -1
	for i := range m.BarCount() {
		bin := m.BinForBar(i, testBins)
		assert.GreaterOrEqual(t, bin, prev, "bar %d", i)
		prev = bin
	}
	assert.Equal(t, 136, m.BinForBar(15, testBins))
}

func TestSilenceNeverEmits(t *testing.T) {
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)
	silence := make([]float64, testBins)

	for range 40 {
		m.Update(silence, 50*time.Millisecond)
	}

	assert.Empty(t, rec.events)
	for i, h := range heights(m) {
		assert.Zero(t, h, "bar %d", i)
	}
}

func TestSilenceDrivesBarsToZero(t *testing.T) {
	m := newTestMapper(t, nil)
	m.Update(filled(testBins, 1), 0)
	silence := make([]float64, testBins)

	for range 20 {
		m.Update(silence, 100*time.Millisecond)
	}
	for i, h := range heights(m) {
		assert.Zero(t, h, "bar %d", i)
	}
}

func TestEmptyVectorIsNoOp(t *testing.T) {
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)
	m.Update(filled(testBins, 1), 0)
	before := heights(m)

	m.Update(nil, time.Second)
	m.Update([]float64{}, time.Second)

	assert.Equal(t, before, heights(m))
	assert.Empty(t, rec.events, "empty vectors must not advance the emission timer")
}

func TestDeterminism(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	frames := make([][]float64, 200)
	steps := make([]time.Duration, len(frames))
	for i := range frames {
		frames[i] = make([]float64, testBins)
		for b := range frames[i] {
			frames[i][b] = rng.Float64() * 50
		}
		steps[i] = time.Duration(rng.IntN(40)) * time.Millisecond
	}

	run := func() ([]float64, []PeakEvent) {
		rec := &peakRecorder{}
		m := newTestMapper(t, rec)
		for i := range frames {
			m.Update(frames[i], steps[i])
		}
		return heights(m), rec.events
	}

	h1, e1 := run()
	h2, e2 := run()
	assert.Equal(t, h1, h2)
	assert.Equal(t, e1, e2)
	assert.NotEmpty(t, e1)
}

func TestEnvelopeBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	m := newTestMapper(t, nil)
	height := m.Config().Height

	for range 500 {
		frame := make([]float64, testBins)
		for b := range frame {
			frame[b] = rng.Float64() * rng.Float64() * 300
		}
		m.Update(frame, time.Duration(rng.IntN(30))*time.Millisecond)
		for i, h := range heights(m) {
			require.GreaterOrEqual(t, h, 0.0, "bar %d", i)
			require.LessOrEqual(t, h, height, "bar %d", i)
		}
	}
}

func TestLinearDecayWithoutLouderTarget(t *testing.T) {
	m := newTestMapper(t, nil)
	cfg := m.Config()

	m.Update(filled(testBins, 1), 0)
	for i, h := range heights(m) {
		require.InDelta(t, cfg.Height, h, 1e-9, "bar %d", i)
	}

	quiet := filled(testBins, 0.001)
	prev := heights(m)
	for range 5 {
		m.Update(quiet, 100*time.Millisecond)
		cur := heights(m)
		for i := range cur {
			assert.InDelta(t, prev[i]-cfg.FallSpeed*0.1, cur[i], 1e-9, "bar %d", i)
		}
		prev = cur
	}
}

func TestAttackIsInstant(t *testing.T) {
	m := newTestMapper(t, nil)
	m.Update(make([]float64, testBins), 0)
	m.Update(filled(testBins, 1), 0)

	for i, h := range heights(m) {
		assert.InDelta(t, m.Config().Height, h, 1e-9, "bar %d", i)
	}
}

func TestEmissionCadence(t *testing.T) {
	const k = 7
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)
	loud := filled(testBins, 1)
	step := DefaultEmissionInterval / 5

	for i := range 5 * k {
		m.Update(loud, step)
		if i == 3 {
			assert.Empty(t, rec.events, "flushed before the interval elapsed")
		}
	}

	require.Len(t, rec.events, k*m.BarCount())
	for i, e := range rec.events {
		assert.Equal(t, i%m.BarCount(), e.Bar)
	}
}

func TestExactIntervalFlushes(t *testing.T) {
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)

	m.Update(filled(testBins, 1), DefaultEmissionInterval)
	assert.Len(t, rec.events, m.BarCount())

	m.Update(filled(testBins, 1), DefaultEmissionInterval-time.Nanosecond)
	assert.Len(t, rec.events, m.BarCount(), "timer must restart from zero after a flush")
}

func TestQuietThenLoud(t *testing.T) {
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)
	cfg := m.Config()
	quiet := filled(testBins, 0.001)

	for range 10 {
		m.Update(quiet, 100*time.Millisecond)
	}
	require.Empty(t, rec.events)

	// A single full-scale bin between quiet neighbours.
	loud := filled(testBins, 0.001)
	loud[m.BinForBar(15, testBins)] = 1
	m.Update(loud, 0)

	h := heights(m)
	assert.InDelta(t, cfg.Height, h[15], 0.05*cfg.Height)
	assert.Zero(t, h[14])
	assert.Zero(t, h[16])

	// 300ms accumulated since the last flush; 350ms more crosses 650ms.
	m.Update(quiet, 350*time.Millisecond)

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, 15, e.Bar)
	assert.InDelta(t, h[15], e.Peak, 1e-9)
	assert.InDelta(t, cfg.Height, e.Peak, 0.05*cfg.Height)
	assert.InDelta(t, h[15]-cfg.FallSpeed*0.35, e.Position.Y, 1e-9)
	assert.InDelta(t, 15.5*cfg.Width/float64(cfg.BarCount), e.Position.X, 1e-9)
}

func TestSmoothingAveragesMagnitudes(t *testing.T) {
	const bar = 15
	cfg := DefaultMapperConfig()
	bin := newTestMapper(t, nil).BinForBar(bar, testBins)

	spread := filled(testBins, 0.001)
	spread[bin-1], spread[bin], spread[bin+1] = 0.3, 0.3, 0.3

	spike := filled(testBins, 0.001)
	spike[bin-1], spike[bin], spike[bin+1] = 0, 0.9, 0

	barHeight := func(v []float64) float64 {
		m := newTestMapper(t, nil)
		m.Update(v, 0)
		return heights(m)[bar]
	}

	norm := float64(bar) / float64(cfg.BarCount-1)
	level := (20*math.Log10(0.3) + cfg.DBWindow) / cfg.DBWindow
	level *= 1 + (cfg.HighFrequencyBoost-1)*norm*norm
	want := math.Pow(level, cfg.Gamma) * cfg.Height

	assert.InDelta(t, want, barHeight(spread), 1e-9)
	assert.InDelta(t, want, barHeight(spike), 1e-9, "neighbours with the same mean must give the same bar")
}

func TestSmoothingClampsAtFirstBin(t *testing.T) {
	m := newTestMapper(t, nil)
	v := filled(testBins, 0.001)
	v[0], v[1] = 1, 0

	m.Update(v, 0)

	// Bar 0 averages bins 0 and 1 only.
	level := (20*math.Log10(0.5) + DefaultDBWindow) / DefaultDBWindow
	assert.InDelta(t, math.Pow(level, DefaultGamma)*DefaultHeight, heights(m)[0], 1e-9)
}

func TestMinPeakFractionThreshold(t *testing.T) {
	cfg := DefaultMapperConfig()
	cfg.MinPeakFraction = 1
	rec := &peakRecorder{}
	m, err := NewMapper(cfg, rec)
	require.NoError(t, err)

	m.Update(filled(testBins, 1), 0)
	m.Update(filled(testBins, 0.001), cfg.EmissionInterval)

	// Every bar reached full height before decaying, so every bar qualifies.
	assert.Len(t, rec.events, cfg.BarCount)

	m.Update(filled(testBins, 0.001), cfg.EmissionInterval)
	assert.Len(t, rec.events, cfg.BarCount)
}

func TestAnchorOffsetsPositions(t *testing.T) {
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)
	m.Anchor(Point{X: 100, Y: -50})

	m.Update(filled(testBins, 1), DefaultEmissionInterval)

	require.NotEmpty(t, rec.events)
	slot := m.Config().Width / float64(m.BarCount())
	e := rec.events[0]
	assert.InDelta(t, 100+0.5*slot, e.Position.X, 1e-9)
	assert.InDelta(t, -50+heights(m)[0], e.Position.Y, 1e-9)
}

func TestReset(t *testing.T) {
	rec := &peakRecorder{}
	m := newTestMapper(t, rec)
	m.Update(filled(testBins, 1), DefaultEmissionInterval/2)

	m.Reset()
	for _, h := range heights(m) {
		assert.Zero(t, h)
	}

	// The half interval accumulated before the reset is gone too.
	m.Update(filled(testBins, 1), DefaultEmissionInterval/2+time.Millisecond)
	assert.Empty(t, rec.events)
}

func TestUpdateHotPath(t *testing.T) {
	m := newTestMapper(t, nil)
	frame := filled(testBins, 0.5)
	m.Update(frame, time.Millisecond)

	allocs := testing.AllocsPerRun(100, func() {
		m.Update(frame, time.Millisecond)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Update, got %.1f", allocs)
	}
}

func BenchmarkUpdate(b *testing.B) {
	m := newTestMapper(b, nil)
	frame := filled(testBins, 0.5)

	b.ReportAllocs()
	for b.Loop() {
		m.Update(frame, 10*time.Millisecond)
	}
}
