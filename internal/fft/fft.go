// SPDX-License-Identifier: MIT
//
// Package fft turns fixed-size frames of mono samples into linear magnitude
// spectra. The window and the transform plan are built once and are read-only
// afterwards; the per-frame path uses pre-allocated buffers only.
package fft

import (
	"math"
	"sync"

	"peakbeat/internal/domain"
	"peakbeat/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MinSize is the smallest accepted transform size.
const MinSize = 4

type workspace struct {
	windowed []float64    // Windowed frame fed to the transform.
	coeffs   []complex128 // size/2 + 1 complex bins from the real transform.
}

// Processor owns the window, the transform plan and the frame workspace. It is
// not safe for concurrent Process calls; the audio callback is its only caller.
type Processor struct {
	size      int
	window    []float64
	windowFn  WindowFunc
	plan      *fourier.FFT
	workspace workspace
	closeOnce sync.Once
}

// NewProcessor builds a processor for frames of size samples. The size must be
// a power of two of at least MinSize.
func NewProcessor(size int, windowFn WindowFunc) (*Processor, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, domain.Malformed("fft size must be a power of 2, got %d (nearest %d)",
			size, bitint.NextPowerOfTwo(size))
	}
	if size < MinSize {
		return nil, domain.Malformed("fft size must be at least %d, got %d", MinSize, size)
	}

	return &Processor{
		size:     size,
		window:   coefficients(size, windowFn),
		windowFn: windowFn,
		plan:     fourier.NewFFT(size),
		workspace: workspace{
			windowed: make([]float64, size),
			coeffs:   make([]complex128, size/2+1),
		},
	}, nil
}

// Size returns the transform length in samples.
func (p *Processor) Size() int { return p.size }

// Bins returns the length of every magnitude vector: size/2. The Nyquist bin
// produced by the real transform is not reported.
func (p *Processor) Bins() int { return p.size / 2 }

// WindowFunc returns the window the processor was built with.
func (p *Processor) WindowFunc() WindowFunc { return p.windowFn }

// Coefficient returns window coefficient i.
func (p *Processor) Coefficient(i int) float64 { return p.window[i] }

// Process windows frame, runs the forward real transform and writes the
// magnitude sqrt(re²+im²) of the first size/2 bins into dst. Frames shorter
// than the transform size and undersized dst slices are dropped and Process
// returns false. It also returns false once the processor is closed.
func (p *Processor) Process(frame []float64, dst []float64) bool {
	if p.plan == nil || len(frame) < p.size || len(dst) < p.size/2 {
		return false
	}

	for i := range p.size {
		p.workspace.windowed[i] = frame[i] * p.window[i]
	}

	p.plan.Coefficients(p.workspace.coeffs, p.workspace.windowed)

	for i := range p.size / 2 {
		c := p.workspace.coeffs[i]
		dst[i] = math.Hypot(real(c), imag(c))
	}
	return true
}

// Close releases the transform plan. It is safe to call more than once; only
// the first call has an effect.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() {
		p.plan = nil
		p.workspace.coeffs = nil
	})
	return nil
}
