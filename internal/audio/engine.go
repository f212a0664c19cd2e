// SPDX-License-Identifier: MIT
/*
Package audio implements the spectral analysis engine: it plays a decoded
source through an output device and produces one magnitude spectrum per
device buffer.

Thread Safety:
  - The render callback runs on the device's real-time thread. It only uses
    pre-allocated buffers and non-blocking channel operations.
  - Decoding happens on a feeder goroutine that keeps a small pool of blocks
    filled ahead of the device.
  - Spectra are handed to a dispatcher goroutine through a ring of slots and
    delivered to the listener in order. When the listener falls behind,
    frames are dropped instead of stalling the device.
  - Stop increments a generation counter; the dispatcher never delivers a
    frame from an older generation, so no listener call happens after Stop
    returns.
*/
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"peakbeat/internal/domain"
	"peakbeat/internal/fft"
	applog "peakbeat/internal/log"
	"peakbeat/internal/source"
)

// Engine defaults.
const (
	DefaultFFTSize         = 1024
	DefaultPrefetchBuffers = 4
	DefaultQueueDepth      = 4
)

// SpectrumListener receives the engine's output on the dispatcher goroutine.
// OnSpectrum must not call Stop, LoadAndPlay or Close, and must not retain
// magnitudes after returning. OnPlaybackFinished may call LoadAndPlay.
type SpectrumListener interface {
	OnSpectrum(magnitudes []float64)
	OnPlaybackFinished()
}

// PlaybackStartListener is implemented by listeners that want to know when a
// new source starts delivering. OnPlaybackStarted runs on the dispatcher
// goroutine right before the first spectrum of each LoadAndPlay.
type PlaybackStartListener interface {
	OnPlaybackStarted()
}

// Config is fixed at construction.
type Config struct {
	FFTSize         int            // Transform size in frames; one spectrum per device buffer.
	Window          fft.WindowFunc // Analysis window, Hann by default.
	PrefetchBuffers int            // Decoded blocks kept ahead of the device.
	QueueDepth      int            // Spectra that may wait for the listener.
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		FFTSize:         DefaultFFTSize,
		Window:          fft.Hann,
		PrefetchBuffers: DefaultPrefetchBuffers,
		QueueDepth:      DefaultQueueDepth,
	}
}

type Engine struct {
	cfg       Config
	device    Device
	provider  source.Provider
	listener  SpectrumListener
	processor *fft.Processor

	mu      sync.Mutex // Serializes LoadAndPlay, Stop and Close.
	session *session
	closed  bool

	generation atomic.Uint64
	active     atomic.Pointer[session] // Session whose stream was started.

	// Held by the dispatcher while the listener runs; Stop acquires it once
	// to wait out an in-flight delivery.
	deliverMu sync.Mutex

	dispatchers sync.WaitGroup
}

// New builds an engine. Malformed configuration is rejected here and never
// at runtime.
func New(cfg Config, device Device, provider source.Provider, listener SpectrumListener) (*Engine, error) {
	switch {
	case device == nil:
		return nil, errors.New("audio engine requires a device")
	case provider == nil:
		return nil, errors.New("audio engine requires a source provider")
	case listener == nil:
		return nil, errors.New("audio engine requires a spectrum listener")
	case cfg.PrefetchBuffers < 2:
		return nil, domain.Malformed("prefetch buffers must be at least 2, got %d", cfg.PrefetchBuffers)
	case cfg.QueueDepth < 1:
		return nil, domain.Malformed("queue depth must be at least 1, got %d", cfg.QueueDepth)
	}

	processor, err := fft.NewProcessor(cfg.FFTSize, cfg.Window)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		device:    device,
		provider:  provider,
		listener:  listener,
		processor: processor,
	}, nil
}

// LoadAndPlay stops the current source, opens handle and starts playing it.
// Open and decode failures wrap domain.ErrUnreadableSource; device failures
// wrap domain.ErrDeviceUnavailable. On failure the engine stays stopped.
func (e *Engine) LoadAndPlay(handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return &domain.EngineError{Op: "play", Handle: handle, Err: fmt.Errorf("%w: engine closed", domain.ErrDeviceUnavailable)}
	}
	e.stopLocked()

	src, err := e.provider.Open(handle)
	if err != nil {
		return &domain.EngineError{Op: "load", Handle: handle, Err: unreadable(err)}
	}
	format := src.Format()
	if format.Channels < 1 || !(format.SampleRate > 0) {
		src.Close()
		return &domain.EngineError{Op: "load", Handle: handle,
			Err: fmt.Errorf("%w: unusable format %d channels at %g Hz", domain.ErrUnreadableSource, format.Channels, format.SampleRate)}
	}

	s := newSession(e.generation.Add(1), handle, src, e.processor, e.cfg)
	go s.feed()
	e.dispatchers.Add(1)
	go e.dispatch(s)

	params := StreamParams{
		Channels:        format.Channels,
		SampleRate:      format.SampleRate,
		FramesPerBuffer: e.cfg.FFTSize,
	}
	stream, err := e.device.OpenOutput(params, s.render)
	if err != nil {
		s.release()
		return &domain.EngineError{Op: "play", Handle: handle, Err: unavailable(err)}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		s.release()
		return &domain.EngineError{Op: "play", Handle: handle, Err: unavailable(err)}
	}
	s.stream = stream

	e.session = s
	e.active.Store(s)
	applog.Infof("Engine: Playing '%s' (%d channels, %.0f Hz, %d-point FFT)",
		handle, format.Channels, format.SampleRate, e.cfg.FFTSize)
	return nil
}

// Stop halts playback. It is safe to call at any time, including while the
// device callback is running; once it returns no listener call is in flight
// and none will follow for the stopped source.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	s := e.session
	if s == nil {
		return
	}
	e.generation.Add(1)
	e.session = nil
	e.active.Store(nil)
	s.teardown()

	// Wait out a delivery that passed the generation check before the bump.
	e.deliverMu.Lock()
	e.deliverMu.Unlock()
	applog.Infof("Engine: Stopped '%s'", s.handle)
}

// IsPlaying reports whether a source is loaded and its device stream is
// still running. It never blocks, so listeners may call it.
func (e *Engine) IsPlaying() bool {
	s := e.active.Load()
	return s != nil && s.stream.Active()
}

// Close stops playback and releases the transform plan. The engine cannot be
// used afterwards. Close must not be called from listener callbacks.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stopLocked()
	e.mu.Unlock()

	e.dispatchers.Wait()
	return e.processor.Close()
}

// dispatch delivers s's spectra until the session ends.
func (e *Engine) dispatch(s *session) {
	defer e.dispatchers.Done()

	starter, _ := e.listener.(PlaybackStartListener)
	started := false
	for {
		select {
		case <-s.quit:
			return
		case idx := <-s.queue:
			if idx == endOfStream {
				e.finish(s)
				return
			}
			e.deliverMu.Lock()
			if e.generation.Load() == s.gen {
				if !started && starter != nil {
					starter.OnPlaybackStarted()
				}
				started = true
				e.listener.OnSpectrum(s.slots[idx])
			}
			e.deliverMu.Unlock()
		}
	}
}

// finish tears s down after its last block played and notifies the listener,
// unless Stop or LoadAndPlay already replaced it.
func (e *Engine) finish(s *session) {
	e.mu.Lock()
	if e.session != s || e.generation.Load() != s.gen {
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.active.Store(nil)
	s.teardown()
	e.mu.Unlock()

	applog.Infof("Engine: Finished '%s'", s.handle)
	e.listener.OnPlaybackFinished()
}

func unreadable(err error) error {
	if errors.Is(err, domain.ErrUnreadableSource) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUnreadableSource, err)
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
}
