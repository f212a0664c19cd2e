// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"peakbeat/internal/fft"
	applog "peakbeat/internal/log"
	"peakbeat/internal/source"
)

// endOfStream is queued after the last spectrum of a source.
const endOfStream = -1

// block is one device buffer of decoded audio.
type block struct {
	data   []float32 // Interleaved, FFTSize frames.
	frames int       // Valid frames in data.
	last   bool      // No blocks follow.
}

// session is one playback of one source.
type session struct {
	gen       uint64
	handle    string
	src       source.Stream
	stream    OutputStream
	processor *fft.Processor
	channels  int
	frames    int

	// Feeder to callback. Each channel has room for every block, so
	// returning a block never blocks.
	free chan *block
	full chan *block

	// Callback to dispatcher. With one slot being written, queue holding at
	// most cap(queue) and one being delivered, len(slots) = cap(queue)+2
	// guarantees the slot being written is never read.
	queue chan int
	slots [][]float64
	write int
	mono  []float64

	// Touched only by the render callback.
	ended   bool
	endSent bool

	spectra   atomic.Uint64
	dropped   atomic.Uint64
	underruns atomic.Uint64

	quit        chan struct{}
	feederDone  chan struct{}
	releaseOnce sync.Once
}

func newSession(gen uint64, handle string, src source.Stream, processor *fft.Processor, cfg Config) *session {
	channels := src.Format().Channels
	s := &session{
		gen:        gen,
		handle:     handle,
		src:        src,
		processor:  processor,
		channels:   channels,
		frames:     cfg.FFTSize,
		free:       make(chan *block, cfg.PrefetchBuffers),
		full:       make(chan *block, cfg.PrefetchBuffers),
		queue:      make(chan int, cfg.QueueDepth),
		slots:      make([][]float64, cfg.QueueDepth+2),
		mono:       make([]float64, cfg.FFTSize),
		quit:       make(chan struct{}),
		feederDone: make(chan struct{}),
	}
	for range cfg.PrefetchBuffers {
		s.free <- &block{data: make([]float32, cfg.FFTSize*channels)}
	}
	for i := range s.slots {
		s.slots[i] = make([]float64, processor.Bins())
	}
	return s
}

// feed decodes ahead of the device until the source ends or the session quits.
func (s *session) feed() {
	defer close(s.feederDone)

	for {
		var b *block
		select {
		case b = <-s.free:
		case <-s.quit:
			return
		}

		n, err := source.ReadFull(s.src, b.data)
		b.frames = n
		b.last = err != nil
		if err != nil && !errors.Is(err, io.EOF) {
			applog.Warnf("Engine: Decoding '%s' failed, ending playback: %v", s.handle, err)
		}

		select {
		case s.full <- b:
		case <-s.quit:
			return
		}
		if b.last {
			return
		}
	}
}

// render is the device callback. It must not allocate, block or log.
func (s *session) render(out []float32) {
	if s.ended {
		clear(out)
		s.signalEnd()
		return
	}

	var b *block
	select {
	case b = <-s.full:
	default:
		clear(out)
		s.underruns.Add(1)
		return
	}

	n := copy(out, b.data[:b.frames*s.channels])
	clear(out[n:])
	// Partial blocks are played but not analyzed.
	if b.frames == s.frames {
		s.analyze(b.data)
	}
	s.ended = b.last
	s.free <- b

	if s.ended {
		s.signalEnd()
	}
}

// analyze downmixes one full block to mono, transforms it into the current
// slot and queues the slot for the dispatcher.
func (s *session) analyze(data []float32) {
	ch := s.channels
	scale := 1 / float64(ch)
	for i := range s.mono {
		var sum float64
		for c := range ch {
			sum += float64(data[i*ch+c])
		}
		s.mono[i] = sum * scale
	}

	if !s.processor.Process(s.mono, s.slots[s.write]) {
		return
	}
	select {
	case s.queue <- s.write:
		s.write = (s.write + 1) % len(s.slots)
		s.spectra.Add(1)
	default:
		s.dropped.Add(1)
	}
}

// signalEnd queues the end marker, retrying on later callbacks while the
// queue is full.
func (s *session) signalEnd() {
	if s.endSent {
		return
	}
	select {
	case s.queue <- endOfStream:
		s.endSent = true
	default:
	}
}

// teardown stops the device stream and releases the session.
func (s *session) teardown() {
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			applog.Warnf("Engine: Failed to stop stream for '%s': %v", s.handle, err)
		}
		if err := s.stream.Close(); err != nil {
			applog.Warnf("Engine: Failed to close stream for '%s': %v", s.handle, err)
		}
	}
	s.release()
	applog.Debugf("Engine: Session '%s' queued %d spectra, dropped %d, %d underruns",
		s.handle, s.spectra.Load(), s.dropped.Load(), s.underruns.Load())
}

// release ends the feeder and dispatcher and closes the source.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		close(s.quit)
		<-s.feederDone
		if err := s.src.Close(); err != nil {
			applog.Warnf("Engine: Failed to close source '%s': %v", s.handle, err)
		}
	})
}
