// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type wavStream struct {
	file   *os.File
	dec    *wav.Decoder
	format Format
	buf    *audio.IntBuffer // Reused between reads.
	scale  float32          // 1 / 2^(bitDepth-1)
}

func openWAV(f *os.File) (Stream, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	switch dec.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, errors.New("wav header has no channels or sample rate")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	return &wavStream{
		file: f,
		dec:  dec,
		format: Format{
			SampleRate: float64(dec.SampleRate),
			Channels:   channels,
		},
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		},
		scale: 1 / float32(int64(1)<<(dec.BitDepth-1)),
	}, nil
}

func (s *wavStream) Format() Format { return s.format }

func (s *wavStream) Read(dst []float32) (int, error) {
	want := len(dst) - len(dst)%s.format.Channels
	if want == 0 {
		return 0, nil
	}
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("wav decode: %w", err)
	}
	// Drop a trailing partial frame from a truncated file.
	n -= n % s.format.Channels
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range s.buf.Data[:n] {
		dst[i] = float32(v) * s.scale
	}
	return n / s.format.Channels, nil
}

func (s *wavStream) Close() error {
	return s.file.Close()
}
