// SPDX-License-Identifier: MIT
package source

import (
	"io"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
)

// mp3Stream adapts a beep streamer, which always yields stereo pairs.
type mp3Stream struct {
	streamer beep.StreamSeekCloser
	format   Format
	pairs    [][2]float64
}

func openMP3(f *os.File) (Stream, error) {
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return nil, err
	}
	return &mp3Stream{
		streamer: streamer,
		format: Format{
			SampleRate: float64(format.SampleRate),
			Channels:   2,
		},
	}, nil
}

func (s *mp3Stream) Format() Format { return s.format }

func (s *mp3Stream) Read(dst []float32) (int, error) {
	frames := len(dst) / 2
	if frames == 0 {
		return 0, nil
	}
	if cap(s.pairs) < frames {
		s.pairs = make([][2]float64, frames)
	}
	pairs := s.pairs[:frames]

	n, ok := s.streamer.Stream(pairs)
	if !ok && n == 0 {
		if err := s.streamer.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	for i := range n {
		dst[2*i] = float32(pairs[i][0])
		dst[2*i+1] = float32(pairs[i][1])
	}
	return n, nil
}

func (s *mp3Stream) Close() error {
	return s.streamer.Close()
}
