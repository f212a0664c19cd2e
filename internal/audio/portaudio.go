// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"peakbeat/internal/domain"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice plays through a PortAudio output device. PortAudio must be
// initialized for as long as the device is used.
type PortAudioDevice struct {
	deviceID   int
	lowLatency bool
}

// Compile-time check for interface implementation.
var _ Device = (*PortAudioDevice)(nil)

// NewPortAudioDevice returns a device for deviceID, or the host default
// output when deviceID is DefaultDeviceID.
func NewPortAudioDevice(deviceID int, lowLatency bool) *PortAudioDevice {
	return &PortAudioDevice{deviceID: deviceID, lowLatency: lowLatency}
}

// OpenOutput opens an output-only stream driving render.
func (d *PortAudioDevice) OpenOutput(params StreamParams, render func(out []float32)) (OutputStream, error) {
	info, err := OutputDevice(d.deviceID)
	if err != nil {
		return nil, err
	}
	if params.Channels > info.MaxOutputChannels {
		return nil, fmt.Errorf("%w: %s supports %d output channels, need %d",
			domain.ErrDeviceUnavailable, info.Name, info.MaxOutputChannels, params.Channels)
	}

	var latency time.Duration
	if d.lowLatency {
		latency = info.DefaultLowOutputLatency
	} else {
		latency = info.DefaultHighOutputLatency
	}

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // Playback only
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: params.Channels,
			Device:   info,
			Latency:  latency,
		},
		FramesPerBuffer: params.FramesPerBuffer,
		SampleRate:      params.SampleRate,
	}

	ps := &portAudioStream{stall: stallTimeout(params, latency)}
	stream, err := portaudio.OpenStream(streamParams, func(out []float32) {
		ps.heartbeat.Store(time.Now().UnixNano())
		render(out)
	})
	if err != nil {
		return nil, fmt.Errorf("open stream on %s: %w", info.Name, err)
	}
	ps.Stream = stream
	return ps, nil
}

// minStall bounds how long a started stream may go without a callback before
// it is reported inactive.
const minStall = 250 * time.Millisecond

// stallTimeout allows several buffers plus the output latency between
// callbacks.
func stallTimeout(params StreamParams, latency time.Duration) time.Duration {
	buffer := time.Duration(float64(params.FramesPerBuffer) / params.SampleRate * float64(time.Second))
	return max(minStall, 8*buffer+latency)
}

// portAudioStream tracks callbacks so a stream whose device disappeared or
// errored stops reporting itself active. PortAudio keeps such streams open
// but never calls back again.
type portAudioStream struct {
	*portaudio.Stream
	stall     time.Duration
	started   atomic.Int64 // Unix nanoseconds of Start, 0 while stopped.
	heartbeat atomic.Int64 // Unix nanoseconds of the last callback.
}

func (s *portAudioStream) Start() error {
	s.started.Store(time.Now().UnixNano())
	if err := s.Stream.Start(); err != nil {
		s.started.Store(0)
		return err
	}
	return nil
}

func (s *portAudioStream) Stop() error {
	s.started.Store(0)
	return s.Stream.Stop()
}

func (s *portAudioStream) Active() bool {
	started := s.started.Load()
	if started == 0 {
		return false
	}
	last := max(started, s.heartbeat.Load())
	return time.Since(time.Unix(0, last)) < s.stall
}
