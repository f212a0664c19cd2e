// SPDX-License-Identifier: MIT
package audio

// StreamParams describes the PCM an output stream is opened for.
type StreamParams struct {
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
}

// OutputStream is an opened device stream. Stop must not return while a
// render callback is still running. Active reports whether the device is
// still calling back, which turns false when a started stream dies.
type OutputStream interface {
	Start() error
	Stop() error
	Close() error
	Active() bool
}

// Device opens output streams. The render callback runs on the platform's
// real-time audio thread and fills out with interleaved samples; it is called
// with FramesPerBuffer*Channels samples.
type Device interface {
	OpenOutput(params StreamParams, render func(out []float32)) (OutputStream, error)
}

// DeviceInfo describes a host audio device.
type DeviceInfo struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultOutput   bool
}

// CanOutput reports whether the device can play audio.
func (d DeviceInfo) CanOutput() bool {
	return d.MaxOutputChannels > 0
}
