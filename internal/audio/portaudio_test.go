// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStallTimeout(t *testing.T) {
	small := StreamParams{Channels: 2, SampleRate: 48000, FramesPerBuffer: 256}
	assert.Equal(t, minStall, stallTimeout(small, 0))

	large := StreamParams{Channels: 1, SampleRate: 8192, FramesPerBuffer: 4096}
	assert.Equal(t, 8*500*time.Millisecond+100*time.Millisecond, stallTimeout(large, 100*time.Millisecond))
}

func TestPortAudioStreamActive(t *testing.T) {
	s := &portAudioStream{stall: minStall}
	assert.False(t, s.Active(), "never started")

	now := time.Now()
	s.started.Store(now.UnixNano())
	assert.True(t, s.Active(), "waiting for the first callback")

	s.heartbeat.Store(now.UnixNano())
	assert.True(t, s.Active())

	// Callbacks stopped arriving without a Stop.
	s.started.Store(now.Add(-time.Second).UnixNano())
	s.heartbeat.Store(now.Add(-time.Second).UnixNano())
	assert.False(t, s.Active())

	s.heartbeat.Store(time.Now().UnixNano())
	assert.True(t, s.Active())

	s.started.Store(0)
	assert.False(t, s.Active(), "stopped")
}
