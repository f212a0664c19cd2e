// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"peakbeat/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketLayout(t *testing.T) {
	b := AppendPacket(nil, 7, 1234567890, []float64{0, 150.5, 300})

	require.Len(t, b, HeaderSize+3*4)
	assert.Equal(t, []byte{0, 0, 0, 7}, b[0:4])
	assert.Equal(t, []byte{0, 3}, b[12:14])

	p, err := DecodePacket(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), p.Sequence)
	assert.Equal(t, int64(1234567890), p.Timestamp)
	assert.Equal(t, []float32{0, 150.5, 300}, p.Heights)
}

func TestDecodePacketRejectsBadLengths(t *testing.T) {
	_, err := DecodePacket([]byte{1, 2, 3})
	assert.Error(t, err)

	b := AppendPacket(nil, 1, 0, []float64{1, 2})
	_, err = DecodePacket(b[:len(b)-1])
	assert.Error(t, err)
}

type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
}

func (r *recordingSender) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, append([]byte(nil), data...))
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func TestNewUDPPublisherValidation(t *testing.T) {
	snap := analysis.NewSnapshot(4)

	_, err := NewUDPPublisher(time.Millisecond, nil, snap)
	assert.Error(t, err)
	_, err = NewUDPPublisher(time.Millisecond, &recordingSender{}, nil)
	assert.Error(t, err)

	p, err := NewUDPPublisher(0, &recordingSender{}, snap)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestPublisherSendsSnapshot(t *testing.T) {
	snap := analysis.NewSnapshot(3)
	snap.Store([]float64{10, 20, 30})
	sender := &recordingSender{}

	p, err := NewUDPPublisher(time.Millisecond, sender, snap)
	require.NoError(t, err)
	p.Start()
	p.Start()
	require.Eventually(t, func() bool { return sender.count() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Close())

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, raw := range sender.packets {
		pkt, err := DecodePacket(raw)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), pkt.Sequence)
		assert.Equal(t, []float32{10, 20, 30}, pkt.Heights)
	}
}

func TestUDPRoundTrip(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	sender, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)

	snap := analysis.NewSnapshot(2)
	snap.Store([]float64{1.5, 2.5})
	p, err := NewUDPPublisher(5*time.Millisecond, sender, snap)
	require.NoError(t, err)
	p.Start()

	buf := make([]byte, 1500)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	require.NoError(t, p.Stop())
	require.NoError(t, sender.Close())

	pkt, err := DecodePacket(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2.5}, pkt.Heights)
	assert.InDelta(t, time.Now().UnixNano(), pkt.Timestamp, float64(5*time.Second))

	assert.ErrorIs(t, sender.Send([]byte{1}), ErrSenderClosed)
	assert.NoError(t, sender.Close())
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	_, err := NewUDPSender("not an address")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSenderClosed))
}
