// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"
)

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Bar Count   |       Bar Heights       |
|      (uint32)     |   (int64, unix ns)    |    (uint16)   |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+
*/

// HeaderSize is the length of the fixed packet header.
const HeaderSize = 4 + 8 + 2

// Packet is a decoded bar-height packet.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Heights   []float32
}

// AppendPacket encodes a packet onto dst and returns the extended slice.
func AppendPacket(dst []byte, seq uint32, timestamp int64, heights []float64) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(heights)))
	for _, h := range heights {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(h)))
	}
	return dst
}

// DecodePacket parses a packet produced by AppendPacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	count := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+4*count {
		return Packet{}, fmt.Errorf("packet length %d does not match %d heights", len(b), count)
	}
	p.Heights = make([]float32, count)
	for i := range p.Heights {
		off := HeaderSize + 4*i
		p.Heights[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off : off+4]))
	}
	return p, nil
}
