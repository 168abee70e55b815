package base

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// InterleavedFrameMagicByte is the first byte of an interleaved frame ('$').
	InterleavedFrameMagicByte = 0x24

	interleavedFrameHeaderSize = 4
	interleavedFrameMaxPayload = 0xFFFF
)

// InterleavedFrame is a binary block embedded in the RTSP control stream:
// '$', a channel number and a 16-bit big-endian length, then the payload.
// Even channels carry RTP, odd channels carry RTCP.
type InterleavedFrame struct {
	Channel int
	Payload []byte
}

// Unmarshal decodes an interleaved frame.
func (f *InterleavedFrame) Unmarshal(br *bufio.Reader) error {
	var hdr [interleavedFrameHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return err
	}

	if hdr[0] != InterleavedFrameMagicByte {
		return fmt.Errorf("invalid magic byte (0x%.2x)", hdr[0])
	}

	f.Channel = int(hdr[1])
	f.Payload = make([]byte, binary.BigEndian.Uint16(hdr[2:]))

	_, err := io.ReadFull(br, f.Payload)
	return err
}

// Marshal encodes an interleaved frame.
func (f InterleavedFrame) Marshal() ([]byte, error) {
	if len(f.Payload) > interleavedFrameMaxPayload {
		return nil, fmt.Errorf("payload size exceeds %d", interleavedFrameMaxPayload)
	}

	buf := make([]byte, 0, interleavedFrameHeaderSize+len(f.Payload))
	buf = append(buf, InterleavedFrameMagicByte, byte(f.Channel))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Payload)))
	return append(buf, f.Payload...), nil
}
