package transport

import (
	"errors"
	"io"

	"github.com/openlore/chatserver/pkg/protocol"
)

// MaxFrameSize is the maximum allowed frame size (64 KB). Chat packets
// are tiny; anything larger is a broken or hostile peer.
const MaxFrameSize = 64 * 1024

var (
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size (64 KB)")
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Stream framing for TCP links:
// [Length (uint32, little-endian)][Opcode (1 byte)][Payload (N bytes)]
// Length counts the opcode byte plus the payload.

// EncodeFrame writes one packet to the writer.
func EncodeFrame(w io.Writer, pkt *protocol.Packet) error {
	length := uint32(1 + len(pkt.Payload))
	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	if err := protocol.WriteUint32(w, length); err != nil {
		return err
	}
	if err := protocol.WriteUint8(w, uint8(pkt.Op)); err != nil {
		return err
	}
	if len(pkt.Payload) > 0 {
		_, err := w.Write(pkt.Payload)
		return err
	}
	return nil
}

// DecodeFrame reads one packet from the reader.
func DecodeFrame(r io.Reader) (*protocol.Packet, error) {
	length, err := protocol.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if length < 1 {
		return nil, ErrInvalidFrameLength
	}

	op, err := protocol.ReadUint8(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length-1)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &protocol.Packet{Op: protocol.Opcode(op), Payload: payload}, nil
}
