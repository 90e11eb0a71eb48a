package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrUnterminatedString = errors.New("string is missing its zero terminator")
	ErrShortPayload       = errors.New("payload too short")
)

// WriteUint8 writes a single byte
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadUint8 reads a single byte
func ReadUint8(r io.Reader) (uint8, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteUint32 writes a 32-bit unsigned integer in little-endian
func WriteUint32(w io.Writer, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	_, err := w.Write(buf)
	return err
}

// ReadUint32 reads a 32-bit unsigned integer in little-endian
func ReadUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// WriteCString writes the raw string bytes followed by a single zero byte
func WriteCString(w io.Writer, s string) error {
	if len(s) > 0 {
		if _, err := w.Write([]byte(s)); err != nil {
			return err
		}
	}
	return WriteUint8(w, 0)
}

// ReadCString reads bytes up to (and consuming) the first zero byte
func ReadCString(r *bytes.Reader) (string, error) {
	var sb bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", ErrUnterminatedString
			}
			return "", err
		}
		if b == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}
