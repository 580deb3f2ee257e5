// Package frame implements the length-prefixed framing used on relay connections.
//
// A frame is a 4-byte big-endian length followed by that many payload bytes.
// A zero-length frame tells the peer that the sender is closing.
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// MaxPayload bounds a single payload. Larger length prefixes are rejected.
	MaxPayload = 64 * 1024
)

var (
	// ErrProtocol reports a length prefix that is negative or exceeds MaxPayload.
	ErrProtocol = errors.New("frame: protocol error")
	// ErrConnectionClosed reports a stream that ended in the middle of a frame.
	ErrConnectionClosed = errors.New("frame: connection closed")
)

// Encode prefixes payload with its length.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrProtocol, len(payload), MaxPayload)
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Write encodes payload and writes the whole frame with a single Write call.
func Write(w io.Writer, payload []byte) error {
	buf, err := Encode(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteClose sends the zero-length frame that signals a graceful close.
func WriteClose(w io.Writer) error {
	return Write(w, nil)
}

// Read blocks until one complete frame is available and returns its payload.
// A zero-length frame yields an empty payload and a nil error.
func Read(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, readErr("header", err)
	}

	n := int32(binary.BigEndian.Uint32(hdr[:]))
	switch {
	case n < 0:
		return nil, fmt.Errorf("%w: negative length %d", ErrProtocol, n)
	case n == 0:
		return nil, nil
	case n > MaxPayload:
		return nil, fmt.Errorf("%w: frame too large (%d bytes)", ErrProtocol, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, readErr("payload", err)
	}
	return payload, nil
}

func readErr(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s: %w", ErrConnectionClosed, part, err)
	}
	return fmt.Errorf("read frame %s: %w", part, err)
}

// Reader reassembles frames from a stream that may deliver them in arbitrary chunks.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r with a buffer sized for one header plus a typical payload.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// Next returns the next complete payload.
func (r *Reader) Next() ([]byte, error) {
	return Read(r.br)
}
