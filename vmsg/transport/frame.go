package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrame limits a single length-delimited frame. It leaves headroom over
// the envelope payload cap for addressing fields and nesting overhead.
const MaxFrame = 2 << 20

var ErrFrameTooLarge = errors.New("transport: frame too large")

// WriteFrame writes one length-delimited message:
//
//	4 bytes: length (big endian)
//	N bytes: message
func WriteFrame(w io.Writer, message []byte) error {
	if len(message) > MaxFrame {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(message))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(message)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(message) > 0 {
		if _, err := w.Write(message); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one length-delimited message.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrame {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	message := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, message); err != nil {
			return nil, err
		}
	}
	return message, nil
}
