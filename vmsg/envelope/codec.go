package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode produces the canonical byte form of an envelope:
//
//	1 byte: version tag
//	then, in fixed order, u32 big-endian length + bytes for
//	sender, receiver, header, ciphertext, signature.
func Encode(e Envelope) ([]byte, error) {
	if e.Version != Version {
		return nil, ErrVersionMismatch
	}
	if len(e.Ciphertext) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(e.Ciphertext))
	}

	buf := encodePrefix(e)
	writeField(buf, e.Ciphertext)
	writeField(buf, e.Signature)
	return buf.Bytes(), nil
}

// SigningBytes returns the exact input to the signature computation: the
// canonical encoding of everything before the signature field.
func SigningBytes(e Envelope) ([]byte, error) {
	if len(e.Ciphertext) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(e.Ciphertext))
	}
	buf := encodePrefix(e)
	writeField(buf, e.Ciphertext)
	return buf.Bytes(), nil
}

// AAD returns the addressing prefix (version, sender, receiver, header),
// bound into the authenticated cipher as additional data.
func AAD(e Envelope) []byte {
	return encodePrefix(e).Bytes()
}

func encodePrefix(e Envelope) *bytes.Buffer {
	buf := &bytes.Buffer{}
	buf.WriteByte(e.Version)
	writeField(buf, []byte(e.Sender))
	writeField(buf, []byte(e.Receiver))
	writeField(buf, e.Header)
	return buf
}

func writeField(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

// Decode parses canonical bytes back into an Envelope. The parser is
// strict: trailing bytes, truncated fields, oversized lengths and unknown
// version tags are all rejected, and no partial result is ever returned.
func Decode(data []byte) (Envelope, error) {
	if len(data) < 1 {
		return Envelope{}, ErrMalformed
	}
	if data[0] != Version {
		return Envelope{}, fmt.Errorf("%w: tag 0x%02x", ErrVersionMismatch, data[0])
	}
	rest := data[1:]

	sender, rest, err := readField(rest)
	if err != nil {
		return Envelope{}, err
	}
	receiver, rest, err := readField(rest)
	if err != nil {
		return Envelope{}, err
	}
	header, rest, err := readField(rest)
	if err != nil {
		return Envelope{}, err
	}
	ciphertext, rest, err := readField(rest)
	if err != nil {
		return Envelope{}, err
	}
	if len(ciphertext) > MaxPayload {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(ciphertext))
	}
	signature, rest, err := readField(rest)
	if err != nil {
		return Envelope{}, err
	}
	if len(signature) != SignatureSize {
		return Envelope{}, fmt.Errorf("%w: signature length %d", ErrMalformed, len(signature))
	}
	if len(rest) != 0 {
		return Envelope{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}

	return Envelope{
		Version:    data[0],
		Sender:     string(sender),
		Receiver:   string(receiver),
		Header:     header,
		Ciphertext: ciphertext,
		Signature:  signature,
	}, nil
}

func readField(data []byte) (field, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, ErrMalformed
	}
	n := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) < n {
		return nil, nil, ErrMalformed
	}
	field = append([]byte(nil), data[4:4+n]...)
	if len(field) == 0 {
		field = nil
	}
	return field, data[4+n:], nil
}
