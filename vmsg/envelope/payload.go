package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// PayloadKind tags what a sealed payload decrypts to.
type PayloadKind byte

const (
	// KindPlain marks final content for the addressee.
	KindPlain PayloadKind = 0x01
	// KindWrapped marks a further encoded envelope to forward.
	KindWrapped PayloadKind = 0x02
)

const flagCompressed byte = 1 << 0

// Payload is the decrypted content of an envelope, decoded lazily one
// layer at a time: a Wrapped body stays opaque until its addressee opens it.
type Payload struct {
	Kind PayloadKind
	Body []byte
}

// compressorPool reuses LZ4 writers to reduce allocations.
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// EncodePayload produces the pre-seal plaintext form:
//
//	1 byte kind, 1 byte flags, u32 big-endian body length + body.
//
// Plain bodies are LZ4-compressed when that shrinks them. Wrapped bodies
// are already ciphertext and never compress.
func EncodePayload(p Payload) ([]byte, error) {
	if p.Kind != KindPlain && p.Kind != KindWrapped {
		return nil, fmt.Errorf("%w: payload kind 0x%02x", ErrMalformed, byte(p.Kind))
	}
	if len(p.Body) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(p.Body))
	}

	body := p.Body
	var flags byte
	if p.Kind == KindPlain && len(body) > 0 {
		if compressed, err := compress(body); err == nil && len(compressed) < len(body) {
			body = compressed
			flags |= flagCompressed
		}
	}

	buf := &bytes.Buffer{}
	buf.WriteByte(byte(p.Kind))
	buf.WriteByte(flags)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(body)))
	buf.Write(l[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodePayload parses a decrypted payload, transparently decompressing.
func DecodePayload(data []byte) (Payload, error) {
	if len(data) < 6 {
		return Payload{}, ErrMalformed
	}
	kind := PayloadKind(data[0])
	if kind != KindPlain && kind != KindWrapped {
		return Payload{}, fmt.Errorf("%w: payload kind 0x%02x", ErrMalformed, data[0])
	}
	flags := data[1]
	n := binary.BigEndian.Uint32(data[2:6])
	if uint32(len(data)-6) != n {
		return Payload{}, ErrMalformed
	}

	body := append([]byte(nil), data[6:]...)
	if flags&flagCompressed != 0 {
		out, err := decompress(body)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(out) > MaxPayload {
			return Payload{}, fmt.Errorf("%w: %d bytes decompressed", ErrTooLarge, len(out))
		}
		body = out
	}
	if len(body) == 0 {
		body = nil
	}
	return Payload{Kind: kind, Body: body}, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)
	_ = w.Apply(lz4.CompressionLevelOption(lz4.Fast))
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, MaxPayload+1)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
