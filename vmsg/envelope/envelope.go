// Package envelope defines the canonical wire form of a sealed message.
//
// The encoding is deterministic: a fixed field order with explicit length
// prefixes and a leading version tag. Identical logical envelopes always
// produce identical bytes, which is what makes the signature stable.
package envelope

import (
	"bytes"
	"crypto/ed25519"
	"errors"
)

const (
	// Version is the only wire format tag this codec accepts.
	Version byte = 0x01

	// MaxPayload caps a single envelope's ciphertext.
	MaxPayload = 1 << 20 // 1 MiB

	// SignatureSize is the Ed25519 signature length.
	SignatureSize = ed25519.SignatureSize
)

var (
	ErrMalformed       = errors.New("envelope: malformed encoding")
	ErrVersionMismatch = errors.New("envelope: unsupported format version")
	ErrTooLarge        = errors.New("envelope: payload exceeds maximum size")
)

// Envelope is one sealed, signed unit addressed from Sender to Receiver.
// Header is authenticated but not encrypted. The Ciphertext of a routed
// message wraps a further encoded Envelope, peeled one layer per hop.
type Envelope struct {
	Version    byte
	Sender     string
	Receiver   string
	Header     []byte
	Ciphertext []byte
	Signature  []byte
}

// Equal reports deep equality of two envelopes.
func (e Envelope) Equal(other Envelope) bool {
	return e.Version == other.Version &&
		e.Sender == other.Sender &&
		e.Receiver == other.Receiver &&
		bytes.Equal(e.Header, other.Header) &&
		bytes.Equal(e.Ciphertext, other.Ciphertext) &&
		bytes.Equal(e.Signature, other.Signature)
}
