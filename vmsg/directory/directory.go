// Package directory resolves identifier strings to public key material and
// transport addresses. The lookup backend is an injected interface; this
// package supplies an in-memory directory for tests and embedding, an
// HTTP(S) client, and the caching Resolver the rest of the system uses.
package directory

import (
	"context"
	"errors"

	"github.com/mr-tron/base58"

	"github.com/openvid/vmsg/vmsg/vid"
)

var (
	ErrNotFound             = errors.New("directory: identifier not found")
	ErrUnverifiable         = errors.New("directory: fetched material failed structural checks")
	ErrVerificationMismatch = errors.New("directory: keys changed since last verification")
	ErrTimeout              = errors.New("directory: lookup timed out")
)

// Document is the structured result of a directory lookup. Keys are base58.
type Document struct {
	ID                  string `json:"id"`
	TransportAddress    string `json:"transportAddress"`
	PublicSigningKey    string `json:"publicSigningKey"`
	PublicEncryptionKey string `json:"publicEncryptionKey"`
}

// Directory is the external lookup backend.
type Directory interface {
	Lookup(ctx context.Context, id string) (Document, error)
}

// DocumentFor builds the publishable document for a record.
func DocumentFor(v vid.Vid) Document {
	return Document{
		ID:                  v.ID,
		TransportAddress:    v.TransportAddress,
		PublicSigningKey:    base58.Encode(v.PublicSigningKey),
		PublicEncryptionKey: base58.Encode(v.PublicEncryptionKey),
	}
}

// Vid validates a fetched document and converts it into a usable record.
func (d Document) Vid() (vid.Vid, error) {
	if d.ID == "" || d.TransportAddress == "" {
		return vid.Vid{}, ErrUnverifiable
	}
	sigKey, err := base58.Decode(d.PublicSigningKey)
	if err != nil {
		return vid.Vid{}, ErrUnverifiable
	}
	encKey, err := base58.Decode(d.PublicEncryptionKey)
	if err != nil {
		return vid.Vid{}, ErrUnverifiable
	}
	v := vid.Vid{
		ID:                  d.ID,
		TransportAddress:    d.TransportAddress,
		PublicSigningKey:    sigKey,
		PublicEncryptionKey: encKey,
	}
	if err := v.Validate(); err != nil {
		return vid.Vid{}, ErrUnverifiable
	}
	return v, nil
}
