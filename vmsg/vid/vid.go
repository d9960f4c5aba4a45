package vid

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/cloudflare/circl/hpke"
	"github.com/mr-tron/base58"
)

// EncryptionKeySize is the size of an X25519 encryption key.
const EncryptionKeySize = 32

// IDPrefix starts every self-certifying identifier produced by New.
const IDPrefix = "vid:key:"

var (
	ErrInvalidSigningKey    = errors.New("vid: invalid Ed25519 signing key")
	ErrInvalidEncryptionKey = errors.New("vid: invalid X25519 encryption key")
	ErrRevoked              = errors.New("vid: identity has been revoked")
)

// KEM is the key encapsulation mechanism whose keypairs identities carry.
var KEM = hpke.KEM_X25519_HKDF_SHA256

// Vid is the public record for a verified identifier: everything a peer
// needs to seal a message toward it and to verify messages from it.
type Vid struct {
	ID                  string
	Alias               string
	TransportAddress    string
	PublicSigningKey    ed25519.PublicKey
	PublicEncryptionKey []byte
	Verified            bool
	RefreshedAt         time.Time
}

// Identifier returns the identifier string.
func (v Vid) Identifier() string { return v.ID }

// Endpoint returns the transport address messages for this identifier go to.
func (v Vid) Endpoint() string { return v.TransportAddress }

// VerifyingKey returns the public key that checks this identifier's signatures.
func (v Vid) VerifyingKey() ed25519.PublicKey { return v.PublicSigningKey }

// EncryptionKey returns the public key messages to this identifier are sealed against.
func (v Vid) EncryptionKey() []byte { return v.PublicEncryptionKey }

// Validate checks that the record's key material is structurally sound.
func (v Vid) Validate() error {
	if len(v.PublicSigningKey) != ed25519.PublicKeySize {
		return ErrInvalidSigningKey
	}
	if len(v.PublicEncryptionKey) != EncryptionKeySize {
		return ErrInvalidEncryptionKey
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate shared key slices.
func (v Vid) Clone() Vid {
	v.PublicSigningKey = append(ed25519.PublicKey(nil), v.PublicSigningKey...)
	v.PublicEncryptionKey = append([]byte(nil), v.PublicEncryptionKey...)
	return v
}

// OwnedVid is an identity this process controls. The private halves stay
// unexported; they are reachable only through the Sender/Receiver methods
// the sealing engine consumes.
type OwnedVid struct {
	Vid
	sigKey ed25519.PrivateKey
	encKey []byte
}

// New generates a fresh identity bound to a transport address. The
// identifier is derived from the key material, so it is globally unique.
func New(alias, transportAddress string) (*OwnedVid, error) {
	sigPub, sigPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("vid: generate signing key: %w", err)
	}

	encPub, encPriv, err := KEM.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("vid: generate encryption key: %w", err)
	}
	encPubBytes, err := encPub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	encPrivBytes, err := encPriv.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &OwnedVid{
		Vid: Vid{
			ID:                  deriveID(sigPub, encPubBytes),
			Alias:               alias,
			TransportAddress:    transportAddress,
			PublicSigningKey:    sigPub,
			PublicEncryptionKey: encPubBytes,
			Verified:            true,
			RefreshedAt:         time.Now(),
		},
		sigKey: sigPriv,
		encKey: encPrivBytes,
	}, nil
}

func deriveID(sigPub ed25519.PublicKey, encPub []byte) string {
	sum := sha256.Sum256(append(append([]byte(nil), sigPub...), encPub...))
	return IDPrefix + base58.Encode(sum[:])
}

// SigningKey returns the private signing key, or nil after revocation.
func (o *OwnedVid) SigningKey() ed25519.PrivateKey { return o.sigKey }

// DecryptionKey returns the private decryption key, or nil after revocation.
func (o *OwnedVid) DecryptionKey() []byte { return o.encKey }

// Public returns the shareable record for this identity.
func (o *OwnedVid) Public() Vid { return o.Vid.Clone() }

// Revoked reports whether the private material has been wiped.
func (o *OwnedVid) Revoked() bool { return o.sigKey == nil && o.encKey == nil }

// revoke wipes the private key material in place. The public record stays
// usable so other parties can keep resolving the identifier.
func (o *OwnedVid) revoke() {
	zeroBytes(o.sigKey)
	zeroBytes(o.encKey)
	o.sigKey = nil
	o.encKey = nil
}

// String hides private material from logs and panics.
func (o *OwnedVid) String() string {
	return fmt.Sprintf("OwnedVid{%s <secret>}", o.ID)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
