// Package crypto implements the sealing engine: HPKE encryption
// (X25519-HKDF-SHA256, HKDF-SHA256, ChaCha20-Poly1305) under an Ed25519
// signature over the canonical envelope bytes.
//
// Opening always verifies the signature before any decryption is attempted.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"

	"github.com/openvid/vmsg/vmsg/envelope"
)

var (
	ErrUnknownSender       = errors.New("crypto: sender identifier is not resolvable")
	ErrUnexpectedRecipient = errors.New("crypto: envelope is not addressed to this identity")
	ErrInvalidSignature    = errors.New("crypto: envelope signature verification failed")
	ErrDecryptionFailed    = errors.New("crypto: envelope decryption failed")
	ErrNoPrivateKey        = errors.New("crypto: private key material unavailable")
)

var (
	kemID  = hpke.KEM_X25519_HKDF_SHA256
	kdfID  = hpke.KDF_HKDF_SHA256
	aeadID = hpke.AEAD_ChaCha20Poly1305
)

const sealDomain = "vmsg/seal/v1/"

// Identity is the public material needed to address and verify a party.
type Identity interface {
	Identifier() string
	VerifyingKey() ed25519.PublicKey
	EncryptionKey() []byte
}

// Receiver is an identity whose private decryption key is available.
type Receiver interface {
	Identity
	DecryptionKey() []byte
}

// Sender is an identity whose private signing key is available.
type Sender interface {
	Identity
	SigningKey() ed25519.PrivateKey
}

func sealInfo(sender, receiver string) []byte {
	info := make([]byte, 0, len(sealDomain)+len(sender)+1+len(receiver))
	info = append(info, sealDomain...)
	info = append(info, sender...)
	info = append(info, 0x00)
	info = append(info, receiver...)
	return info
}

// Seal encrypts a payload for the receiver and signs the canonical envelope
// bytes with the sender's key. Every call draws fresh encapsulation
// randomness, so sealing the same payload twice never repeats ciphertext.
func Seal(sender Sender, receiver Identity, header []byte, payload envelope.Payload) (envelope.Envelope, error) {
	sigKey := sender.SigningKey()
	if len(sigKey) != ed25519.PrivateKeySize {
		return envelope.Envelope{}, fmt.Errorf("%w: %s", ErrNoPrivateKey, sender.Identifier())
	}

	plaintext, err := envelope.EncodePayload(payload)
	if err != nil {
		return envelope.Envelope{}, err
	}

	env := envelope.Envelope{
		Version:  envelope.Version,
		Sender:   sender.Identifier(),
		Receiver: receiver.Identifier(),
		Header:   append([]byte(nil), header...),
	}

	pub, err := kemID.Scheme().UnmarshalBinaryPublicKey(receiver.EncryptionKey())
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("crypto: receiver encryption key: %w", err)
	}
	hpkeSender, err := hpke.NewSuite(kemID, kdfID, aeadID).
		NewSender(pub, sealInfo(env.Sender, env.Receiver))
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("crypto: hpke setup: %w", err)
	}
	enc, sealer, err := hpkeSender.Setup(rand.Reader)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("crypto: hpke setup: %w", err)
	}
	ct, err := sealer.Seal(plaintext, envelope.AAD(env))
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("crypto: hpke seal: %w", err)
	}
	env.Ciphertext = append(enc, ct...)

	signing, err := envelope.SigningBytes(env)
	if err != nil {
		return envelope.Envelope{}, err
	}
	env.Signature = ed25519.Sign(sigKey, signing)
	return env, nil
}

// Open verifies and decrypts an envelope addressed to the receiver.
//
// Checks run in a fixed fail-fast order: signature over the canonical bytes
// first, decapsulation and the authenticated-cipher tag last. No partial
// plaintext is ever returned.
func Open(receiver Receiver, sender Identity, env envelope.Envelope) (header []byte, payload envelope.Payload, err error) {
	verifying := sender.VerifyingKey()
	if len(verifying) != ed25519.PublicKeySize {
		return nil, envelope.Payload{}, fmt.Errorf("%w: %s", ErrUnknownSender, env.Sender)
	}

	signing, err := envelope.SigningBytes(env)
	if err != nil {
		return nil, envelope.Payload{}, err
	}
	if !ed25519.Verify(verifying, signing, env.Signature) {
		return nil, envelope.Payload{}, fmt.Errorf("%w: from %s", ErrInvalidSignature, env.Sender)
	}

	decKey := receiver.DecryptionKey()
	if len(decKey) == 0 {
		return nil, envelope.Payload{}, fmt.Errorf("%w: %s", ErrNoPrivateKey, receiver.Identifier())
	}

	scheme := kemID.Scheme()
	encSize := scheme.CiphertextSize()
	if len(env.Ciphertext) < encSize+aeadOverhead() {
		return nil, envelope.Payload{}, ErrDecryptionFailed
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(decKey)
	if err != nil {
		return nil, envelope.Payload{}, fmt.Errorf("%w: %s", ErrNoPrivateKey, receiver.Identifier())
	}

	hpkeReceiver, err := hpke.NewSuite(kemID, kdfID, aeadID).
		NewReceiver(priv, sealInfo(env.Sender, env.Receiver))
	if err != nil {
		return nil, envelope.Payload{}, ErrDecryptionFailed
	}
	opener, err := hpkeReceiver.Setup(env.Ciphertext[:encSize])
	if err != nil {
		return nil, envelope.Payload{}, ErrDecryptionFailed
	}
	plaintext, err := opener.Open(env.Ciphertext[encSize:], envelope.AAD(env))
	if err != nil {
		return nil, envelope.Payload{}, ErrDecryptionFailed
	}

	payload, err = envelope.DecodePayload(plaintext)
	if err != nil {
		return nil, envelope.Payload{}, err
	}
	return env.Header, payload, nil
}

func aeadOverhead() int {
	// ChaCha20-Poly1305 tag.
	return 16
}
