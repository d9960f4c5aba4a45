package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openvid/vmsg/vmsg/envelope"
	"github.com/openvid/vmsg/vmsg/vid"
)

func twoParties(t *testing.T) (*vid.OwnedVid, *vid.OwnedVid) {
	t.Helper()
	marlon, err := vid.New("marlon", "mem://marlon")
	if err != nil {
		t.Fatalf("vid.New: %v", err)
	}
	marc, err := vid.New("marc", "mem://marc")
	if err != nil {
		t.Fatalf("vid.New: %v", err)
	}
	return marlon, marc
}

func TestSealOpenRoundTrip(t *testing.T) {
	marlon, marc := twoParties(t)

	header := []byte("{}")
	body := []byte("Oh hello Marc")

	env, err := Seal(marlon, marc.Public(), header, envelope.Payload{Kind: envelope.KindPlain, Body: body})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if env.Sender != marlon.ID || env.Receiver != marc.ID {
		t.Fatalf("addressing wrong: %s -> %s", env.Sender, env.Receiver)
	}

	gotHeader, payload, err := Open(marc, marlon.Public(), env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(gotHeader, header) {
		t.Fatalf("header mismatch")
	}
	if payload.Kind != envelope.KindPlain || !bytes.Equal(payload.Body, body) {
		t.Fatalf("payload mismatch")
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	marlon, marc := twoParties(t)
	p := envelope.Payload{Kind: envelope.KindPlain, Body: []byte("same message")}

	a, err := Seal(marlon, marc.Public(), nil, p)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal(marlon, marc.Public(), nil, p)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatalf("two seals produced identical ciphertext")
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	marlon, marc := twoParties(t)
	carol, err := vid.New("carol", "mem://carol")
	if err != nil {
		t.Fatalf("vid.New: %v", err)
	}

	env, err := Seal(marlon, marc.Public(), nil, envelope.Payload{Kind: envelope.KindPlain, Body: []byte("for marc")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, _, err := Open(carol, marlon.Public(), env); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	marlon, marc := twoParties(t)

	env, err := Seal(marlon, marc.Public(), nil, envelope.Payload{Kind: envelope.KindPlain, Body: []byte("hi")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env.Signature[len(env.Signature)-1] ^= 0x01

	if _, _, err := Open(marc, marlon.Public(), env); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestTamperedCiphertextNeverOpens(t *testing.T) {
	marlon, marc := twoParties(t)

	env, err := Seal(marlon, marc.Public(), nil, envelope.Payload{Kind: envelope.KindPlain, Body: []byte("payload")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	for _, pos := range []int{0, len(env.Ciphertext) / 2, len(env.Ciphertext) - 1} {
		tampered := env
		tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
		tampered.Ciphertext[pos] ^= 0x80

		_, _, err := Open(marc, marlon.Public(), tampered)
		if !errors.Is(err, ErrInvalidSignature) && !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("bit flip at %d: expected signature or decryption failure, got %v", pos, err)
		}
	}
}

func TestOpenRejectsWrongAddressing(t *testing.T) {
	marlon, marc := twoParties(t)

	env, err := Seal(marlon, marc.Public(), []byte("h"), envelope.Payload{Kind: envelope.KindPlain, Body: []byte("x")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// Swapping the receiver breaks the signed canonical bytes.
	env.Receiver = "vid:key:mallory"

	if _, _, err := Open(marc, marlon.Public(), env); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSealFailsAfterRevocation(t *testing.T) {
	store := vid.NewStore()
	pub, err := store.CreateIdentity("gone", "mem://gone")
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	owned, err := store.Owned(pub.ID)
	if err != nil {
		t.Fatalf("Owned: %v", err)
	}
	if err := store.Revoke(pub.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, marc := twoParties(t)
	_, err = Seal(owned, marc.Public(), nil, envelope.Payload{Kind: envelope.KindPlain, Body: []byte("x")})
	if !errors.Is(err, ErrNoPrivateKey) {
		t.Fatalf("expected ErrNoPrivateKey, got %v", err)
	}
}
