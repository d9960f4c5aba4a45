package vid

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewIdentitiesAreDistinct(t *testing.T) {
	marlon, err := New("marlon", "mem://marlon")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	marc, err := New("marc", "mem://marc")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if marlon.ID == marc.ID {
		t.Fatalf("identifiers collide")
	}
	if !strings.HasPrefix(marlon.ID, IDPrefix) {
		t.Fatalf("unexpected identifier form: %s", marlon.ID)
	}
	if bytes.Equal(marlon.PublicSigningKey, marc.PublicSigningKey) {
		t.Fatalf("signing keys overlap")
	}
	if bytes.Equal(marlon.PublicEncryptionKey, marc.PublicEncryptionKey) {
		t.Fatalf("encryption keys overlap")
	}
	if err := marlon.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRevokeWipesPrivateMaterial(t *testing.T) {
	own, err := New("temp", "mem://temp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if own.Revoked() {
		t.Fatalf("fresh identity reports revoked")
	}

	own.revoke()

	if !own.Revoked() {
		t.Fatalf("identity not revoked")
	}
	if own.SigningKey() != nil || own.DecryptionKey() != nil {
		t.Fatalf("private keys still readable after revocation")
	}
	if err := own.Validate(); err != nil {
		t.Fatalf("public record should survive revocation: %v", err)
	}
}

func TestOwnedVidStringHidesKeys(t *testing.T) {
	own, err := New("quiet", "mem://quiet")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := own.String()
	if !strings.Contains(s, own.ID) {
		t.Fatalf("String should carry the identifier: %s", s)
	}
	if strings.Contains(s, string(own.sigKey)) {
		t.Fatalf("String leaks private material")
	}
}
