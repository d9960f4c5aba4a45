package vid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	snapshotVersion = 1
	snapshotSalt    = 16
)

var (
	ErrSnapshotInvalid = errors.New("vid: snapshot is invalid")
	ErrSnapshotAuth    = errors.New("vid: snapshot authentication failed")
)

// SnapshotRecord is the serializable form of one store entry. Key material
// is base58; private fields are present only for own identities.
type SnapshotRecord struct {
	ID                  string    `json:"id"`
	Alias               string    `json:"alias,omitempty"`
	TransportAddress    string    `json:"transportAddress"`
	PublicSigningKey    string    `json:"publicSigningKey"`
	PublicEncryptionKey string    `json:"publicEncryptionKey"`
	Verified            bool      `json:"verified"`
	RefreshedAt         time.Time `json:"refreshedAt"`
	SigningKey          string    `json:"signingKey,omitempty"`
	DecryptionKey       string    `json:"decryptionKey,omitempty"`
}

// Snapshot serializes every record in the store, private material included
// for own identities. Callers own the persistence format beyond this.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SnapshotRecord, 0, len(s.records))
	for _, rec := range s.records {
		sr := SnapshotRecord{
			ID:                  rec.vid.ID,
			Alias:               rec.vid.Alias,
			TransportAddress:    rec.vid.TransportAddress,
			PublicSigningKey:    base58.Encode(rec.vid.PublicSigningKey),
			PublicEncryptionKey: base58.Encode(rec.vid.PublicEncryptionKey),
			Verified:            rec.vid.Verified,
			RefreshedAt:         rec.vid.RefreshedAt,
		}
		if rec.owned != nil && !rec.owned.Revoked() {
			sr.SigningKey = base58.Encode(rec.owned.sigKey)
			sr.DecryptionKey = base58.Encode(rec.owned.encKey)
		}
		out = append(out, sr)
	}
	return json.Marshal(out)
}

// LoadSnapshot restores records produced by Snapshot into the store,
// overwriting entries with matching identifiers.
func (s *Store) LoadSnapshot(data []byte) error {
	var records []SnapshotRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return ErrSnapshotInvalid
	}

	for _, sr := range records {
		sigPub, err := base58.Decode(sr.PublicSigningKey)
		if err != nil {
			return ErrSnapshotInvalid
		}
		encPub, err := base58.Decode(sr.PublicEncryptionKey)
		if err != nil {
			return ErrSnapshotInvalid
		}
		v := Vid{
			ID:                  sr.ID,
			Alias:               sr.Alias,
			TransportAddress:    sr.TransportAddress,
			PublicSigningKey:    sigPub,
			PublicEncryptionKey: encPub,
			Verified:            sr.Verified,
			RefreshedAt:         sr.RefreshedAt,
		}
		if err := v.Validate(); err != nil {
			return err
		}

		if sr.SigningKey == "" {
			if err := s.Put(v); err != nil {
				return err
			}
			continue
		}

		sigPriv, err := base58.Decode(sr.SigningKey)
		if err != nil || len(sigPriv) != ed25519.PrivateKeySize {
			return ErrSnapshotInvalid
		}
		encPriv, err := base58.Decode(sr.DecryptionKey)
		if err != nil || len(encPriv) != EncryptionKeySize {
			return ErrSnapshotInvalid
		}
		owned := &OwnedVid{Vid: v, sigKey: sigPriv, encKey: encPriv}
		if err := s.AddOwned(owned); err != nil {
			return err
		}
	}
	return nil
}

type sealedSnapshot struct {
	Version    uint32 `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealedSnapshot is Snapshot under a passphrase: argon2id key derivation
// and XChaCha20-Poly1305. Private keys never hit disk in the clear.
func (s *Store) SealedSnapshot(passphrase string) ([]byte, error) {
	plain, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	salt := make([]byte, snapshotSalt)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := snapshotKey(passphrase, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(sealedSnapshot{
		Version:    snapshotVersion,
		KDF:        "argon2id",
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plain, nil),
	})
}

// LoadSealedSnapshot decrypts and restores a SealedSnapshot.
func (s *Store) LoadSealedSnapshot(passphrase string, data []byte) error {
	var env sealedSnapshot
	if err := json.Unmarshal(data, &env); err != nil {
		return ErrSnapshotInvalid
	}
	if env.Version != snapshotVersion || env.KDF != "argon2id" {
		return ErrSnapshotInvalid
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return ErrSnapshotInvalid
	}

	key := snapshotKey(passphrase, env.Salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return ErrSnapshotAuth
	}
	return s.LoadSnapshot(plain)
}

func snapshotKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 2, 64*1024, 1, chacha20poly1305.KeySize)
}
