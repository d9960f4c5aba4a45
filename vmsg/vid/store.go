package vid

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrAliasInUse = errors.New("vid: alias already in use")
	ErrUnknownVid = errors.New("vid: unknown identifier")
	ErrNotOwned   = errors.New("vid: identifier is not an own identity")
)

// Store holds the identities this process controls and the public records
// of remote identifiers. Reads may run concurrently; writes take the lock.
// Records never expire out of the map; freshness is the resolver's concern.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	aliases map[string]string
}

type record struct {
	vid   Vid
	owned *OwnedVid
}

func NewStore() *Store {
	return &Store{
		records: map[string]*record{},
		aliases: map[string]string{},
	}
}

// CreateIdentity generates a fresh own identity under a local alias and
// returns its public record.
func (s *Store) CreateIdentity(alias, transportAddress string) (Vid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.aliases[alias]; used {
		return Vid{}, fmt.Errorf("%w: %q", ErrAliasInUse, alias)
	}

	owned, err := New(alias, transportAddress)
	if err != nil {
		return Vid{}, err
	}

	s.records[owned.ID] = &record{vid: owned.Vid, owned: owned}
	s.aliases[alias] = owned.ID
	return owned.Public(), nil
}

// AddOwned inserts an identity created elsewhere (e.g. loaded from a snapshot).
func (s *Store) AddOwned(owned *OwnedVid) error {
	if err := owned.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owned.Alias != "" {
		if id, used := s.aliases[owned.Alias]; used && id != owned.ID {
			return fmt.Errorf("%w: %q", ErrAliasInUse, owned.Alias)
		}
		s.aliases[owned.Alias] = owned.ID
	}
	s.records[owned.ID] = &record{vid: owned.Vid, owned: owned}
	return nil
}

// Put inserts or updates the public record for a remote identifier.
// An own identity keeps its private material across updates.
func (s *Store) Put(v Vid) error {
	if err := v.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v = v.Clone()
	if existing, ok := s.records[v.ID]; ok {
		existing.vid = v
		if existing.owned != nil {
			existing.owned.Vid = v
		}
		return nil
	}
	s.records[v.ID] = &record{vid: v}
	return nil
}

// Get returns the public record for an identifier.
func (s *Store) Get(id string) (Vid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Vid{}, fmt.Errorf("%w: %s", ErrUnknownVid, id)
	}
	return rec.vid.Clone(), nil
}

// ByAlias resolves a local alias to its public record.
func (s *Store) ByAlias(alias string) (Vid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.aliases[alias]
	if !ok {
		return Vid{}, fmt.Errorf("%w: alias %q", ErrUnknownVid, alias)
	}
	return s.records[id].vid.Clone(), nil
}

// Owned returns the full own identity, private material included. Only the
// sealing engine should consume the result.
func (s *Store) Owned(id string) (*OwnedVid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVid, id)
	}
	if rec.owned == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotOwned, id)
	}
	if rec.owned.Revoked() {
		return nil, fmt.Errorf("%w: %s", ErrRevoked, id)
	}
	return rec.owned, nil
}

// HasOwned reports whether id is a usable own identity.
func (s *Store) HasOwned(id string) bool {
	_, err := s.Owned(id)
	return err == nil
}

// Revoke wipes the private key material of an own identity. This is a
// local operation: the public record remains, and other parties resolving
// the identifier are unaffected.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVid, id)
	}
	if rec.owned == nil {
		return fmt.Errorf("%w: %s", ErrNotOwned, id)
	}
	rec.owned.revoke()
	return nil
}

// MarkVerified stamps a record as verified at the given time.
func (s *Store) MarkVerified(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVid, id)
	}
	rec.vid.Verified = true
	rec.vid.RefreshedAt = at
	if rec.owned != nil {
		rec.owned.Verified = true
		rec.owned.RefreshedAt = at
	}
	return nil
}

// List returns all known identifiers.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	return out
}
