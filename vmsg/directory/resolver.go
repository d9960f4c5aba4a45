package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/openvid/vmsg/vmsg/vid"
)

// DefaultTTL is how long a fetched record counts as fresh.
const DefaultTTL = 5 * time.Minute

// Resolver fetches identifier records through a Directory and caches them
// in a Store. Records stay in the Store indefinitely; a TTL cache tracks
// which of them are still fresh enough to return without a fetch.
type Resolver struct {
	dir   Directory
	store *vid.Store
	fresh *gocache.Cache
	ttl   time.Duration
}

func NewResolver(dir Directory, store *vid.Store, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		dir:   dir,
		store: store,
		fresh: gocache.New(ttl, time.Minute),
		ttl:   ttl,
	}
}

type resolveOptions struct {
	allowStale bool
}

// ResolveOption adjusts a single Resolve call.
type ResolveOption func(*resolveOptions)

// AllowStale accepts an expired cached record when the directory fetch
// fails. Without it, fetch failure propagates.
func AllowStale() ResolveOption {
	return func(o *resolveOptions) { o.allowStale = true }
}

// Resolve returns a usable record for id: the cached one while fresh,
// otherwise a validated fetch from the directory.
func (r *Resolver) Resolve(ctx context.Context, id string, opts ...ResolveOption) (vid.Vid, error) {
	var options resolveOptions
	for _, opt := range opts {
		opt(&options)
	}

	// Own identities are authoritative locally. A revoked one stays
	// unusable here even if a directory still lists it.
	owned, err := r.store.Owned(id)
	if err == nil {
		return owned.Public(), nil
	}
	if errors.Is(err, vid.ErrRevoked) {
		return vid.Vid{}, err
	}

	if _, fresh := r.fresh.Get(id); fresh {
		if v, err := r.store.Get(id); err == nil {
			return v, nil
		}
	}

	doc, err := r.dir.Lookup(ctx, id)
	if err != nil {
		err = mapLookupErr(ctx, id, err)
		if options.allowStale && !errors.Is(err, ErrNotFound) {
			if v, staleErr := r.store.Get(id); staleErr == nil {
				return v, nil
			}
		}
		return vid.Vid{}, err
	}

	v, err := validate(id, doc)
	if err != nil {
		return vid.Vid{}, err
	}
	v.RefreshedAt = time.Now()

	// A refresh updates address and timestamp; the verified mark survives
	// as long as the keys have not changed. Only Verify may grant it anew.
	if prior, priorErr := r.store.Get(id); priorErr == nil {
		if bytes.Equal(prior.PublicSigningKey, v.PublicSigningKey) &&
			bytes.Equal(prior.PublicEncryptionKey, v.PublicEncryptionKey) {
			v.Verified = prior.Verified
		}
		v.Alias = prior.Alias
	}

	if err := r.store.Put(v); err != nil {
		return vid.Vid{}, err
	}
	r.fresh.Set(id, struct{}{}, r.ttl)
	return v, nil
}

// Verify forces a fresh fetch and cross-checks it against the cached keys.
// A key change is reported as a mismatch, never silently accepted.
func (r *Resolver) Verify(ctx context.Context, id string) (vid.Vid, error) {
	doc, err := r.dir.Lookup(ctx, id)
	if err != nil {
		return vid.Vid{}, mapLookupErr(ctx, id, err)
	}

	v, err := validate(id, doc)
	if err != nil {
		return vid.Vid{}, err
	}

	if prior, priorErr := r.store.Get(id); priorErr == nil {
		if !bytes.Equal(prior.PublicSigningKey, v.PublicSigningKey) ||
			!bytes.Equal(prior.PublicEncryptionKey, v.PublicEncryptionKey) {
			return vid.Vid{}, fmt.Errorf("%w: %s", ErrVerificationMismatch, id)
		}
		v.Alias = prior.Alias
	}

	now := time.Now()
	v.Verified = true
	v.RefreshedAt = now
	if err := r.store.Put(v); err != nil {
		return vid.Vid{}, err
	}
	if err := r.store.MarkVerified(id, now); err != nil {
		return vid.Vid{}, err
	}
	r.fresh.Set(id, struct{}{}, r.ttl)
	return v, nil
}

func validate(id string, doc Document) (vid.Vid, error) {
	v, err := doc.Vid()
	if err != nil {
		return vid.Vid{}, fmt.Errorf("%w: %s", ErrUnverifiable, id)
	}
	if v.ID != id {
		return vid.Vid{}, fmt.Errorf("%w: document is for %s, requested %s", ErrUnverifiable, v.ID, id)
	}
	return v, nil
}

func mapLookupErr(ctx context.Context, id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, id)
	}
	return err
}
