package vmsg

import (
	"context"
	"fmt"
	"time"

	"github.com/openvid/vmsg/vmsg/crypto"
	"github.com/openvid/vmsg/vmsg/directory"
	"github.com/openvid/vmsg/vmsg/envelope"
	"github.com/openvid/vmsg/vmsg/route"
	"github.com/openvid/vmsg/vmsg/transport"
	"github.com/openvid/vmsg/vmsg/vid"
)

// Options configures a Node. Directory and Transport are required
// collaborators; everything else has defaults.
type Options struct {
	Directory directory.Directory
	Transport transport.Adapter
	// ResolveTTL is the resolver cache freshness window.
	ResolveTTL time.Duration
	// Retry overrides the default send retry policy.
	Retry *transport.RetryPolicy
}

// Node combines the identifier store, resolver, sealing engine, routing
// engine and transport adapter into one messaging endpoint. All methods
// are safe for concurrent use.
type Node struct {
	store     *vid.Store
	resolver  *directory.Resolver
	engine    *route.Engine
	transport transport.Adapter
}

func NewNode(opts Options) *Node {
	store := vid.NewStore()

	adapter := opts.Transport
	policy := transport.DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	adapter = transport.WithRetry(adapter, policy)

	return &Node{
		store:     store,
		resolver:  directory.NewResolver(opts.Directory, store, opts.ResolveTTL),
		engine:    route.NewEngine(store),
		transport: adapter,
	}
}

// Store exposes the underlying identifier store, e.g. for snapshots.
func (n *Node) Store() *vid.Store { return n.store }

// CreateIdentity generates a fresh own identity under a local alias and
// returns the public record to publish in a directory.
func (n *Node) CreateIdentity(alias, transportAddress string) (vid.Vid, error) {
	return n.store.CreateIdentity(alias, transportAddress)
}

// Resolve returns a usable record for id, fetching through the directory
// when the cache is cold or expired.
func (n *Node) Resolve(ctx context.Context, id string, opts ...directory.ResolveOption) (vid.Vid, error) {
	return n.resolver.Resolve(ctx, id, opts...)
}

// Verify re-fetches id and cross-checks the cached keys, marking the
// record verified on success.
func (n *Node) Verify(ctx context.Context, id string) (vid.Vid, error) {
	return n.resolver.Verify(ctx, id)
}

// Revoke wipes the private material of an own identity.
func (n *Node) Revoke(id string) error {
	return n.store.Revoke(id)
}

// Send seals payload for receiver and pushes the envelope to its
// transport address. Hops, when given, route the message through
// intermediaries; each hop can only unwrap its own layer.
func (n *Node) Send(ctx context.Context, sender, receiver string, header, payload []byte, hops ...string) error {
	owned, err := n.store.Owned(sender)
	if err != nil {
		return err
	}

	hopVids := make([]vid.Vid, 0, len(hops))
	for _, hop := range hops {
		v, err := n.resolver.Resolve(ctx, hop)
		if err != nil {
			return fmt.Errorf("%w: hop %s: %w", route.ErrNoRoute, hop, err)
		}
		hopVids = append(hopVids, v)
	}
	final, err := n.resolver.Resolve(ctx, receiver)
	if err != nil {
		return fmt.Errorf("%w: receiver %s: %w", route.ErrNoRoute, receiver, err)
	}

	env, err := route.Build(owned, hopVids, final, header, payload)
	if err != nil {
		return err
	}
	message, err := envelope.Encode(env)
	if err != nil {
		return err
	}

	target := final
	if len(hopVids) > 0 {
		target = hopVids[0]
	}
	return n.transport.Send(ctx, target.Endpoint(), message)
}

// Received is one result from a receive stream: an unwrap outcome or the
// error that produced none.
type Received struct {
	Outcome route.Outcome
	Err     error
}

// Receive listens on the identity's transport address and emits one
// Received per inbound envelope. The channel closes when ctx is cancelled
// or the listener closes; decode and unwrap failures surface as Err
// entries without stopping the stream.
func (n *Node) Receive(ctx context.Context, id string) (<-chan Received, error) {
	owned, err := n.store.Owned(id)
	if err != nil {
		return nil, err
	}

	inbound, err := n.transport.Listen(ctx, owned.Endpoint())
	if err != nil {
		return nil, err
	}

	out := make(chan Received, 16)
	go func() {
		defer close(out)
		for message := range inbound.Messages() {
			select {
			case out <- n.openOne(owned, message):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (n *Node) openOne(owned *vid.OwnedVid, message []byte) Received {
	env, err := envelope.Decode(message)
	if err != nil {
		return Received{Err: err}
	}
	if env.Receiver != owned.ID {
		return Received{Err: fmt.Errorf("%w: %s", crypto.ErrUnexpectedRecipient, env.Receiver)}
	}
	outcome, err := n.engine.UnwrapOne(owned, env)
	if err != nil {
		return Received{Err: err}
	}
	return Received{Outcome: outcome}
}

// ForwardOne relays a still-sealed inner envelope toward its next hop.
// Relays call this for every Forward outcome they receive.
func (n *Node) ForwardOne(ctx context.Context, fwd route.Forward) error {
	next, err := n.resolver.Resolve(ctx, fwd.NextHop)
	if err != nil {
		return fmt.Errorf("%w: next hop %s: %w", route.ErrNoRoute, fwd.NextHop, err)
	}
	return n.transport.Send(ctx, next.Endpoint(), fwd.Inner)
}
