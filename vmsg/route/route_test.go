package route

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openvid/vmsg/vmsg/crypto"
	"github.com/openvid/vmsg/vmsg/envelope"
	"github.com/openvid/vmsg/vmsg/vid"
)

// chain generates n identities and registers every public record in a
// shared store so each hop can look up the sender.
func chain(t *testing.T, n int) (*vid.Store, []*vid.OwnedVid) {
	t.Helper()
	store := vid.NewStore()
	owned := make([]*vid.OwnedVid, n)
	for i := range owned {
		o, err := vid.New("", "mem://hop")
		if err != nil {
			t.Fatalf("vid.New: %v", err)
		}
		owned[i] = o
		if err := store.Put(o.Public()); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	return store, owned
}

func TestDirectDelivery(t *testing.T) {
	store, ids := chain(t, 2)
	sender, receiver := ids[0], ids[1]
	engine := NewEngine(store)

	env, err := Build(sender, nil, receiver.Public(), []byte("hdr"), []byte("direct"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out, err := engine.UnwrapOne(receiver, env)
	if err != nil {
		t.Fatalf("UnwrapOne: %v", err)
	}
	got, ok := out.(Delivered)
	if !ok {
		t.Fatalf("expected Delivered, got %T", out)
	}
	if got.Sender != sender.ID || !bytes.Equal(got.Payload, []byte("direct")) {
		t.Fatalf("delivery mismatch: %+v", got)
	}
	if !bytes.Equal(got.Header, []byte("hdr")) {
		t.Fatalf("header mismatch")
	}
}

func TestMultiHopPeelsOneLayerPerHop(t *testing.T) {
	for _, hops := range []int{1, 2, 3} {
		store, ids := chain(t, hops+2)
		sender := ids[0]
		relays := ids[1 : 1+hops]
		final := ids[len(ids)-1]
		engine := NewEngine(store)

		relayVids := make([]vid.Vid, len(relays))
		for i, r := range relays {
			relayVids[i] = r.Public()
		}

		env, err := Build(sender, relayVids, final.Public(), []byte("hdr"), []byte("routed"))
		if err != nil {
			t.Fatalf("%d hops: Build: %v", hops, err)
		}
		if env.Receiver != relays[0].ID {
			t.Fatalf("%d hops: outermost layer addressed to %s", hops, env.Receiver)
		}

		forwards := 0
		for _, relay := range relays {
			out, err := engine.UnwrapOne(relay, env)
			if err != nil {
				t.Fatalf("%d hops: UnwrapOne at relay %d: %v", hops, forwards, err)
			}
			fwd, ok := out.(Forward)
			if !ok {
				t.Fatalf("%d hops: relay %d got %T, not Forward", hops, forwards, out)
			}
			forwards++

			env, err = envelope.Decode(fwd.Inner)
			if err != nil {
				t.Fatalf("%d hops: inner bytes do not decode: %v", hops, err)
			}
			if env.Receiver != fwd.NextHop {
				t.Fatalf("%d hops: NextHop %s disagrees with inner receiver %s", hops, fwd.NextHop, env.Receiver)
			}
		}
		if forwards != hops {
			t.Fatalf("expected %d forwards, got %d", hops, forwards)
		}

		out, err := engine.UnwrapOne(final, env)
		if err != nil {
			t.Fatalf("%d hops: final UnwrapOne: %v", hops, err)
		}
		got, ok := out.(Delivered)
		if !ok {
			t.Fatalf("%d hops: final hop got %T, not Delivered", hops, out)
		}
		if !bytes.Equal(got.Payload, []byte("routed")) || !bytes.Equal(got.Header, []byte("hdr")) {
			t.Fatalf("%d hops: final content mismatch", hops)
		}
	}
}

func TestHopIsolation(t *testing.T) {
	store, ids := chain(t, 4)
	sender, relay1, relay2, final := ids[0], ids[1], ids[2], ids[3]
	engine := NewEngine(store)

	env, err := Build(sender, []vid.Vid{relay1.Public(), relay2.Public()}, final.Public(), []byte("secret header"), []byte("secret payload"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out, err := engine.UnwrapOne(relay1, env)
	if err != nil {
		t.Fatalf("UnwrapOne: %v", err)
	}
	fwd := out.(Forward)

	// The first relay sees only the next hop, never the final receiver.
	if fwd.NextHop != relay2.ID {
		t.Fatalf("relay1 learned next hop %s, want %s", fwd.NextHop, relay2.ID)
	}
	if bytes.Contains(fwd.Inner, []byte("secret payload")) {
		t.Fatalf("inner bytes expose the payload")
	}
	if bytes.Contains(fwd.Inner, []byte("secret header")) {
		t.Fatalf("inner bytes expose the header")
	}

	// A wrong hop cannot open the layer addressed to another relay.
	if _, err := engine.UnwrapOne(final, env); err == nil {
		t.Fatalf("final receiver opened a layer meant for relay1")
	}

	// The relay cannot peel a second layer with its own keys.
	inner, err := envelope.Decode(fwd.Inner)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := engine.UnwrapOne(relay1, inner); err == nil {
		t.Fatalf("relay1 peeled a second layer")
	}
}

func TestBuildRejectsAdjacentRepeat(t *testing.T) {
	_, ids := chain(t, 3)
	sender, relay, final := ids[0], ids[1], ids[2]

	_, err := Build(sender, []vid.Vid{relay.Public(), relay.Public()}, final.Public(), nil, []byte("x"))
	if !errors.Is(err, ErrLoopDetected) {
		t.Fatalf("expected ErrLoopDetected, got %v", err)
	}

	_, err = Build(sender, []vid.Vid{relay.Public(), final.Public()}, final.Public(), nil, []byte("x"))
	if !errors.Is(err, ErrLoopDetected) {
		t.Fatalf("hop adjacent to final: expected ErrLoopDetected, got %v", err)
	}
}

func TestBuildAllowsNonAdjacentRevisit(t *testing.T) {
	store, ids := chain(t, 3)
	sender, relay, final := ids[0], ids[1], ids[2]
	engine := NewEngine(store)

	// relay, final's own relay again later is fine as long as no two
	// adjacent layers share an identifier.
	env, err := Build(sender, []vid.Vid{relay.Public(), final.Public(), relay.Public()}, final.Public(), nil, []byte("x"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := engine.UnwrapOne(relay, env); err != nil {
		t.Fatalf("UnwrapOne: %v", err)
	}
}

func TestBuildRejectsUnusableRoute(t *testing.T) {
	_, ids := chain(t, 2)
	sender, final := ids[0], ids[1]

	noAddr := final.Public()
	noAddr.TransportAddress = ""
	if _, err := Build(sender, nil, noAddr, nil, []byte("x")); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}

	badFirst := final.Public()
	badFirst.TransportAddress = ""
	if _, err := Build(sender, []vid.Vid{badFirst}, final.Public(), nil, []byte("x")); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("unusable first hop: expected ErrNoRoute, got %v", err)
	}
}

func TestUnwrapUnknownSender(t *testing.T) {
	_, ids := chain(t, 2)
	sender, receiver := ids[0], ids[1]

	env, err := Build(sender, nil, receiver.Public(), nil, []byte("x"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	empty := NewEngine(vid.NewStore())
	if _, err := empty.UnwrapOne(receiver, env); !errors.Is(err, crypto.ErrUnknownSender) {
		t.Fatalf("expected ErrUnknownSender, got %v", err)
	}
}
