// Package route builds nested envelopes for multi-hop delivery and peels
// exactly one layer per hop on receipt.
//
// A relay that unwraps a layer learns only the next hop and the still
// sealed inner bytes: never the final content, the final receiver, or how
// many hops remain beyond one step.
package route

import (
	"errors"
	"fmt"

	"github.com/openvid/vmsg/vmsg/crypto"
	"github.com/openvid/vmsg/vmsg/envelope"
	"github.com/openvid/vmsg/vmsg/vid"
)

var (
	ErrNoRoute      = errors.New("route: no usable address on route")
	ErrLoopDetected = errors.New("route: identifier repeats adjacent to itself")
)

// Outcome is the result of unwrapping one layer: either Delivered or Forward.
type Outcome interface {
	outcome()
}

// Delivered carries final plaintext for the local identity.
type Delivered struct {
	Sender  string
	Header  []byte
	Payload []byte
}

// Forward carries a still-sealed inner envelope to pass to the next hop.
// Inner is the canonical encoding of that envelope, not examined further.
type Forward struct {
	NextHop string
	Inner   []byte
}

func (Delivered) outcome() {}
func (Forward) outcome()   {}

// KeySource supplies public records for senders and next hops.
// *vid.Store satisfies it.
type KeySource interface {
	Get(id string) (vid.Vid, error)
}

// Engine peels and builds routed envelopes against a key source.
type Engine struct {
	keys KeySource
}

func NewEngine(keys KeySource) *Engine {
	return &Engine{keys: keys}
}

// Build seals payload for the final receiver first, then wraps the result
// for each intermediate hop from last to first. The returned envelope is
// the outermost layer, addressed to the first hop (or straight to the
// final receiver when hops is empty).
//
// The header travels on the innermost layer only, so intermediaries never
// see it.
func Build(sender crypto.Sender, hops []vid.Vid, final vid.Vid, header, payload []byte) (envelope.Envelope, error) {
	if err := checkRoute(hops, final); err != nil {
		return envelope.Envelope{}, err
	}

	env, err := crypto.Seal(sender, final, header, envelope.Payload{
		Kind: envelope.KindPlain,
		Body: payload,
	})
	if err != nil {
		return envelope.Envelope{}, err
	}

	for i := len(hops) - 1; i >= 0; i-- {
		inner, err := envelope.Encode(env)
		if err != nil {
			return envelope.Envelope{}, err
		}
		env, err = crypto.Seal(sender, hops[i], nil, envelope.Payload{
			Kind: envelope.KindWrapped,
			Body: inner,
		})
		if err != nil {
			return envelope.Envelope{}, err
		}
	}
	return env, nil
}

// checkRoute rejects adjacent repeats and routes without a usable first
// address before any sealing happens.
func checkRoute(hops []vid.Vid, final vid.Vid) error {
	addressees := make([]vid.Vid, 0, len(hops)+1)
	addressees = append(addressees, hops...)
	addressees = append(addressees, final)

	for i := 1; i < len(addressees); i++ {
		if addressees[i].ID == addressees[i-1].ID {
			return fmt.Errorf("%w: %s", ErrLoopDetected, addressees[i].ID)
		}
	}

	usable := 0
	for _, a := range addressees {
		if a.Validate() == nil && a.Endpoint() != "" {
			usable++
		}
	}
	if usable == 0 {
		return ErrNoRoute
	}
	if first := addressees[0]; first.Validate() != nil || first.Endpoint() == "" {
		return fmt.Errorf("%w: first hop %s", ErrNoRoute, first.ID)
	}
	return nil
}

// UnwrapOne opens exactly the outer layer of env on behalf of receiver.
// A plain payload is Delivered; a wrapped payload yields a Forward naming
// the inner envelope's addressee as the next hop. The current hop never
// peels a second layer.
func (e *Engine) UnwrapOne(receiver crypto.Receiver, env envelope.Envelope) (Outcome, error) {
	senderVid, err := e.keys.Get(env.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", crypto.ErrUnknownSender, env.Sender)
	}

	header, payload, err := crypto.Open(receiver, senderVid, env)
	if err != nil {
		return nil, err
	}

	switch payload.Kind {
	case envelope.KindPlain:
		return Delivered{
			Sender:  env.Sender,
			Header:  header,
			Payload: payload.Body,
		}, nil
	case envelope.KindWrapped:
		inner, err := envelope.Decode(payload.Body)
		if err != nil {
			return nil, err
		}
		return Forward{
			NextHop: inner.Receiver,
			Inner:   payload.Body,
		}, nil
	default:
		return nil, envelope.ErrMalformed
	}
}
