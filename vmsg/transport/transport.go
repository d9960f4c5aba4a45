// Package transport moves opaque envelope bytes between parties. The core
// only needs the Adapter contract; implementations live in subpackages
// (QUIC) or in-process (Memory). Retry behavior is a separate policy
// wrapper so it can change without touching protocol logic.
package transport

import (
	"context"
	"errors"
)

var (
	ErrUnreachable      = errors.New("transport: address unreachable")
	ErrTimeout          = errors.New("transport: operation timed out")
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// Inbound is the lazy sequence of received messages for one listener.
// The channel closes when the listener closes; a fresh listener restarts
// the sequence.
type Inbound interface {
	Messages() <-chan []byte
	Close() error
}

// Adapter sends single framed messages and produces inbound sequences.
// Each message is one encoded envelope; the adapter never inspects it.
type Adapter interface {
	Send(ctx context.Context, address string, message []byte) error
	Listen(ctx context.Context, address string) (Inbound, error)
}
