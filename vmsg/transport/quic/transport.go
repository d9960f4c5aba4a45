// Package quic implements the transport adapter over QUIC. Each remote
// address gets one connection with a single long-lived stream, so frames
// sent to one address arrive in order. Frames are length-delimited encoded
// envelopes; the adapter never looks inside them.
package quic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	q "github.com/quic-go/quic-go"

	"github.com/openvid/vmsg/vmsg/transport"
)

// Adapter is a QUIC-backed transport.Adapter.
type Adapter struct {
	mu    sync.Mutex
	conns map[string]*outbound
}

func New() *Adapter {
	return &Adapter{conns: map[string]*outbound{}}
}

type outbound struct {
	mu     sync.Mutex
	conn   q.Connection
	stream q.Stream
}

func (a *Adapter) Send(ctx context.Context, address string, message []byte) error {
	ob, err := a.connect(ctx, address)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", transport.ErrTimeout, address)
		}
		return fmt.Errorf("%w: %s: %v", transport.ErrUnreachable, address, err)
	}

	ob.mu.Lock()
	err = transport.WriteFrame(ob.stream, message)
	ob.mu.Unlock()
	if err != nil {
		a.evict(address, ob)
		return fmt.Errorf("%w: %s: %v", transport.ErrConnectionClosed, address, err)
	}
	return nil
}

func (a *Adapter) connect(ctx context.Context, address string) (*outbound, error) {
	a.mu.Lock()
	if ob, ok := a.conns[address]; ok {
		a.mu.Unlock()
		return ob, nil
	}
	a.mu.Unlock()

	tlsConf, err := newClientTLSConfig()
	if err != nil {
		return nil, err
	}
	conn, err := q.DialAddr(ctx, address, tlsConf, &q.Config{})
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream")
		return nil, err
	}

	ob := &outbound{conn: conn, stream: stream}
	a.mu.Lock()
	if existing, ok := a.conns[address]; ok {
		// Lost the race; keep the first connection.
		a.mu.Unlock()
		_ = conn.CloseWithError(0, "duplicate")
		return existing, nil
	}
	a.conns[address] = ob
	a.mu.Unlock()
	return ob, nil
}

func (a *Adapter) evict(address string, ob *outbound) {
	a.mu.Lock()
	if a.conns[address] == ob {
		delete(a.conns, address)
	}
	a.mu.Unlock()
	_ = ob.conn.CloseWithError(0, "send failed")
}

// Close tears down all pooled connections.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for address, ob := range a.conns {
		_ = ob.conn.CloseWithError(0, "adapter closed")
		delete(a.conns, address)
	}
	return nil
}

func (a *Adapter) Listen(ctx context.Context, address string) (transport.Inbound, error) {
	tlsConf, err := newServerTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(address, tlsConf, &q.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", transport.ErrUnreachable, address, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	inbound := &quicInbound{
		ln:     ln,
		ch:     make(chan []byte, 16),
		cancel: cancel,
	}
	go inbound.acceptLoop(ctx)
	return inbound, nil
}

type quicInbound struct {
	ln     *q.Listener
	ch     chan []byte
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func (i *quicInbound) Messages() <-chan []byte { return i.ch }

// Addr returns the bound address, useful with ephemeral ports.
func (i *quicInbound) Addr() string { return i.ln.Addr().String() }

func (i *quicInbound) Close() error {
	err := i.ln.Close()
	i.cancel()
	i.once.Do(func() {
		go func() {
			i.wg.Wait()
			close(i.ch)
		}()
	})
	return err
}

func (i *quicInbound) acceptLoop(ctx context.Context) {
	for {
		conn, err := i.ln.Accept(ctx)
		if err != nil {
			_ = i.Close()
			return
		}
		i.wg.Add(1)
		go i.handleConn(ctx, conn)
	}
}

func (i *quicInbound) handleConn(ctx context.Context, conn q.Connection) {
	defer i.wg.Done()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		i.wg.Add(1)
		go i.readFrames(ctx, stream)
	}
}

func (i *quicInbound) readFrames(ctx context.Context, stream q.Stream) {
	defer i.wg.Done()
	for {
		message, err := transport.ReadFrame(stream)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				_ = stream.Close()
			}
			return
		}
		select {
		case i.ch <- message:
		case <-ctx.Done():
			return
		}
	}
}
