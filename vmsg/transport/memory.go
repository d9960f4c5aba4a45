package transport

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process adapter: addresses are arbitrary strings mapped
// to listener queues. It is useful for tests, examples and single-process
// relay setups.
type Memory struct {
	mu        sync.RWMutex
	listeners map[string]*memoryInbound
}

func NewMemory() *Memory {
	return &Memory{listeners: map[string]*memoryInbound{}}
}

type memoryInbound struct {
	owner   *Memory
	address string
	ch      chan []byte
	done    chan struct{}
	senders sync.WaitGroup
	once    sync.Once
}

func (i *memoryInbound) Messages() <-chan []byte { return i.ch }

// Close unbinds the address and unblocks pending senders. The message
// channel closes once the last in-flight send has finished, so receivers
// drain whatever was already queued.
func (i *memoryInbound) Close() error {
	i.once.Do(func() {
		i.owner.mu.Lock()
		if i.owner.listeners[i.address] == i {
			delete(i.owner.listeners, i.address)
		}
		i.owner.mu.Unlock()
		close(i.done)
		go func() {
			i.senders.Wait()
			close(i.ch)
		}()
	})
	return nil
}

func (m *Memory) Send(ctx context.Context, address string, message []byte) error {
	// Registering as a sender under the read lock keeps Close from
	// closing the channel while this send is still in flight.
	m.mu.RLock()
	inbound, ok := m.listeners[address]
	if ok {
		inbound.senders.Add(1)
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnreachable, address)
	}
	defer inbound.senders.Done()

	msg := append([]byte(nil), message...)
	select {
	case inbound.ch <- msg:
		return nil
	case <-inbound.done:
		return fmt.Errorf("%w: %s", ErrConnectionClosed, address)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrTimeout, address)
	}
}

func (m *Memory) Listen(ctx context.Context, address string) (Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.listeners[address]; exists {
		return nil, fmt.Errorf("transport: address already bound: %s", address)
	}
	inbound := &memoryInbound{
		owner:   m,
		address: address,
		ch:      make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	m.listeners[address] = inbound

	go func() {
		<-ctx.Done()
		_ = inbound.Close()
	}()
	return inbound, nil
}
