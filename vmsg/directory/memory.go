package directory

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory directory. It is useful for tests, examples and
// single-process deployments.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]Document{}}
}

// Announce publishes or replaces the document for an identifier.
func (m *Memory) Announce(doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
}

// Remove withdraws an identifier's document.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

func (m *Memory) Lookup(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}
