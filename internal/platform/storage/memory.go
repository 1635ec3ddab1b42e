package storage

import (
	"context"
	"sync"
)

// MemoryDocuments is an in-process Documents store.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]Document)}
}

func (m *MemoryDocuments) Name() string { return "memory" }

func (m *MemoryDocuments) All(ctx context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs))
	for id, d := range m.docs {
		c := copyDocument(d)
		c["id"] = id
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryDocuments) Insert(ctx context.Context, id string, doc Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; ok {
		return "", ErrDocumentExists
	}
	m.docs[id] = withoutID(doc)
	return id, nil
}

func (m *MemoryDocuments) Replace(ctx context.Context, id string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	m.docs[id] = withoutID(doc)
	return nil
}

func (m *MemoryDocuments) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryDocuments) Ping(ctx context.Context) error { return nil }

func copyDocument(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// MemorySnapshot is an in-process Snapshot.
type MemorySnapshot struct {
	mu   sync.Mutex
	data []byte
}

// NewMemorySnapshot starts with initial, which may be nil.
func NewMemorySnapshot(initial []byte) *MemorySnapshot {
	return &MemorySnapshot{data: initial}
}

func (m *MemorySnapshot) Name() string { return "memory" }

func (m *MemorySnapshot) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemorySnapshot) Update(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur []byte
	if m.data != nil {
		cur = append([]byte(nil), m.data...)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	m.data = next
	return nil
}

func (m *MemorySnapshot) Ping(ctx context.Context) error { return nil }
