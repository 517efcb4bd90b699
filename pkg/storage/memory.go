package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory is an in-process blob store used by tests and local tooling.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory constructs an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: map[string][]byte{}}
}

// Put stores the blob bytes under the normalized name.
func (m *Memory) Put(ctx context.Context, name string, reader io.Reader) (string, error) {
	ref, err := normalizeRef(name)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[ref] = data

	return ref, nil
}

// Get returns a reader over a copy of the stored bytes.
func (m *Memory) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	normalized, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.blobs[normalized]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete drops the blob if present.
func (m *Memory) Delete(ctx context.Context, ref string) error {
	normalized, err := normalizeRef(ref)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[normalized]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, normalized)

	return nil
}

// Len reports the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
