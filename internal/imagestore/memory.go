package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// MemoryStore keeps images in process memory. Intended for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewMemoryStore creates an empty in-memory image store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]object)}
}

// Put stores a copy of the image data.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put image: %w", err)
	}
	if key == "" {
		return "", ErrInvalidKey
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = object{data: buf.Bytes(), contentType: contentType}
	m.mu.Unlock()

	return "memory://" + key, nil
}

// Delete removes an image.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()

	return nil
}

// Object returns the stored bytes and content type for key.
func (m *MemoryStore) Object(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}

// Driver reports DriverMemory.
func (m *MemoryStore) Driver() Driver { return DriverMemory }
