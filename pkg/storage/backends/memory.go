package backends

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/enmassa-dl/enmassa/pkg/storage"
)

// MemoryBackend keeps cache entries in process memory. Used by tests and
// dry runs where persisting metadata is unwanted.
type MemoryBackend struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryBackend creates a new in-memory storage backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
	}
}

// Init initializes the memory backend. Re-initialization resets the data.
func (m *MemoryBackend) Init(config map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// Save stores data in memory at the specified key
func (m *MemoryBackend) Save(ctx context.Context, key string, data io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dataCopy := make([]byte, len(dataBytes))
	copy(dataCopy, dataBytes)
	m.data[key] = dataCopy

	return nil
}

// Load retrieves data from memory for the given key
func (m *MemoryBackend) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	data, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, storage.ErrKeyNotFound
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	return io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Delete removes data from memory for the given key
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists {
		return storage.ErrKeyNotFound
	}

	delete(m.data, key)
	return nil
}

// Exists checks if data exists at the given key in memory
func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.data[key]
	return exists, nil
}

// List returns a list of keys with the given prefix
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.data {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close cleans up resources (clears memory)
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]byte)
	return nil
}

// Size returns the number of items stored
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
