// Package storage provides the durable key-value layer backing the metadata
// cache. Backends range from the default local filesystem to redis, s3, and
// gcs for shared cache deployments.
package storage

import (
	"context"
	"io"
)

// Backend defines the interface for cache storage backends.
type Backend interface {
	// Init initializes the storage backend with configuration
	Init(config map[string]interface{}) error

	// Save stores data to the storage backend at the specified key/path
	Save(ctx context.Context, key string, data io.Reader) error

	// Load retrieves data from the storage backend for the given key/path
	Load(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes data from the storage backend for the given key/path
	Delete(ctx context.Context, key string) error

	// Exists checks if data exists at the given key/path in the storage backend
	Exists(ctx context.Context, key string) (bool, error)

	// List returns a list of keys with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Close cleans up any resources used by the storage backend
	Close() error
}

// Config holds common configuration options for storage backends.
type Config struct {
	// Type specifies the storage backend type (filesystem, memory, redis, s3, gcs)
	Type string `json:"type" yaml:"type"`

	// Config holds backend-specific configuration
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// Manager manages multiple storage backends and proxies the default one.
type Manager struct {
	backends    map[string]Backend
	defaultName string
}

// NewManager creates a new storage manager.
func NewManager() *Manager {
	return &Manager{
		backends: make(map[string]Backend),
	}
}

// Register registers a storage backend with a given name. The first
// registered backend becomes the default.
func (m *Manager) Register(name string, backend Backend) error {
	m.backends[name] = backend

	if m.defaultName == "" {
		m.defaultName = name
	}

	return nil
}

// SetDefault sets the default storage backend.
func (m *Manager) SetDefault(name string) error {
	if _, exists := m.backends[name]; !exists {
		return ErrBackendNotFound
	}
	m.defaultName = name
	return nil
}

// GetBackend returns a storage backend by name.
func (m *Manager) GetBackend(name string) (Backend, error) {
	backend, exists := m.backends[name]
	if !exists {
		return nil, ErrBackendNotFound
	}
	return backend, nil
}

// GetDefault returns the default storage backend.
func (m *Manager) GetDefault() (Backend, error) {
	if m.defaultName == "" {
		return nil, ErrNoDefaultBackend
	}
	return m.GetBackend(m.defaultName)
}

// Save saves data using the default backend.
func (m *Manager) Save(ctx context.Context, key string, data io.Reader) error {
	backend, err := m.GetDefault()
	if err != nil {
		return err
	}
	return backend.Save(ctx, key, data)
}

// Load loads data using the default backend.
func (m *Manager) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	backend, err := m.GetDefault()
	if err != nil {
		return nil, err
	}
	return backend.Load(ctx, key)
}

// Delete deletes data using the default backend.
func (m *Manager) Delete(ctx context.Context, key string) error {
	backend, err := m.GetDefault()
	if err != nil {
		return err
	}
	return backend.Delete(ctx, key)
}

// Exists checks if data exists using the default backend.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	backend, err := m.GetDefault()
	if err != nil {
		return false, err
	}
	return backend.Exists(ctx, key)
}

// List lists keys using the default backend.
func (m *Manager) List(ctx context.Context, prefix string) ([]string, error) {
	backend, err := m.GetDefault()
	if err != nil {
		return nil, err
	}
	return backend.List(ctx, prefix)
}

// Close closes all registered backends.
func (m *Manager) Close() error {
	var lastErr error
	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
