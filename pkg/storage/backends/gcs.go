package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/enmassa-dl/enmassa/pkg/storage"
)

// GCSBackend stores cache entries in Google Cloud Storage.
type GCSBackend struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSBackend creates a new Google Cloud Storage backend
func NewGCSBackend() *GCSBackend {
	return &GCSBackend{}
}

// Init initializes the GCS backend with configuration
func (g *GCSBackend) Init(config map[string]interface{}) error {
	bucket, ok := config["bucket"].(string)
	if !ok || bucket == "" {
		return fmt.Errorf("bucket is required for GCS backend")
	}
	g.bucket = bucket

	// Optional prefix for all keys
	if prefix, ok := config["prefix"].(string); ok {
		g.prefix = strings.TrimSuffix(prefix, "/")
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if credFile, ok := config["credentialsFile"].(string); ok && credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else if credJSON, ok := config["credentialsJSON"].(string); ok && credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create GCS client: %w", err)
	}
	g.client = client

	return nil
}

// Save stores data to GCS at the specified key
func (g *GCSBackend) Save(ctx context.Context, key string, data io.Reader) error {
	if g.client == nil {
		return storage.ErrBackendNotReady
	}

	fullKey := g.buildKey(key)
	writer := g.client.Bucket(g.bucket).Object(fullKey).NewWriter(ctx)

	if _, err := io.Copy(writer, data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write object to GCS gs://%s/%s: %w", g.bucket, fullKey, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize object in GCS gs://%s/%s: %w", g.bucket, fullKey, err)
	}

	return nil
}

// Load retrieves data from GCS for the given key
func (g *GCSBackend) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	if g.client == nil {
		return nil, storage.ErrBackendNotReady
	}

	fullKey := g.buildKey(key)

	reader, err := g.client.Bucket(g.bucket).Object(fullKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read object from GCS gs://%s/%s: %w", g.bucket, fullKey, err)
	}

	return reader, nil
}

// Delete removes data from GCS for the given key
func (g *GCSBackend) Delete(ctx context.Context, key string) error {
	if g.client == nil {
		return storage.ErrBackendNotReady
	}

	fullKey := g.buildKey(key)

	err := g.client.Bucket(g.bucket).Object(fullKey).Delete(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return storage.ErrKeyNotFound
		}
		return fmt.Errorf("failed to delete object from GCS gs://%s/%s: %w", g.bucket, fullKey, err)
	}

	return nil
}

// Exists checks if data exists at the given key in GCS
func (g *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	if g.client == nil {
		return false, storage.ErrBackendNotReady
	}

	fullKey := g.buildKey(key)

	_, err := g.client.Bucket(g.bucket).Object(fullKey).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence in GCS gs://%s/%s: %w", g.bucket, fullKey, err)
	}

	return true, nil
}

// List returns a list of keys with the given prefix
func (g *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if g.client == nil {
		return nil, storage.ErrBackendNotReady
	}

	fullPrefix := g.buildKey(prefix)

	var keys []string
	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: fullPrefix})

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in GCS bucket %s: %w", g.bucket, err)
		}

		keys = append(keys, g.stripPrefix(attrs.Name))
	}

	return keys, nil
}

// Close closes the GCS client
func (g *GCSBackend) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// buildKey constructs the full GCS object name including any configured prefix
func (g *GCSBackend) buildKey(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + strings.TrimPrefix(key, "/")
}

// stripPrefix removes the configured prefix from an object name
func (g *GCSBackend) stripPrefix(objectName string) string {
	if g.prefix == "" {
		return objectName
	}

	prefixWithSlash := g.prefix + "/"
	if strings.HasPrefix(objectName, prefixWithSlash) {
		return strings.TrimPrefix(objectName, prefixWithSlash)
	}

	return objectName
}
