// Package storage persists analysis results. Snapshots are written as JSON
// result files to blob storage; a relational run repository keeps the run
// history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// ErrBlobNotFound is returned when a blob does not exist
var ErrBlobNotFound = errors.New("blob not found")

// Blob is a file to store
type Blob struct {
	// Path is relative to the container
	Path        string
	ContentType string
	Metadata    map[string]string
	Data        []byte
}

// BlobStore stores result files and offloaded partition messages. Put
// returns a reference that Get and Exists accept, as do container
// relative paths.
type BlobStore interface {
	Put(ctx context.Context, b Blob) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// MemoryBlobStore keeps blobs in memory. References are
// "memory://<container>/<path>" URLs.
type MemoryBlobStore struct {
	prefix string

	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryBlobStore creates an empty in-memory store
func NewMemoryBlobStore(container string) *MemoryBlobStore {
	return &MemoryBlobStore{
		prefix: "memory://" + container + "/",
		blobs:  make(map[string]Blob),
	}
}

func (m *MemoryBlobStore) Put(ctx context.Context, b Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.Path == "" {
		return "", fmt.Errorf("blob path is required")
	}
	b.Metadata = maps.Clone(b.Metadata)
	b.Data = append([]byte(nil), b.Data...)

	m.mu.Lock()
	m.blobs[b.Path] = b
	m.mu.Unlock()
	return m.prefix + b.Path, nil
}

func (m *MemoryBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	b, err := m.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b.Data...), nil
}

func (m *MemoryBlobStore) Exists(ctx context.Context, ref string) (bool, error) {
	_, err := m.lookup(ctx, ref)
	if errors.Is(err, ErrBlobNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Stat returns a stored blob without copying its data
func (m *MemoryBlobStore) Stat(ref string) (Blob, bool) {
	b, err := m.lookup(context.Background(), ref)
	return b, err == nil
}

// Paths returns the stored blob paths, sorted
func (m *MemoryBlobStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.blobs))
	for p := range m.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MemoryBlobStore) lookup(ctx context.Context, ref string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	path := strings.TrimPrefix(ref, m.prefix)

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[path]
	if !ok {
		return Blob{}, fmt.Errorf("%s: %w", path, ErrBlobNotFound)
	}
	return b, nil
}
