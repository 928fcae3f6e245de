// Package blob is the object storage boundary. The service only writes
// through it during the default-skybox bootstrap, keyed by a storage
// path of the form projectId/branchId/assetId/filename.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Bucket stores binary asset payloads under slash-separated paths.
type Bucket interface {
	// Upload writes data at path, overwriting any existing object.
	Upload(ctx context.Context, path, contentType string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
}

// StoragePath derives the canonical object key for an asset file.
func StoragePath(projectID, branchID string, assetID int64, filename string) string {
	return fmt.Sprintf("%s/%s/%d/%s", projectID, branchID, assetID, filename)
}

// DirBucket keeps objects as files under a root directory.
type DirBucket struct {
	root string
}

func NewDirBucket(root string) (*DirBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob root: %w", err)
	}
	return &DirBucket{root: root}, nil
}

func (b *DirBucket) Upload(ctx context.Context, path, contentType string, data []byte) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (b *DirBucket) Exists(ctx context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (b *DirBucket) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage path %q", path)
	}
	return filepath.Join(b.root, clean), nil
}

// MemBucket is the in-memory bucket used in tests.
type MemBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemBucket() *MemBucket {
	return &MemBucket{objects: make(map[string][]byte)}
}

func (b *MemBucket) Upload(ctx context.Context, path, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[path] = cp
	return nil
}

func (b *MemBucket) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

// Len reports the number of stored objects (test helper).
func (b *MemBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
