package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Blob keys.
const (
	KeySelectionCounts = "selectionCounts"
	KeyHiddenApps      = "hiddenApps"
)

// BlobStore persists opaque JSON blobs by key. Load returns (nil, nil) for a missing key.
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// MemoryBlobStore is an in-memory BlobStore implementation for tests.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	saves int
}

// NewMemoryBlobStore returns an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Load returns a copy of the blob for key.
func (s *MemoryBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

// Save stores a copy of blob under key.
func (s *MemoryBlobStore) Save(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), blob...)
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryBlobStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileBlobStore keeps one <key>.json file per blob under Dir.
type FileBlobStore struct {
	Dir string
	mu  sync.Mutex
}

// NewFileBlobStore returns a store rooted at dir. The directory is created on first Save.
func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{Dir: dir}
}

func (s *FileBlobStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("ledger: invalid blob key %q", key)
	}
	return filepath.Join(s.Dir, key+".json"), nil
}

// Load reads the blob file for key.
func (s *FileBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", key, err)
	}
	return b, nil
}

// Save writes the blob through a temp file and rename.
func (s *FileBlobStore) Save(ctx context.Context, key string, blob []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("ledger: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("ledger: save %s: %w", key, err)
	}
	return nil
}
