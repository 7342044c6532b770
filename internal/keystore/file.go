package keystore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileVersion = 1
	saltSize    = 16

	// Argon2id parameters for deriving the sealing key from the passphrase.
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// sealedFile is the on-disk layout. Ciphertext holds the JSON-encoded entries.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileKeystore keeps every entry in one file sealed with XChaCha20-Poly1305 under an
// Argon2id-derived key. Each mutation rewrites the file atomically with a fresh nonce.
type FileKeystore struct {
	path string
	key  []byte
	salt []byte

	mu      sync.Mutex
	entries map[string]map[string]string
}

// OpenFileKeystore opens (or prepares to create) the store at path. A wrong passphrase or
// a modified file yields ErrLocked.
func OpenFileKeystore(path, passphrase string) (*FileKeystore, error) {
	if passphrase == "" {
		return nil, errors.New("keystore: passphrase is required")
	}
	ks := &FileKeystore{path: path, entries: make(map[string]map[string]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		ks.salt = make([]byte, saltSize)
		if _, err := rand.Read(ks.salt); err != nil {
			return nil, err
		}
		ks.key = deriveKey(passphrase, ks.salt)
		return ks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}

	var sf sealedFile
	if err := json.Unmarshal(raw, &sf); err != nil || sf.Version != fileVersion || len(sf.Salt) != saltSize {
		return nil, ErrLocked
	}
	ks.salt = sf.Salt
	ks.key = deriveKey(passphrase, sf.Salt)
	aead, err := chacha20poly1305.NewX(ks.key)
	if err != nil {
		return nil, err
	}
	if len(sf.Nonce) != aead.NonceSize() {
		return nil, ErrLocked
	}
	plain, err := aead.Open(nil, sf.Nonce, sf.Ciphertext, sf.Salt)
	if err != nil {
		return nil, ErrLocked
	}
	if err := json.Unmarshal(plain, &ks.entries); err != nil {
		return nil, ErrLocked
	}
	if ks.entries == nil {
		ks.entries = make(map[string]map[string]string)
	}
	return ks, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// Get returns the value for (service, account) or ErrNotFound.
func (s *FileKeystore) Get(service, account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[service][account]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value and persists the store. On write failure the in-memory state is unchanged.
func (s *FileKeystore) Set(service, account, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneEntries(s.entries)
	if next[service] == nil {
		next[service] = make(map[string]string)
	}
	next[service][account] = value
	if err := s.persist(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// Delete removes the entry and persists the store. Missing entries are a no-op without a write.
func (s *FileKeystore) Delete(service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[service][account]; !ok {
		return nil
	}
	next := cloneEntries(s.entries)
	delete(next[service], account)
	if len(next[service]) == 0 {
		delete(next, service)
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

func (s *FileKeystore) persist(entries map[string]map[string]string) error {
	plain, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sf := sealedFile{
		Version:    fileVersion,
		Salt:       s.salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plain, s.salt),
	}
	raw, err := json.Marshal(sf)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, raw)
}

// writeFileAtomic writes data to a temp file in the target directory, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keystore: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("keystore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil && runtime.GOOS != "windows" {
		tmp.Close()
		return fmt.Errorf("keystore: set file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("keystore: save: %w", err)
	}
	return nil
}

func cloneEntries(in map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(in))
	for svc, accounts := range in {
		m := make(map[string]string, len(accounts))
		for k, v := range accounts {
			m[k] = v
		}
		out[svc] = m
	}
	return out
}
