package tokenstore

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileName       = "tokens.json"
	sealedMagic    = "ACS1"
	fileMode       = 0o600
	dirMode        = 0o700
	defaultAppName = "default"
)

// ErrInvalidKey is returned when a sealing key is not 32 bytes.
var ErrInvalidKey = errors.New("file store key must be 32 bytes")

// ErrSealedFile is returned when a sealed file cannot be opened with the configured key.
var ErrSealedFile = errors.New("token file cannot be unsealed")

// FileStore keeps the pair in a JSON document scoped to one application instance:
//
//	<dir>/<instance>/tokens.json
//
// Writes go through a temp file and rename so readers never see a torn document. When a key is
// supplied the document is sealed with XChaCha20-Poly1305, bound to the instance name.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	instance string
	aead     cipher.AEAD
}

// NewFileStore prepares a FileStore. key may be nil for an unsealed document.
func NewFileStore(dir, instance string, key []byte) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("file store directory required")
	}
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = defaultAppName
	}
	if strings.ContainsAny(instance, `/\`) || instance == "." || instance == ".." {
		return nil, fmt.Errorf("invalid instance name %q", instance)
	}

	s := &FileStore{
		path:     filepath.Join(dir, instance, fileName),
		instance: instance,
	}
	if len(key) > 0 {
		if len(key) != chacha20poly1305.KeySize {
			return nil, ErrInvalidKey
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, err
		}
		s.aead = aead
	}
	return s, nil
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(context.Context) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Pair{}, ErrEmpty
		}
		return Pair{}, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, s.path, err)
	}

	plain, err := s.open(raw)
	if err != nil {
		return Pair{}, err
	}

	var doc map[string]string
	if err := json.Unmarshal(plain, &doc); err != nil {
		return Pair{}, fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, s.path, err)
	}
	return fromEntries(doc[KeyAccessToken], doc[KeyRefreshToken], doc[KeyTokenType])
}

func (s *FileStore) Set(_ context.Context, pair Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	pair = pair.Normalized()

	doc, err := json.Marshal(map[string]string{
		KeyAccessToken:  pair.AccessToken,
		KeyRefreshToken: pair.RefreshToken,
		KeyTokenType:    pair.TokenType,
	})
	if err != nil {
		return err
	}
	data, err := s.seal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(data)
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", ErrStoreUnavailable, s.path, err)
	}
	return nil
}

func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrStoreUnavailable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, fileName+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: chmod temp: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	if s.aead == nil {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := append([]byte(sealedMagic), s.aead.Seal(nonce, nonce, plain, []byte(s.instance))...)
	return out, nil
}

func (s *FileStore) open(raw []byte) ([]byte, error) {
	sealed := bytes.HasPrefix(raw, []byte(sealedMagic))
	switch {
	case s.aead == nil && !sealed:
		return raw, nil
	case s.aead == nil && sealed:
		return nil, ErrSealedFile
	case !sealed:
		// Plain document written before a key was configured.
		return raw, nil
	}

	body := raw[len(sealedMagic):]
	ns := s.aead.NonceSize()
	if len(body) < ns+s.aead.Overhead() {
		return nil, ErrSealedFile
	}
	plain, err := s.aead.Open(nil, body[:ns], body[ns:], []byte(s.instance))
	if err != nil {
		return nil, ErrSealedFile
	}
	return plain, nil
}
