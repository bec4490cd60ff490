// internal/storage/storage.go
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrVideoNotFound = errors.New("video not found")

// Storage holds downloaded video bytes behind an opaque key. The key is what
// the page binds its <video> element to, via GET /videos/{key}.
//
//	Dev:   videos = storage.NewMemoryStorage()
//	Disk:  videos = storage.NewLocalStorage(dir)
type Storage interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
	Open(ctx context.Context, key string) (io.ReadSeekCloser, error)
	Delete(ctx context.Context, key string) error
}

// newKey names a video by UUID only. Keys never carry caller text, so a key
// can be joined to a directory without path traversal.
func newKey(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return uuid.New().String() + filepath.Ext("x"+ext)
}

func validKey(key string) bool {
	id := strings.TrimSuffix(key, filepath.Ext(key))
	_, err := uuid.Parse(id)
	return err == nil && filepath.Base(key) == key
}

// ── Local Storage ─────────────────────────────────────────────────────────────

type LocalStorage struct {
	Dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create video dir: %w", err)
	}
	return &LocalStorage{Dir: dir}, nil
}

func (s *LocalStorage) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := newKey(ext)
	if err := os.WriteFile(filepath.Join(s.Dir, key), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write video: %w", err)
	}
	return key, nil
}

func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	if !validKey(key) {
		return nil, ErrVideoNotFound
	}

	f, err := os.Open(filepath.Join(s.Dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrVideoNotFound
	}

	err := os.Remove(filepath.Join(s.Dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrVideoNotFound
	}
	return err
}

// ── Memory Storage ────────────────────────────────────────────────────────────

type MemoryStorage struct {
	mu     sync.RWMutex
	videos map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{videos: make(map[string][]byte)}
}

func (s *MemoryStorage) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := newKey(ext)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.videos[key] = buf
	s.mu.Unlock()
	return key, nil
}

func (s *MemoryStorage) Open(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	s.mu.RLock()
	data, ok := s.videos[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrVideoNotFound
	}
	return nopCloser{bytes.NewReader(data)}, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.videos[key]; !ok {
		return ErrVideoNotFound
	}
	delete(s.videos, key)
	return nil
}

// Len reports how many videos are held.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.videos)
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
