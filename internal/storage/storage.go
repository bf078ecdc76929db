package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// URLPrefix is where stored photos are served from.
const URLPrefix = "/uploads/"

var ErrTooLarge = errors.New("file exceeds the maximum upload size")

// Storage defines the interface for meal photo storage
type Storage interface {
	// StoreFromBytes stores a photo and returns the URL it is served under
	StoreFromBytes(ctx context.Context, data []byte, ext string) (string, error)

	// Delete removes a photo by its URL
	Delete(ctx context.Context, url string) error
}

// LocalStorage implements Storage interface using local filesystem
type LocalStorage struct {
	dir     string
	maxSize int64
}

// NewLocalStorage creates the upload directory if needed. maxSize <= 0 means unlimited.
func NewLocalStorage(dir string, maxSize int64) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStorage{dir: dir, maxSize: maxSize}, nil
}

// Dir is the directory served under URLPrefix.
func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) StoreFromBytes(ctx context.Context, data []byte, ext string) (string, error) {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || strings.ContainsAny(ext, `/\.*`) {
		ext = "img"
	}
	file, err := os.CreateTemp(s.dir, "meal-*."+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return URLPrefix + filepath.Base(file.Name()), nil
}

func (s *LocalStorage) Delete(ctx context.Context, url string) error {
	name, ok := strings.CutPrefix(url, URLPrefix)
	if !ok || name == "" || path.Base(name) != name || name == ".." {
		return fmt.Errorf("invalid file URL: must be a single file under %s", URLPrefix)
	}
	return os.Remove(filepath.Join(s.dir, name))
}
