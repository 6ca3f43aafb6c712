package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrInvalidKey      = errors.New("invalid file key")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

var keyPattern = regexp.MustCompile(`^[0-9a-f-]{36}\.(jpg|jpeg|png|webp)$`)

// ObjectStore holds upload bytes under opaque keys. Get returns ErrNotFound
// for unknown keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Uploads validates images and names them before handing them to an
// ObjectStore.
type Uploads struct {
	objects  ObjectStore
	maxBytes int64
}

func NewUploads(objects ObjectStore, maxBytes int64) *Uploads {
	return &Uploads{objects: objects, maxBytes: maxBytes}
}

// Save stores r under a new key. The extension decides the accepted type and
// the leading bytes must match it.
func (u *Uploads) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedTypes[ext]
	if !ok {
		return "", ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > u.maxBytes {
		return "", ErrTooLarge
	}
	if len(data) == 0 || http.DetectContentType(data) != want {
		return "", ErrUnsupportedType
	}

	key := uuid.NewString() + ext
	if err := u.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), want); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, nil
}

// Open returns the stored file and its content type.
func (u *Uploads) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !keyPattern.MatchString(key) {
		return nil, "", ErrInvalidKey
	}
	return u.objects.Get(ctx, key)
}

func contentTypeOf(key string) string {
	return allowedTypes[strings.ToLower(filepath.Ext(key))]
}
