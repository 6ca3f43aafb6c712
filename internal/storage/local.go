package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local keeps objects as flat files in one directory. Used when no object
// storage endpoint is configured.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	path := filepath.Join(l.dir, filepath.Base(key))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	_, err = io.Copy(f, r)
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	case closeErr != nil:
		_ = os.Remove(path)
		return fmt.Errorf("close file: %w", closeErr)
	}
	return nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	f, err := os.Open(filepath.Join(l.dir, filepath.Base(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return f, contentTypeOf(key), nil
}
