package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalStore keeps files under root/{subfolder}/{name}
type LocalStore struct {
	root   string
	logger *zap.Logger
}

// NewLocalStore creates the root directory when missing
func NewLocalStore(root string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

func (s *LocalStore) path(subfolder, name string) (string, error) {
	key, err := objectKey(subfolder, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Save copies r into a temp file in the target directory and renames it into place.
// A failed copy removes the temp file and leaves any existing target untouched.
func (s *LocalStore) Save(ctx context.Context, subfolder, name string, r io.Reader) (int64, error) {
	dst, err := s.path(subfolder, name)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, readerWithContext(ctx, r))
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("failed to publish %s: %w", name, err)
	}

	s.logger.Debug("Stored file", zap.String("subfolder", subfolder), zap.String("name", name), zap.Int64("bytes", n))
	return n, nil
}

func (s *LocalStore) Open(_ context.Context, subfolder, name string) (io.ReadCloser, ObjectInfo, error) {
	p, err := s.path(subfolder, name)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ObjectInfo{}, ErrNotFound
	}
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ObjectInfo{}, ErrNotFound
	}
	return f, ObjectInfo{Name: name, Size: st.Size(), ContentType: ContentType(name), ModTime: st.ModTime()}, nil
}

// Rename moves a file within one subfolder. Renaming onto itself is a no-op.
func (s *LocalStore) Rename(_ context.Context, subfolder, from, to string) error {
	src, err := s.path(subfolder, from)
	if err != nil {
		return err
	}
	dst, err := s.path(subfolder, to)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return os.Rename(src, dst)
}

func (s *LocalStore) Exists(_ context.Context, subfolder, name string) (bool, error) {
	p, err := s.path(subfolder, name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
