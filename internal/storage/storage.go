// Package storage keeps migrated attachment files on local disk or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidName is returned for names that would escape the storage root
	ErrInvalidName = errors.New("storage: invalid file name")
	// ErrNotFound is returned when the object does not exist
	ErrNotFound = errors.New("storage: file not found")
)

// ObjectInfo describes a stored file
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is implemented by LocalStore and S3Store.
// Save publishes the object only after the whole reader was consumed.
type Store interface {
	Save(ctx context.Context, subfolder, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, subfolder, name string) (io.ReadCloser, ObjectInfo, error)
	Rename(ctx context.Context, subfolder, from, to string) error
	Exists(ctx context.Context, subfolder, name string) (bool, error)
}

// objectKey joins subfolder and name after rejecting traversal and separators in either part.
func objectKey(subfolder, name string) (string, error) {
	for _, part := range []string{subfolder, name} {
		if part == "" || part == "." || part == ".." ||
			strings.ContainsAny(part, `/\`) || strings.ContainsRune(part, 0) {
			return "", ErrInvalidName
		}
	}
	return path.Join(subfolder, name), nil
}

// ContentType guesses the mime type from the file extension
func ContentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
