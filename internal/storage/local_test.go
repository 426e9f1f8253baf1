package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	data []byte
	sent bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, f.data), nil
	}
	return 0, errors.New("connection reset")
}

func TestLocalStore_SaveOpen(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, nil)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Save(ctx, "payment_attachments", "12_receipt_1700000000000.pdf", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	rc, info, err := store.Open(ctx, "payment_attachments", "12_receipt_1700000000000.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, int64(5), info.Size)

	_, _, err = store.Open(ctx, "payment_attachments", "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_FailedSaveLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, nil)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "docs", "a.pdf", &failingReader{data: []byte("partial")})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "docs"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_Rename(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "docs", "收据.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Rename(ctx, "docs", "收据.pdf", "%E6%94%B6%E6%8D%AE.pdf"))

	ok, err := store.Exists(ctx, "docs", "收据.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Exists(ctx, "docs", "%E6%94%B6%E6%8D%AE.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, store.Rename(ctx, "docs", "gone.pdf", "x.pdf"), ErrNotFound)
}

func TestObjectKey_RejectsTraversal(t *testing.T) {
	tests := []struct {
		subfolder, name string
	}{
		{"docs", "../etc/passwd"},
		{"..", "a.pdf"},
		{"docs", ""},
		{"a/b", "c.pdf"},
		{"docs", `..\x.pdf`},
	}
	for _, tt := range tests {
		_, err := objectKey(tt.subfolder, tt.name)
		assert.ErrorIs(t, err, ErrInvalidName, "%s/%s", tt.subfolder, tt.name)
	}

	key, err := objectKey("docs", "a b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "docs/a b.pdf", key)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("x.PNG"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}
