package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"backoffice/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 implements the handful of path-style object calls S3Store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		if src := r.Header.Get("X-Amz-Copy-Source"); src != "" {
			decoded, _ := url.PathUnescape(src)
			data, ok := f.objects["/"+strings.TrimPrefix(decoded, "/")]
			if !ok {
				notFound(w, "NoSuchKey")
				return
			}
			f.objects[key] = data
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><CopyObjectResult><ETag>"etag"</ETag></CopyObjectResult>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			notFound(w, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func notFound(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>missing</Message></Error>`)
}

func newTestS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), config.S3Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "files",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store_RoundTrip(t *testing.T) {
	store, fake := newTestS3Store(t)
	ctx := context.Background()

	n, err := store.Save(ctx, "seda_documents", "7_bill_1.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Contains(t, fake.objects, "/files/seda_documents/7_bill_1.pdf")

	ok, err := store.Exists(ctx, "seda_documents", "7_bill_1.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, _, err := store.Open(ctx, "seda_documents", "7_bill_1.pdf")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "pdf-bytes", string(body))

	require.NoError(t, store.Rename(ctx, "seda_documents", "7_bill_1.pdf", "7_bill_2.pdf"))
	ok, err = store.Exists(ctx, "seda_documents", "7_bill_1.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Open(ctx, "seda_documents", "nope.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.S3Config{AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	_, err = NewS3Store(context.Background(), config.S3Config{Bucket: "b"})
	assert.Error(t, err)
}
