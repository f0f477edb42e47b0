package attachment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/s3storage"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

// fakeBucket answers the path-style object calls of the S3 backend.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.Contains(key, "/") {
		w.WriteHeader(http.StatusOK)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", time.Unix(1700000000, 0).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Header().Set("Content-Type", f.types[key])
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBucket) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newS3Env(t *testing.T) (*env, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client, err := s3storage.NewClient(s3storage.Options{
		Endpoint:    u.Host,
		Region:      "us-east-1",
		Bucket:      "media",
		Credentials: &s3storage.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"},
	}, nil)
	require.NoError(t, err)

	e := newEnv(t)
	e.deps.Backends.S3 = client
	return e, bucket
}

func TestProcess_RemoteStoreCycle(t *testing.T) {
	ctx := context.Background()
	e, bucket := newS3Env(t)
	def := imageDefinition()
	def.Storage = storage.KindS3
	rec := e.record()
	a := e.attach(t, def, rec)
	src, data := pngFile(t, 4096)

	require.NoError(t, a.Assign(openFile(t, src)))
	ok, err := a.Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, bucket.keys())
	assert.FileExists(t, stagedPath(t, a, UploadStyle))

	require.NoError(t, a.Process(ctx))
	assert.Equal(t, model.StatusStored, a.Status())
	assert.Equal(t, []string{
		"media/assets/1/image/original.bin",
		"media/assets/1/image/small.png",
	}, bucket.keys())
	assert.Equal(t, "image/png", bucket.types["media/assets/1/image/small.png"])
	assert.NoDirExists(t, filepath.Dir(stagedPath(t, a, UploadStyle)))

	exists, err := a.Exists(ctx, "small")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, data, readStyle(t, a, "original"))

	raw, err := a.ExpiringURL(ctx, "small", time.Minute)
	require.NoError(t, err)
	signed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, signed.Path, "assets/1/image/small.png")
	assert.Equal(t, "60", signed.Query().Get("X-Amz-Expires"))

	ok, err = a.Destroy(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, bucket.keys())
	exists, err = a.Exists(ctx, "small")
	require.NoError(t, err)
	assert.False(t, exists)
}
