package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

type fakeLocator struct {
	status model.Status
}

func (l *fakeLocator) Path(style string) string {
	if style == "dir" {
		return "/assets/1"
	}
	return "/assets/1/image_" + style + ".png"
}

func (l *fakeLocator) Status() model.Status      { return l.status }
func (l *fakeLocator) ContentType(string) string { return "image/png" }

type object struct {
	body   []byte
	header http.Header
}

// fakeS3 serves the handful of path-style object calls the backend makes.
// Keys listed in denied answer PUT and DELETE with AccessDenied.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	denied  map[string]bool
}

func denyAccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.Contains(key, "/") || strings.HasSuffix(key, "/") {
		w.WriteHeader(http.StatusOK)
		return
	}
	if f.denied[key] && (r.Method == http.MethodPut || r.Method == http.MethodDelete) {
		denyAccess(w)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = object{body: body, header: r.Header.Clone()}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			if r.Method == http.MethodGet {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", time.Unix(1700000000, 0).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", fmt.Sprint(len(obj.body)))
		w.Header().Set("Content-Type", obj.header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.body)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeClient(t *testing.T, opts Options) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]object{}, denied: map[string]bool{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	opts.Endpoint = u.Host
	opts.Region = "us-east-1"
	if opts.Bucket == "" {
		opts.Bucket = "media"
	}
	client, err := NewClient(opts, nil)
	require.NoError(t, err)
	return client, fake
}

func TestStorage_StoreReadAndDelete(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient(t, Options{Headers: map[string]string{
		"Cache-Control": "max-age=60",
		"Expires":       "Thu, 01 Dec 2033 16:00:00 GMT",
		"X-Owner":       "media-team",
	}})
	loc := &fakeLocator{status: model.StatusStyled}
	s := client.Backend(loc, StaticDisposition("avatar"), t.TempDir(), nil, nil)

	s.QueueWrite(storage.Durable, "small", storage.BytesSource("png bytes"))
	require.NoError(t, s.FlushWrites(ctx))

	obj, ok := fake.objects["media/assets/1/image_small.png"]
	require.True(t, ok)
	assert.Equal(t, "png bytes", string(obj.body))
	assert.Equal(t, "image/png", obj.header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="avatar.small"`, obj.header.Get("Content-Disposition"))
	assert.Equal(t, "public-read", obj.header.Get("X-Amz-Acl"))
	assert.Equal(t, "max-age=60", obj.header.Get("Cache-Control"))
	assert.Equal(t, "Thu, 01 Dec 2033 16:00:00 GMT", obj.header.Get("Expires"))
	assert.Equal(t, "media-team", obj.header.Get("X-Amz-Meta-X-Owner"))

	loc.status = model.StatusStored
	exists, err := s.Exists(ctx, "small")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := s.Read(ctx, "small")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png bytes", string(body))

	s.QueueDelete(storage.DeleteDestination(loc.status), "small")
	require.NoError(t, s.FlushDeletes(ctx))
	assert.Empty(t, fake.objects)

	exists, err = s.Exists(ctx, "small")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStorage_WriteErrorIsReturnedUnmodified(t *testing.T) {
	client, fake := newFakeClient(t, Options{})
	fake.denied["media/assets/1/image_large.png"] = true
	s := client.Backend(&fakeLocator{status: model.StatusStyled}, nil, t.TempDir(), nil, nil)

	s.QueueWrite(storage.Durable, "small", storage.BytesSource("small"))
	s.QueueWrite(storage.Durable, "large", storage.BytesSource("large"))
	err := s.FlushWrites(context.Background())
	require.Error(t, err)

	var resp minio.ErrorResponse
	require.ErrorAs(t, err, &resp)
	assert.Equal(t, "AccessDenied", resp.Code)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Contains(t, fake.objects, "media/assets/1/image_small.png")
	writes, _ := s.Pending()
	assert.Equal(t, 1, writes)
}

func TestStorage_DeleteErrorIsSwallowed(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient(t, Options{})
	loc := &fakeLocator{status: model.StatusStyled}
	s := client.Backend(loc, nil, t.TempDir(), nil, nil)
	s.QueueWrite(storage.Durable, "small", storage.BytesSource("small"))
	require.NoError(t, s.FlushWrites(ctx))

	fake.denied["media/assets/1/image_small.png"] = true
	loc.status = model.StatusStored
	s.QueueDelete(storage.DeleteDestination(loc.status), "small")
	require.NoError(t, s.FlushDeletes(ctx))

	_, deletes := s.Pending()
	assert.Zero(t, deletes)
	assert.Contains(t, fake.objects, "media/assets/1/image_small.png")
}

func TestStorage_ReadMissing(t *testing.T) {
	client, _ := newFakeClient(t, Options{})
	s := client.Backend(&fakeLocator{status: model.StatusStored}, nil, t.TempDir(), nil, nil)

	_, err := s.Read(context.Background(), "small")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_StagingStaysLocal(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient(t, Options{})
	staging := t.TempDir()
	s := client.Backend(&fakeLocator{status: model.StatusUploaded}, nil, staging, nil, nil)

	s.QueueWrite(storage.Staging, "upload", storage.BytesSource("raw"))
	require.NoError(t, s.FlushWrites(ctx))

	assert.Empty(t, fake.objects)
	assert.FileExists(t, filepath.Join(staging, "assets/1/image_upload.png"))
}

func TestStorage_DefaultDisposition(t *testing.T) {
	client, fake := newFakeClient(t, Options{})
	s := client.Backend(&fakeLocator{status: model.StatusStyled}, nil, t.TempDir(), nil, nil)

	s.QueueWrite(storage.Durable, "thumb", storage.BytesSource("x"))
	require.NoError(t, s.FlushWrites(context.Background()))
	assert.Equal(t, `attachment; filename="file.bin.thumb"`,
		fake.objects["media/assets/1/image_thumb.png"].header.Get("Content-Disposition"))
}

func TestClient_Root(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{"public read", Options{Bucket: "media"}, "http://s3.amazonaws.com/media"},
		{"private", Options{Bucket: "media", Permission: "private"}, "https://s3.amazonaws.com/media"},
		{"alias", Options{Bucket: "media", HostAlias: "cdn.example.com"}, "http://cdn.example.com"},
		{"explicit protocol", Options{Bucket: "media", Protocol: "https"}, "https://s3.amazonaws.com/media"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.opts, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Root())
		})
	}
}

func TestClient_RequiresBucket(t *testing.T) {
	_, err := NewClient(Options{}, nil)
	assert.ErrorIs(t, err, ErrNoBucket)

	c, err := NewClient(Options{Credentials: &Credentials{Bucket: "from-creds"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-creds", c.Bucket())
}

func TestStorage_ExpiringURL(t *testing.T) {
	c, err := NewClient(Options{
		Bucket:      "media",
		Region:      "us-east-1",
		UseSSL:      true,
		Credentials: &Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"},
	}, nil)
	require.NoError(t, err)
	s := c.Backend(&fakeLocator{status: model.StatusStored}, nil, t.TempDir(), nil, nil)

	raw, err := s.ExpiringURL(context.Background(), "small", 0)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, u.Path, "assets/1/image_small.png")
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	flat := filepath.Join(dir, "flat.yml")
	require.NoError(t, os.WriteFile(flat, []byte("access_key_id: a\nsecret_access_key: b\nbucket: c\n"), 0o600))
	sectioned := filepath.Join(dir, "env.yml")
	require.NoError(t, os.WriteFile(sectioned, []byte(
		"development:\n  access_key_id: dev\n  secret_access_key: devsecret\nproduction:\n  access_key_id: prod\n  secret_access_key: prodsecret\n  bucket: prod-bucket\n"), 0o600))

	c, err := LoadCredentials(flat, "production")
	require.NoError(t, err)
	assert.Equal(t, &Credentials{AccessKeyID: "a", SecretAccessKey: "b", Bucket: "c"}, c)

	c, err = LoadCredentials(sectioned, "production")
	require.NoError(t, err)
	assert.Equal(t, "prod", c.AccessKeyID)
	assert.Equal(t, "prod-bucket", c.Bucket)

	_, err = LoadCredentials(filepath.Join(dir, "missing.yml"), "")
	assert.Error(t, err)
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="report.pdf_text"`, ContentDisposition("report", "pdf_text"))
}
