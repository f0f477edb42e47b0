// Package s3storage implements the remote object store backend on MinIO/S3.
// Styled files are staged locally like the filesystem backend and written to
// the bucket only once they are styled.
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/metrics"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

const (
	// PermissionPublicRead is the default canned ACL for stored objects.
	PermissionPublicRead = "public-read"

	defaultEndpoint    = "s3.amazonaws.com"
	defaultDisposition = "file.bin"
	defaultExpiry      = time.Hour
)

// ErrNoBucket is returned when neither the options nor the credentials name a
// bucket.
var ErrNoBucket = errors.New("no bucket configured")

// Options configures the client shared by every attachment on a bucket.
type Options struct {
	Endpoint string
	Region   string
	UseSSL   bool
	Bucket   string

	// Credentials wins over CredentialsFile. Environment selects a section
	// of the credentials file.
	Credentials     *Credentials
	CredentialsFile string
	Environment     string

	// Permission is the canned ACL sent with every PUT.
	Permission string
	// Protocol of public URLs; defaults to http for public-read and https
	// otherwise.
	Protocol string
	// HostAlias replaces endpoint/bucket in public URLs, e.g. a CDN CNAME.
	HostAlias string
	// Headers are sent with every PUT.
	Headers map[string]string
}

// Client wraps MinIO/S3 interactions for one bucket.
type Client struct {
	client *minio.Client
	bucket string
	region string
	root   string
	opts   Options
	log    *zap.Logger
}

// NewClient creates a MinIO client from opts.
func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	creds, err := resolveCredentials(opts)
	if err != nil {
		return nil, err
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = creds.Bucket
	}
	if bucket == "" {
		return nil, ErrNoBucket
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Permission == "" {
		opts.Permission = PermissionPublicRead
	}
	if opts.Protocol == "" {
		opts.Protocol = "https"
		if opts.Permission == PermissionPublicRead {
			opts.Protocol = "http"
		}
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	host := opts.HostAlias
	if host == "" {
		host = opts.Endpoint + "/" + bucket
	}
	return &Client{
		client: client,
		bucket: bucket,
		region: opts.Region,
		root:   opts.Protocol + "://" + host,
		opts:   opts,
		log:    logging.OrNop(log),
	}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Root returns the public URL prefix for stored objects.
func (c *Client) Root() string { return c.root }

// EnsureBucket makes sure the bucket exists before use.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", c.bucket, err)
		}
	}
	return nil
}

// Disposition returns the file name used in the Content-Disposition header,
// without the style suffix. An empty name omits the header.
type Disposition func() string

// StaticDisposition always uses name.
func StaticDisposition(name string) Disposition {
	return func() string { return name }
}

// Storage is the remote backend for one attachment.
type Storage struct {
	*storage.Base
	client *Client
}

// Backend builds the remote backend for the attachment behind loc. A nil
// disposition uses "file.bin".
func (c *Client) Backend(loc storage.Locator, disposition Disposition, stagingRoot string, log *zap.Logger, rec *metrics.Recorder) *Storage {
	if disposition == nil {
		disposition = StaticDisposition(defaultDisposition)
	}
	obj := &objectStore{client: c, loc: loc, disposition: disposition, log: logging.OrNop(log)}
	return &Storage{
		Base:   storage.NewBase(loc, obj, stagingRoot, log, rec),
		client: c,
	}
}

// Root returns the public URL prefix.
func (s *Storage) Root() string { return s.client.root }

// ExpiringURL returns a presigned GET URL for style valid for ttl. A zero ttl
// means one hour.
func (s *Storage) ExpiringURL(ctx context.Context, style string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultExpiry
	}
	u, err := s.client.client.PresignedGetObject(ctx, s.client.bucket, s.Key(style), ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// objectStore is the durable half of Storage.
type objectStore struct {
	client      *Client
	loc         storage.Locator
	disposition Disposition
	log         *zap.Logger
}

func (o *objectStore) Name() string { return string(storage.KindS3) }

func (o *objectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := o.client.client.StatObject(ctx, o.client.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

func (o *objectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := o.client.client.GetObject(ctx, o.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// Put uploads src. Errors from the object store are returned unmodified.
func (o *objectStore) Put(ctx context.Context, key, style string, src storage.Source) error {
	rc, size, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	opts := o.putOptions(style)
	if _, err := o.client.client.PutObject(ctx, o.client.bucket, key, rc, size, opts); err != nil {
		return err
	}
	o.log.Info("stored object", zap.String("root", o.client.root), zap.String("key", key))
	return nil
}

// Remove deletes the object. Failures are logged and swallowed so deletes
// stay idempotent.
func (o *objectStore) Remove(ctx context.Context, key string) error {
	if err := o.client.client.RemoveObject(ctx, o.client.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		o.log.Warn("remove object failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (o *objectStore) putOptions(style string) minio.PutObjectOptions {
	opts := minio.PutObjectOptions{
		ContentType:  o.loc.ContentType(style),
		UserMetadata: map[string]string{"x-amz-acl": o.client.opts.Permission},
	}
	if name := o.disposition(); name != "" {
		opts.ContentDisposition = ContentDisposition(name, style)
	}
	// Unknown headers are sent as x-amz-meta- metadata.
	for k, v := range o.client.opts.Headers {
		switch http.CanonicalHeaderKey(k) {
		case "Content-Type":
			opts.ContentType = v
		case "Cache-Control":
			opts.CacheControl = v
		case "Content-Encoding":
			opts.ContentEncoding = v
		case "Content-Language":
			opts.ContentLanguage = v
		case "Content-Disposition":
			opts.ContentDisposition = v
		case "Expires":
			if t, err := http.ParseTime(v); err == nil {
				opts.Expires = t
			}
		default:
			opts.UserMetadata[k] = v
		}
	}
	return opts
}

// ContentDisposition formats the attachment header for name and style.
func ContentDisposition(name, style string) string {
	return fmt.Sprintf("attachment; filename=\"%s.%s\"", name, style)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
