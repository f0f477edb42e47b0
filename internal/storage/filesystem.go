package storage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/metrics"
	"github.com/dharsanguruparan/styledrop/internal/signing"
)

// FilesystemOptions configures the local filesystem backend.
type FilesystemOptions struct {
	// Root is the durable directory stored styles are written under.
	Root string
	// StagingRoot holds in-flight files; empty means the system temp dir.
	StagingRoot string
	// PublicURL is the URL prefix for stored files; empty means Root.
	PublicURL string
	// Signer and DownloadPath enable ExpiringURL.
	Signer       *signing.Signer
	DownloadPath string
}

// Filesystem stores styles as files under a root directory.
type Filesystem struct {
	*Base
	opts FilesystemOptions
	now  func() time.Time
}

// NewFilesystem builds a filesystem backend for the attachment behind loc.
func NewFilesystem(loc Locator, opts FilesystemOptions, log *zap.Logger, rec *metrics.Recorder) *Filesystem {
	if opts.DownloadPath == "" {
		opts.DownloadPath = "/download"
	}
	return &Filesystem{
		Base: NewBase(loc, localDurable{root: opts.Root}, opts.StagingRoot, log, rec),
		opts: opts,
		now:  time.Now,
	}
}

// DurablePath is the file a stored style lives in.
func (f *Filesystem) DurablePath(style string) (string, error) {
	return localDurable{root: f.opts.Root}.path(f.Key(style))
}

// Root returns the public URL prefix.
func (f *Filesystem) Root() string {
	if f.opts.PublicURL != "" {
		return f.opts.PublicURL
	}
	return f.opts.Root
}

// ExpiringURL returns a signed download URL valid for ttl.
func (f *Filesystem) ExpiringURL(_ context.Context, style string, ttl time.Duration) (string, error) {
	if f.opts.Signer == nil {
		return "", ErrUnsupported
	}
	return f.opts.Signer.URL(f.opts.DownloadPath, f.Key(style), f.now().Add(ttl)), nil
}

type localDurable struct {
	root string
}

func (d localDurable) Name() string { return string(KindFilesystem) }

func (d localDurable) path(key string) (string, error) {
	return underRoot(d.root, key)
}

func (d localDurable) Exists(_ context.Context, key string) (bool, error) {
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	return localExists(p), nil
}

func (d localDurable) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	return openLocal(p)
}

func (d localDurable) Put(_ context.Context, key, _ string, src Source) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	return saveLocal(p, src)
}

func (d localDurable) Remove(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	return deleteLocal(p)
}
