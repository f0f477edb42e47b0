// Package storage defines the backend contract attachments drive, the
// write/delete queue shared by every backend, and the local filesystem backend.
//
// Bytes for a style live in one of two places. The staging location is always
// local (a temporary root joined with the resolved path) and holds the raw
// upload and styled output until they are stored. The durable location is
// backend specific: a filesystem path under the configured root, or an object
// key in a bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dharsanguruparan/styledrop/internal/model"
)

var (
	// ErrNotFound is returned when no bytes exist for a style.
	ErrNotFound = errors.New("style not found")
	// ErrNoFile is returned when reading an attachment that has no file.
	ErrNoFile = errors.New("attachment has no file")
	// ErrUnsupported is returned by optional operations a backend cannot serve.
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrOutsideRoot is returned when a resolved path is a local root itself
	// or escapes it.
	ErrOutsideRoot = errors.New("path outside storage root")
)

// Kind selects a backend implementation.
type Kind string

const (
	KindFilesystem Kind = "filesystem"
	KindS3         Kind = "s3"
)

// Destination says which location a queued operation targets.
type Destination int

const (
	Staging Destination = iota
	Durable
)

func (d Destination) String() string {
	if d == Durable {
		return "durable"
	}
	return "staging"
}

// WriteDestination returns where a write queued while in status s must land.
// Styled output is promoted to durable storage only from StatusStyled.
func WriteDestination(s model.Status) Destination {
	if s == model.StatusStyled {
		return Durable
	}
	return Staging
}

// DeleteDestination returns where a delete queued while in status s applies.
func DeleteDestination(s model.Status) Destination {
	if s == model.StatusStored {
		return Durable
	}
	return Staging
}

// ReadDestination returns where the current bytes for a style live.
func ReadDestination(s model.Status) Destination {
	return DeleteDestination(s)
}

// Locator resolves style names for a backend. It is implemented by the
// attachment that owns the backend; backends never interpret styles beyond
// asking for their path.
type Locator interface {
	// Path returns the resolved relative path (or object key) for style.
	Path(style string) string
	// Status returns the persisted lifecycle status.
	Status() model.Status
	// ContentType returns the media type stored with style.
	ContentType(style string) string
}

// Backend moves bytes for an attachment. Queue operations are pure staging;
// only the Flush methods touch storage.
type Backend interface {
	Exists(ctx context.Context, style string) (bool, error)
	Read(ctx context.Context, style string) (io.ReadCloser, error)
	// StagingPath is the local file holding style before it is stored.
	StagingPath(style string) (string, error)

	QueueWrite(dest Destination, style string, src Source)
	QueueDelete(dest Destination, style string)
	DiscardWrites()
	Pending() (writes, deletes int)

	FlushWrites(ctx context.Context) error
	FlushDeletes(ctx context.Context) error

	// Root is the prefix joined with a resolved path to build a public URL.
	Root() string
	// ExpiringURL returns a time-limited URL for a private style.
	ExpiringURL(ctx context.Context, style string, ttl time.Duration) (string, error)
}
