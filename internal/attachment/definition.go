package attachment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/keypath"
	"github.com/dharsanguruparan/styledrop/internal/metrics"
	"github.com/dharsanguruparan/styledrop/internal/s3storage"
	"github.com/dharsanguruparan/styledrop/internal/storage"
	"github.com/dharsanguruparan/styledrop/internal/stylist"
)

// UploadStyle is the pseudo-style holding the raw uploaded file.
const UploadStyle = "upload"

// HostRecord is the record an attachment is attached to. Attachment fields
// are read and written through named attributes, see model.AttributeName.
type HostRecord interface {
	RecordType() string
	ID() string
	HasAttribute(name string) bool
	Attribute(name string) any
	SetAttribute(name string, value any)
	AddError(attribute, message string)
}

// Saver is implemented by host records that can persist themselves.
type Saver interface {
	Save(ctx context.Context) error
}

// Enqueuer schedules Process for an attachment on a job system.
type Enqueuer interface {
	Enqueue(ctx context.Context, recordType, recordID, attachment string) error
}

// StyleResolver computes the styles of an attachment from its host record.
type StyleResolver func(h HostRecord) ([]stylist.Style, error)

// Definition configures one attachment of a record type. It is built once at
// configuration time and shared by every record.
type Definition struct {
	Name string
	// Root overrides the filesystem backend's durable root.
	Root string
	// Path resolves the durable path; nil means keypath.Default.
	Path keypath.Template
	// ProcessingURL is served until the attachment is stored; nil means
	// keypath.Default.
	ProcessingURL keypath.Template
	Storage       storage.Kind
	// Styles in declaration order. Resolver, when set, replaces them per
	// record.
	Styles   []stylist.Style
	Resolver StyleResolver
	// DefaultStyle is used by callers that do not name a style; empty means
	// the first declared style.
	DefaultStyle string
	Validations  []Rule
	// Strict turns skipped or failed styles into a processing error.
	Strict bool
	// Disposition names downloads from the object store; nil means
	// "file.bin".
	Disposition func(h HostRecord) string
}

// DefaultStyles is used when a definition declares no styles.
var DefaultStyles = []stylist.Style{{Name: "original", Stylists: []string{"null"}}}

// StaticDisposition always names downloads name.
func StaticDisposition(name string) func(HostRecord) string {
	return func(HostRecord) string { return name }
}

// Backends holds the process-wide storage configuration attachments pick
// their backend from.
type Backends struct {
	Filesystem storage.FilesystemOptions
	// S3 is required for definitions using storage.KindS3.
	S3 *s3storage.Client
}

func (b *Backends) open(a *Attachment, log *zap.Logger, rec *metrics.Recorder) (storage.Backend, error) {
	var opts storage.FilesystemOptions
	if b != nil {
		opts = b.Filesystem
	}
	switch a.def.Storage {
	case "", storage.KindFilesystem:
		if a.def.Root != "" {
			opts.Root = a.def.Root
		}
		return storage.NewFilesystem(a, opts, log, rec), nil
	case storage.KindS3:
		if b == nil || b.S3 == nil {
			return nil, fmt.Errorf("%w: s3 client not configured", ErrUnknownStorage)
		}
		var disposition s3storage.Disposition
		if a.def.Disposition != nil {
			disposition = func() string { return a.def.Disposition(a.host) }
		}
		return b.S3.Backend(a, disposition, opts.StagingRoot, log, rec), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorage, a.def.Storage)
	}
}
