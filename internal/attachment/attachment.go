// Package attachment drives a file attached to a host record through its
// lifecycle:
//
//	Invalid -> Uploaded -> Styling -> Styled -> Stored
//
// Assign stages the raw upload, Save flushes it and schedules processing,
// StyleUploadedFile renders every style into staging and StoreStyledFiles
// moves the styled files to durable storage. An Attachment is owned by one
// goroutine at a time.
package attachment

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/keypath"
	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/metrics"
	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/storage"
	"github.com/dharsanguruparan/styledrop/internal/stylist"
)

// Deps are the process-wide collaborators shared by attachments.
type Deps struct {
	Backends *Backends
	Pipeline *stylist.Pipeline
	// Enqueuer schedules processing after Save; nil makes Save fail with
	// ErrNoJobSystem once processing is due.
	Enqueuer Enqueuer
	Log      *zap.Logger
	Metrics  *metrics.Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Attachment binds a Definition to one host record.
type Attachment struct {
	def      Definition
	host     HostRecord
	backend  storage.Backend
	pipeline *stylist.Pipeline
	enqueuer Enqueuer
	log      *zap.Logger
	metrics  *metrics.Recorder
	now      func() time.Time

	styles    []stylist.Style
	resolved  bool
	errors    map[string][]string
	validated bool
	dirty     bool
}

// New binds def to host. Every attachment field must be present on host.
func New(def Definition, host HostRecord, deps Deps) (*Attachment, error) {
	if host == nil {
		return nil, fmt.Errorf("%w: nil host record", ErrMissingAttribute)
	}
	for _, f := range model.Fields {
		name := model.AttributeName(def.Name, f)
		if !host.HasAttribute(name) {
			return nil, fmt.Errorf("%w: %s on %s", ErrMissingAttribute, name, host.RecordType())
		}
	}
	if len(def.Styles) == 0 && def.Resolver == nil {
		def.Styles = DefaultStyles
	}
	log := logging.OrNop(deps.Log).With(
		zap.String("attachment", def.Name),
		zap.String("record", host.RecordType()+"/"+host.ID()),
	)
	a := &Attachment{
		def:      def,
		host:     host,
		pipeline: deps.Pipeline,
		enqueuer: deps.Enqueuer,
		log:      log,
		metrics:  deps.Metrics,
		now:      deps.Now,
		styles:   def.Styles,
		errors:   map[string][]string{},
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.pipeline == nil {
		a.pipeline = stylist.NewPipeline(stylist.NewRegistry(nil, log), "", log, deps.Metrics)
	}
	backend, err := deps.Backends.open(a, log, deps.Metrics)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	return a, nil
}

// Name returns the attachment name.
func (a *Attachment) Name() string { return a.def.Name }

// Host returns the host record.
func (a *Attachment) Host() HostRecord { return a.host }

// Backend returns the storage backend.
func (a *Attachment) Backend() storage.Backend { return a.backend }

func (a *Attachment) attr(field string) string { return model.AttributeName(a.def.Name, field) }

// Status is the persisted lifecycle status.
func (a *Attachment) Status() model.Status {
	return model.ParseStatus(a.host.Attribute(a.attr(model.FieldStatus)))
}

func (a *Attachment) setStatus(s model.Status) {
	a.host.SetAttribute(a.attr(model.FieldStatus), int(s))
	a.metrics.Transition(a.def.Name, s.String())
	a.log.Debug("status changed", zap.Stringer("status", s))
}

// Ready reports whether every style is in durable storage.
func (a *Attachment) Ready() bool { return a.Status() == model.StatusStored }

// File reports whether a file has been assigned.
func (a *Attachment) File() bool { return a.Status() != model.StatusInvalid }

// Size is the recorded byte size of the upload.
func (a *Attachment) Size() int64 {
	switch v := a.host.Attribute(a.attr(model.FieldFileSize)).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// UpdatedAt is when the file was last assigned; zero when unset.
func (a *Attachment) UpdatedAt() time.Time {
	if t, ok := a.host.Attribute(a.attr(model.FieldUpdatedAt)).(time.Time); ok {
		return t
	}
	return time.Time{}
}

func (a *Attachment) recordedContentType() (string, bool) {
	ct, ok := a.host.Attribute(a.attr(model.FieldContentType)).(string)
	return ct, ok && ct != ""
}

// ContentType is the media type of style: the MIME type of the style's
// encoding, falling back to the uploaded content type.
func (a *Attachment) ContentType(style string) string {
	if s, ok := a.style(style); ok {
		if e, ok := stylist.LookupEncoding(s.Encoding); ok {
			return e.MIME
		}
	}
	if ct, ok := a.recordedContentType(); ok {
		return ct
	}
	return "application/octet-stream"
}

// Styles returns the current style table.
func (a *Attachment) Styles() []stylist.Style { return a.styles }

func (a *Attachment) style(name string) (stylist.Style, bool) {
	for _, s := range a.styles {
		if s.Name == name {
			return s, true
		}
	}
	return stylist.Style{}, false
}

// ResolveStyles evaluates the definition's resolver against the host record
// and caches the result. Without a resolver the declared styles are used.
func (a *Attachment) ResolveStyles() ([]stylist.Style, error) {
	if a.def.Resolver != nil {
		styles, err := a.def.Resolver(a.host)
		if err != nil {
			return nil, fmt.Errorf("resolve styles: %w", err)
		}
		a.styles = styles
	}
	a.resolved = true
	return a.styles, nil
}

func (a *Attachment) resolvedStyles() ([]stylist.Style, error) {
	if a.resolved {
		return a.styles, nil
	}
	return a.ResolveStyles()
}

// DefaultStyle is the style used when none is named.
func (a *Attachment) DefaultStyle() string {
	if a.def.DefaultStyle != "" {
		return a.def.DefaultStyle
	}
	if len(a.styles) > 0 {
		return a.styles[0].Name
	}
	return UploadStyle
}

// Extension of style: its encoding's extension when declared ("bin" for no
// or unknown encoding) and the style name itself otherwise.
func (a *Attachment) Extension(style string) string {
	if s, ok := a.style(style); ok {
		return s.Ext()
	}
	return style
}

func (a *Attachment) vars(style string) keypath.Vars {
	return keypath.Vars{
		Style:      style,
		Ext:        a.Extension(style),
		Attachment: a.def.Name,
		ID:         a.host.ID(),
	}
}

// Path resolves the durable path of style. keypath.DirStyle yields the
// directory holding every style.
func (a *Attachment) Path(style string) string {
	return keypath.Resolve(a.def.Path, a.host, a.vars(style))
}

// ProcessingURL resolves the URL served while the attachment is not stored.
func (a *Attachment) ProcessingURL(style string) string {
	return keypath.Resolve(a.def.ProcessingURL, a.host, a.vars(style))
}

// URL returns the public URL of style once stored, and the processing URL
// before. includeTimestamp appends the update time for cache busting.
func (a *Attachment) URL(style string, includeTimestamp bool) string {
	u := a.ProcessingURL(style)
	if a.Ready() {
		u = keypath.Join(a.backend.Root(), a.Path(style))
	}
	updated := a.UpdatedAt()
	if !includeTimestamp || updated.IsZero() {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + strconv.FormatInt(updated.Unix(), 10)
}

// Exists reports whether bytes for style are present.
func (a *Attachment) Exists(ctx context.Context, style string) (bool, error) {
	return a.backend.Exists(ctx, style)
}

// Read opens the bytes of style.
func (a *Attachment) Read(ctx context.Context, style string) (io.ReadCloser, error) {
	return a.backend.Read(ctx, style)
}

// ExpiringURL returns a time-limited URL for style.
func (a *Attachment) ExpiringURL(ctx context.Context, style string, ttl time.Duration) (string, error) {
	return a.backend.ExpiringURL(ctx, style, ttl)
}

// Errors returns a copy of the attachment's errors keyed by kind.
func (a *Attachment) Errors() map[string][]string {
	out := make(map[string][]string, len(a.errors))
	for k, v := range a.errors {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Dirty reports whether an assignment or a clear has not been saved yet.
func (a *Attachment) Dirty() bool { return a.dirty }

// Valid runs the validations once per assignment and reports whether the
// attachment has no errors.
func (a *Attachment) Valid() bool {
	a.validate()
	return len(a.errors) == 0
}

func (a *Attachment) validate() {
	if a.validated {
		return
	}
	for _, r := range a.def.Validations {
		if !r.applies(a.host) {
			continue
		}
		if msg := r.check(a); msg != "" {
			a.errors[string(r.Kind)] = []string{msg}
		}
	}
	a.validated = true
}
