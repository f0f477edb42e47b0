// Package service binds the attachment catalog to a record store. The API,
// the job handlers and the CLI all go through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/record"
)

var (
	// ErrUnknownAttachment is returned when no definition matches the record
	// type and attachment name.
	ErrUnknownAttachment = errors.New("unknown attachment")
	// ErrInvalidIdentifier is returned for record types and ids that cannot
	// be used as a path segment.
	ErrInvalidIdentifier = errors.New("invalid record identifier")
	// ErrSuperseded is returned when a newer upload replaced the one being
	// processed before its result was saved.
	ErrSuperseded = errors.New("attachment superseded by a newer upload")
)

// Catalog looks up attachment definitions.
type Catalog interface {
	Lookup(recordType, name string) (attachment.Definition, bool)
	Attachments(recordType string) []string
}

// ValidationError carries the messages of a rejected assignment.
type ValidationError struct {
	Attachment string
	Errors     map[string][]string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for kind, m := range e.Errors {
		msgs = append(msgs, kind+": "+strings.Join(m, ", "))
	}
	return fmt.Sprintf("%s is invalid: %s", e.Attachment, strings.Join(msgs, "; "))
}

// Service opens attachments on stored records.
type Service struct {
	catalog Catalog
	store   record.Store
	deps    attachment.Deps
	log     *zap.Logger
}

// New constructs a Service. deps is shared by every attachment it opens.
func New(catalog Catalog, store record.Store, deps attachment.Deps) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		deps:    deps,
		log:     logging.OrNop(deps.Log),
	}
}

func (s *Service) definition(recordType, name string) (attachment.Definition, error) {
	def, ok := s.catalog.Lookup(recordType, name)
	if !ok {
		return def, fmt.Errorf("%w: %s.%s", ErrUnknownAttachment, recordType, name)
	}
	return def, nil
}

// Open loads an existing record and binds the named attachment to it.
func (s *Service) Open(ctx context.Context, recordType, id, name string) (*record.Record, *attachment.Attachment, error) {
	return s.open(ctx, recordType, id, name, false)
}

// OpenOrNew is Open, creating the record when it does not exist.
func (s *Service) OpenOrNew(ctx context.Context, recordType, id, name string) (*record.Record, *attachment.Attachment, error) {
	return s.open(ctx, recordType, id, name, true)
}

// checkIdentifier refuses values that would change the shape of a resolved
// path.
func checkIdentifier(kind, v string) error {
	if v == "" || strings.ContainsAny(v, "/\\\x00") || strings.Contains(v, "..") {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, v)
	}
	return nil
}

func (s *Service) open(ctx context.Context, recordType, id, name string, create bool) (*record.Record, *attachment.Attachment, error) {
	if err := checkIdentifier("record type", recordType); err != nil {
		return nil, nil, err
	}
	if err := checkIdentifier("id", id); err != nil {
		return nil, nil, err
	}
	def, err := s.definition(recordType, name)
	if err != nil {
		return nil, nil, err
	}
	names := s.catalog.Attachments(recordType)
	var rec *record.Record
	if create {
		rec, err = record.LoadOrNew(ctx, s.store, recordType, id, names)
	} else {
		rec, err = s.store.Load(ctx, recordType, id, names)
	}
	if err != nil {
		return nil, nil, err
	}
	a, err := attachment.New(def, rec, s.deps)
	if err != nil {
		return nil, nil, err
	}
	return rec, a, nil
}

// Assign attaches file to the record, creating it if needed. The record is
// persisted before the upload is flushed and processing is scheduled, so the
// job always finds the Uploaded status. Rejected files return a
// *ValidationError and leave storage untouched.
func (s *Service) Assign(ctx context.Context, recordType, id, name string, file any) (*attachment.Attachment, error) {
	rec, a, err := s.OpenOrNew(ctx, recordType, id, name)
	if err != nil {
		return nil, err
	}
	if err := a.Assign(file); err != nil {
		return nil, err
	}
	if !a.Valid() {
		return a, &ValidationError{Attachment: name, Errors: a.Errors()}
	}
	if err := rec.Save(ctx); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	if _, err := a.Save(ctx); err != nil {
		return a, err
	}
	s.log.Info("attachment assigned",
		zap.String("record", recordType+"/"+id),
		zap.String("attachment", name),
		zap.Int64("size", a.Size()))
	return a, nil
}

// Process styles and stores a saved upload. It is the job handler body. When
// the attachment was reassigned while processing ran, the stale result is not
// saved and Process returns nil; the newer upload has its own job.
func (s *Service) Process(ctx context.Context, recordType, id, name string) error {
	rec, a, err := s.Open(ctx, recordType, id, name)
	if err != nil {
		return err
	}
	rec.Bind(assignmentGuard{Store: s.store, attachment: name, assigned: a.UpdatedAt()})
	err = a.Process(ctx)
	if errors.Is(err, ErrSuperseded) {
		s.log.Info("skipped superseded result",
			zap.String("record", recordType+"/"+id),
			zap.String("attachment", name))
		return nil
	}
	return err
}

// assignmentGuard saves a record only while the attachment still holds the
// assignment that was loaded.
type assignmentGuard struct {
	record.Store
	attachment string
	assigned   time.Time
}

func (g assignmentGuard) Put(ctx context.Context, r *record.Record) error {
	current, err := g.Store.Load(ctx, r.RecordType(), r.ID(), []string{g.attachment})
	if err != nil {
		return err
	}
	at, _ := current.Attribute(model.AttributeName(g.attachment, model.FieldUpdatedAt)).(time.Time)
	if !at.Equal(g.assigned) {
		return ErrSuperseded
	}
	return g.Store.Put(ctx, r)
}

// Destroy deletes every file of the attachment and persists the cleared
// fields.
func (s *Service) Destroy(ctx context.Context, recordType, id, name string) error {
	rec, a, err := s.Open(ctx, recordType, id, name)
	if err != nil {
		return err
	}
	if _, err := a.Destroy(ctx); err != nil {
		return err
	}
	if err := rec.Save(ctx); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}
