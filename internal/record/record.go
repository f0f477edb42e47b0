// Package record provides a map-backed host record for attachments and the
// stores that persist it.
package record

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dharsanguruparan/styledrop/internal/model"
)

// ErrNotFound is returned when a record does not exist in a store.
var ErrNotFound = errors.New("record not found")

// Store persists records.
type Store interface {
	Load(ctx context.Context, recordType, id string, attachments []string) (*Record, error)
	Put(ctx context.Context, r *Record) error
}

// LoadOrNew loads a record from s, or returns a new one bound to s when it
// does not exist yet.
func LoadOrNew(ctx context.Context, s Store, recordType, id string, attachments []string) (*Record, error) {
	rec, err := s.Load(ctx, recordType, id, attachments)
	if errors.Is(err, ErrNotFound) {
		return New(recordType, id, attachments...).Bind(s), nil
	}
	return rec, err
}

// Record is a host record whose attributes live in a map. It is not safe for
// concurrent use.
type Record struct {
	recordType  string
	id          string
	attachments []string
	attrs       map[string]any
	errs        map[string][]string
	store       Store

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a record declaring the fields of every named attachment.
func New(recordType, id string, attachments ...string) *Record {
	r := &Record{
		recordType: recordType,
		id:         id,
		attrs:      map[string]any{},
		errs:       map[string][]string{},
	}
	for _, a := range attachments {
		r.Attach(a)
	}
	return r
}

// Attach declares the fields of attachment. Existing values are kept.
func (r *Record) Attach(attachment string) {
	for _, a := range r.attachments {
		if a == attachment {
			return
		}
	}
	r.attachments = append(r.attachments, attachment)
	for _, f := range model.Fields {
		name := model.AttributeName(attachment, f)
		if _, ok := r.attrs[name]; !ok {
			r.attrs[name] = nil
		}
	}
}

// Bind makes Save persist to s.
func (r *Record) Bind(s Store) *Record {
	r.store = s
	return r
}

func (r *Record) RecordType() string { return r.recordType }
func (r *Record) ID() string         { return r.id }

// Attachments lists the declared attachments in declaration order.
func (r *Record) Attachments() []string {
	return append([]string(nil), r.attachments...)
}

func (r *Record) HasAttribute(name string) bool {
	_, ok := r.attrs[name]
	return ok
}

func (r *Record) Attribute(name string) any { return r.attrs[name] }

func (r *Record) SetAttribute(name string, value any) { r.attrs[name] = value }

func (r *Record) AddError(attribute, message string) {
	r.errs[attribute] = append(r.errs[attribute], message)
}

// Errors returns a copy of the errors added to the record.
func (r *Record) Errors() map[string][]string {
	out := make(map[string][]string, len(r.errs))
	for k, v := range r.errs {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Attributes returns a copy of the attributes.
func (r *Record) Attributes() map[string]any {
	out := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// AttributeNames returns the declared attribute names in sorted order.
func (r *Record) AttributeNames() []string {
	names := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Save persists the record to its bound store; unbound records are a no-op.
func (r *Record) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Put(ctx, r)
}

// Clone returns a deep copy without errors.
func (r *Record) Clone() *Record {
	c := &Record{
		recordType:  r.recordType,
		id:          r.id,
		attachments: append([]string(nil), r.attachments...),
		attrs:       r.Attributes(),
		errs:        map[string][]string{},
		store:       r.store,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	return c
}
