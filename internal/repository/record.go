package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/record"
)

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordRepository persists host records and their attachment fields to
// Postgres. It implements record.Store.
type RecordRepository struct {
	db  DBTX
	now func() time.Time
}

// NewRecordRepository constructs a repository.
func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ record.Store = (*RecordRepository)(nil)

// Load reads a record and the fields of the named attachments. Attachments
// without a row keep empty fields.
func (r *RecordRepository) Load(ctx context.Context, recordType, id string, attachments []string) (*record.Record, error) {
	var (
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	row := r.db.QueryRow(ctx, `
		SELECT attributes, created_at, updated_at
		FROM host_records WHERE record_type=$1 AND record_id=$2
	`, recordType, id)
	if err := row.Scan(&raw, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("select record: %w", err)
	}
	rec := record.New(recordType, id, attachments...).Bind(r)
	rec.CreatedAt, rec.UpdatedAt = createdAt, updatedAt
	if len(raw) > 0 {
		extra := map[string]any{}
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		for k, v := range extra {
			rec.SetAttribute(k, v)
		}
	}
	for _, a := range attachments {
		if err := r.loadFields(ctx, rec, a); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (r *RecordRepository) loadFields(ctx context.Context, rec *record.Record, attachment string) error {
	var (
		status      *int32
		contentType *string
		fileSize    *int64
		updatedAt   *time.Time
	)
	row := r.db.QueryRow(ctx, `
		SELECT status, content_type, file_size, updated_at
		FROM attachment_fields WHERE record_type=$1 AND record_id=$2 AND attachment=$3
	`, rec.RecordType(), rec.ID(), attachment)
	if err := row.Scan(&status, &contentType, &fileSize, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("select %s fields: %w", attachment, err)
	}
	if status != nil {
		rec.SetAttribute(model.AttributeName(attachment, model.FieldStatus), int(*status))
	}
	if contentType != nil {
		rec.SetAttribute(model.AttributeName(attachment, model.FieldContentType), *contentType)
	}
	if fileSize != nil {
		rec.SetAttribute(model.AttributeName(attachment, model.FieldFileSize), *fileSize)
	}
	if updatedAt != nil {
		rec.SetAttribute(model.AttributeName(attachment, model.FieldUpdatedAt), *updatedAt)
	}
	return nil
}

// Put upserts the record and one row per declared attachment.
func (r *RecordRepository) Put(ctx context.Context, rec *record.Record) error {
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	owned := map[string]bool{}
	for _, a := range rec.Attachments() {
		for _, f := range model.Fields {
			owned[model.AttributeName(a, f)] = true
		}
	}
	extra := map[string]any{}
	for k, v := range rec.Attributes() {
		if !owned[k] {
			extra[k] = v
		}
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO host_records (record_type, record_id, attributes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (record_type, record_id)
		DO UPDATE SET attributes=EXCLUDED.attributes, updated_at=EXCLUDED.updated_at
	`, rec.RecordType(), rec.ID(), raw, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	for _, a := range rec.Attachments() {
		field := func(f string) any { return rec.Attribute(model.AttributeName(a, f)) }
		_, err := r.db.Exec(ctx, `
			INSERT INTO attachment_fields (record_type, record_id, attachment, status, content_type, file_size, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (record_type, record_id, attachment)
			DO UPDATE SET status=EXCLUDED.status, content_type=EXCLUDED.content_type,
				file_size=EXCLUDED.file_size, updated_at=EXCLUDED.updated_at
		`, rec.RecordType(), rec.ID(), a,
			statusValue(field(model.FieldStatus)),
			stringValue(field(model.FieldContentType)),
			sizeValue(field(model.FieldFileSize)),
			timeValue(field(model.FieldUpdatedAt)))
		if err != nil {
			return fmt.Errorf("upsert %s fields: %w", a, err)
		}
	}
	return nil
}

// Delete removes a record and, by cascade, its attachment rows.
func (r *RecordRepository) Delete(ctx context.Context, recordType, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM host_records WHERE record_type=$1 AND record_id=$2`, recordType, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

func statusValue(v any) *int32 {
	if v == nil {
		return nil
	}
	s := int32(model.ParseStatus(v))
	return &s
}

func stringValue(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func sizeValue(v any) *int64 {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	default:
		return nil
	}
	return &n
}

func timeValue(v any) *time.Time {
	t, ok := v.(time.Time)
	if !ok || t.IsZero() {
		return nil
	}
	return &t
}
