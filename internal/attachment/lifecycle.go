package attachment

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/keypath"
	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

const stylingErrorKey = "styling"

// StyleUploadedFile renders every style from the staged upload into staging
// and moves the attachment to Styled. It does nothing unless the attachment is
// Uploaded. On failure the status reverts to Uploaded and the error is
// returned.
//
// Styles whose input encoding is not recognised, or whose stylists fail, get
// no output. In strict mode that is a *StylingError; otherwise it is logged
// and the style is simply absent once stored.
func (a *Attachment) StyleUploadedFile(ctx context.Context) error {
	if a.Status() != model.StatusUploaded {
		return nil
	}
	upload, err := a.backend.StagingPath(UploadStyle)
	if err != nil {
		return err
	}
	delete(a.errors, stylingErrorKey)
	a.log.Info("styling uploaded file", zap.String("upload", upload))
	a.setStatus(model.StatusStyling)

	styles, err := a.resolvedStyles()
	if err != nil {
		return a.revert(model.StatusUploaded, err)
	}
	report, err := a.pipeline.Run(ctx, upload, styles)
	if err != nil {
		return a.revert(model.StatusUploaded, err)
	}
	defer func() {
		if err := report.Cleanup(); err != nil {
			a.log.Warn("remove styling work dir", zap.Error(err))
		}
	}()

	if problems := report.Problems(); len(problems) > 0 && a.def.Strict {
		for _, p := range problems {
			a.errors[stylingErrorKey] = append(a.errors[stylingErrorKey], fmt.Sprintf("%s: %v", p.Style, p.Err))
		}
		return a.revert(model.StatusUploaded, &StylingError{Attachment: a.def.Name, Results: problems})
	}

	dest := storage.WriteDestination(a.Status())
	for _, res := range report.Produced() {
		a.backend.QueueWrite(dest, res.Style, storage.FileSource(res.Path))
	}
	if err := a.backend.FlushWrites(ctx); err != nil {
		return a.revert(model.StatusUploaded, err)
	}
	if err := a.backend.FlushDeletes(ctx); err != nil {
		return a.revert(model.StatusUploaded, err)
	}
	a.setStatus(model.StatusStyled)
	return nil
}

// StoreStyledFiles writes every staged style to durable storage, removes the
// staging directory and moves the attachment to Stored. It does nothing unless
// the attachment is Styled. Styles with no staged output are skipped. On
// failure the status stays Styled and the error is returned; styles written
// before the failure stay written.
func (a *Attachment) StoreStyledFiles(ctx context.Context) error {
	if a.Status() != model.StatusStyled {
		return nil
	}
	styles, err := a.resolvedStyles()
	if err != nil {
		return a.revert(model.StatusStyled, err)
	}
	dest := storage.WriteDestination(a.Status())
	for _, s := range styles {
		staged, err := a.backend.StagingPath(s.Name)
		if err != nil {
			return a.revert(model.StatusStyled, err)
		}
		if _, err := os.Stat(staged); err != nil {
			a.log.Warn("no styled output to store", zap.String("style", s.Name))
			continue
		}
		a.backend.QueueWrite(dest, s.Name, storage.FileSource(staged))
	}
	a.backend.QueueDelete(storage.DeleteDestination(a.Status()), keypath.DirStyle)

	// Durable copies must exist before staging is removed.
	if err := a.backend.FlushWrites(ctx); err != nil {
		return a.revert(model.StatusStyled, err)
	}
	if err := a.backend.FlushDeletes(ctx); err != nil {
		return a.revert(model.StatusStyled, err)
	}
	a.setStatus(model.StatusStored)
	return nil
}

func (a *Attachment) revert(to model.Status, err error) error {
	a.log.Error("processing failed", zap.Stringer("revert_to", to), zap.Error(err))
	a.setStatus(to)
	return err
}

// Save validates the attachment. When invalid, the errors are copied onto the
// host record and Save returns false without touching storage. Otherwise the
// queued deletes and writes are flushed and, for a fresh upload, processing is
// scheduled on the job system.
func (a *Attachment) Save(ctx context.Context) (bool, error) {
	if !a.Valid() {
		a.flushErrors()
		return false, nil
	}
	if err := a.backend.FlushDeletes(ctx); err != nil {
		return false, err
	}
	if err := a.backend.FlushWrites(ctx); err != nil {
		return false, err
	}
	a.dirty = false
	if a.Status() != model.StatusUploaded {
		return true, nil
	}
	if a.enqueuer == nil {
		return false, ErrNoJobSystem
	}
	if err := a.enqueuer.Enqueue(ctx, a.host.RecordType(), a.host.ID(), a.def.Name); err != nil {
		return false, fmt.Errorf("enqueue processing: %w", err)
	}
	a.log.Info("processing scheduled")
	return true, nil
}

func (a *Attachment) flushErrors() {
	for _, msgs := range a.errors {
		for _, m := range msgs {
			a.host.AddError(a.def.Name, m)
		}
	}
}

// Clear queues deletion of every style and the upload and resets the host
// fields to Invalid. Nothing is deleted until Save.
func (a *Attachment) Clear() {
	dest := storage.DeleteDestination(a.Status())
	for _, s := range a.styles {
		a.backend.QueueDelete(dest, s.Name)
	}
	a.backend.QueueDelete(dest, UploadStyle)

	for _, f := range model.Fields {
		if f != model.FieldStatus {
			a.host.SetAttribute(a.attr(f), nil)
		}
	}
	a.setStatus(model.StatusInvalid)
	a.errors = map[string][]string{}
	a.validated = false
	a.dirty = true
}

// Destroy clears the attachment and saves, deleting its files.
func (a *Attachment) Destroy(ctx context.Context) (bool, error) {
	a.Clear()
	return a.Save(ctx)
}

// Process runs the whole pipeline for a saved upload: styles are resolved
// again, then styled and stored, and the host record is saved. It is the
// entry point job handlers call.
func (a *Attachment) Process(ctx context.Context) error {
	if _, err := a.ResolveStyles(); err != nil {
		return err
	}
	if err := a.StyleUploadedFile(ctx); err != nil {
		return err
	}
	if err := a.StoreStyledFiles(ctx); err != nil {
		return err
	}
	if s, ok := a.host.(Saver); ok {
		if err := s.Save(ctx); err != nil {
			return fmt.Errorf("save host record: %w", err)
		}
	}
	return nil
}

var _ storage.Locator = (*Attachment)(nil)
