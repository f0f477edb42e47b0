package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/metrics"
	"github.com/dharsanguruparan/styledrop/internal/model"
)

// DurableStore is the backend-specific half of a backend: the final resting
// place of stored styles. Keys are resolved paths.
type DurableStore interface {
	Name() string
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key, style string, src Source) error
	Remove(ctx context.Context, key string) error
}

// Base implements the queue, staging and flush protocol on top of a
// DurableStore. Concrete backends embed it.
type Base struct {
	Queue

	loc         Locator
	durable     DurableStore
	stagingRoot string
	log         *zap.Logger
	metrics     *metrics.Recorder
}

// NewBase wires a Base. An empty stagingRoot means the system temp directory.
func NewBase(loc Locator, durable DurableStore, stagingRoot string, log *zap.Logger, rec *metrics.Recorder) *Base {
	if stagingRoot == "" {
		stagingRoot = os.TempDir()
	}
	return &Base{
		loc:         loc,
		durable:     durable,
		stagingRoot: stagingRoot,
		log:         logging.OrNop(log).With(zap.String("backend", durable.Name())),
		metrics:     rec,
	}
}

// StagingPath is the local staging file for style. Paths resolving to the
// staging root or outside it are refused with ErrOutsideRoot.
func (b *Base) StagingPath(style string) (string, error) {
	return underRoot(b.stagingRoot, b.loc.Path(style))
}

// Key is the durable key for style: the resolved path without a leading slash.
func (b *Base) Key(style string) string {
	return strings.TrimLeft(b.loc.Path(style), "/")
}

// Exists reports whether bytes for style are present where the current status
// says they live.
func (b *Base) Exists(ctx context.Context, style string) (bool, error) {
	status := b.loc.Status()
	if status == model.StatusInvalid {
		return false, nil
	}
	if ReadDestination(status) == Durable {
		return b.durable.Exists(ctx, b.Key(style))
	}
	p, err := b.StagingPath(style)
	if err != nil {
		return false, err
	}
	return localExists(p), nil
}

// Read opens the bytes for style from staging before the attachment is
// stored and from durable storage afterwards.
func (b *Base) Read(ctx context.Context, style string) (io.ReadCloser, error) {
	status := b.loc.Status()
	if status == model.StatusInvalid {
		return nil, ErrNoFile
	}
	if ReadDestination(status) == Durable {
		return b.durable.Open(ctx, b.Key(style))
	}
	p, err := b.StagingPath(style)
	if err != nil {
		return nil, err
	}
	return openLocal(p)
}

// FlushWrites performs every queued write in order. On failure the entries
// already written stay written, the failing and remaining entries stay
// queued, and the error is returned.
func (b *Base) FlushWrites(ctx context.Context) error {
	start := time.Now()
	defer b.metrics.FlushDuration(b.durable.Name(), "write", start)
	writes := b.Writes()
	for i, w := range writes {
		var err error
		if w.Dest == Durable {
			err = b.durable.Put(ctx, b.Key(w.Style), w.Style, w.Source)
		} else {
			err = b.saveStaged(w.Style, w.Source)
		}
		if err != nil {
			b.metrics.FlushError(b.durable.Name(), "write")
			b.log.Error("flush write failed", zap.String("style", w.Style), zap.Stringer("destination", w.Dest), zap.Error(err))
			b.dropWrites(i)
			return err
		}
		b.metrics.Flushed(b.durable.Name(), w.Dest.String(), "write")
		b.log.Debug("flushed write", zap.String("style", w.Style), zap.Stringer("destination", w.Dest))
	}
	b.dropWrites(len(writes))
	return nil
}

// FlushDeletes removes every queued location. Missing locations are ignored.
func (b *Base) FlushDeletes(ctx context.Context) error {
	start := time.Now()
	defer b.metrics.FlushDuration(b.durable.Name(), "delete", start)
	deletes := b.Deletes()
	for i, d := range deletes {
		var err error
		if d.Dest == Durable {
			err = b.durable.Remove(ctx, b.Key(d.Style))
		} else {
			err = b.deleteStaged(d.Style)
		}
		if err != nil {
			b.metrics.FlushError(b.durable.Name(), "delete")
			b.log.Error("flush delete failed", zap.String("style", d.Style), zap.Stringer("destination", d.Dest), zap.Error(err))
			b.dropDeletes(i)
			return err
		}
		b.metrics.Flushed(b.durable.Name(), d.Dest.String(), "delete")
		b.log.Debug("flushed delete", zap.String("style", d.Style), zap.Stringer("destination", d.Dest))
	}
	b.dropDeletes(len(deletes))
	return nil
}

func (b *Base) saveStaged(style string, src Source) error {
	p, err := b.StagingPath(style)
	if err != nil {
		return err
	}
	return saveLocal(p, src)
}

func (b *Base) deleteStaged(style string) error {
	p, err := b.StagingPath(style)
	if err != nil {
		return err
	}
	return deleteLocal(p)
}
