package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/queue"
	"github.com/dharsanguruparan/styledrop/internal/record"
	"github.com/dharsanguruparan/styledrop/internal/service"
)

// Attachments processes one saved upload. *service.Service implements it.
type Attachments interface {
	Process(ctx context.Context, recordType, id, name string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	attachments Attachments
	log         *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(attachments Attachments, log *zap.Logger) *Processor {
	return &Processor{attachments: attachments, log: logging.OrNop(log)}
}

// Handler registers the process job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessAttachmentTask, p.HandleProcess)
	return mux
}

// HandleProcess styles and stores the attachment named by the task. Errors
// that a retry cannot fix skip the remaining retries.
func (p *Processor) HandleProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParsePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.String("attachment", payload.Key()))
	if err := p.attachments.Process(ctx, payload.RecordType, payload.RecordID, payload.Attachment); err != nil {
		log.Error("process failed", zap.Error(err))
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	log.Info("attachment processed")
	return nil
}

func permanent(err error) bool {
	var styling *attachment.StylingError
	return errors.Is(err, record.ErrNotFound) ||
		errors.Is(err, service.ErrUnknownAttachment) ||
		errors.Is(err, attachment.ErrMissingAttribute) ||
		errors.As(err, &styling)
}
