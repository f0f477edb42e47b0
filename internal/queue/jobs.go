package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// ProcessAttachmentTask is scheduled each time an upload is saved.
	ProcessAttachmentTask = "attachment:process"

	maxRetry     = 5
	defaultQueue = "default"

	// followUpDelay gives a running task time to finish before the task for
	// a newer upload starts.
	followUpDelay = 5 * time.Second
)

// ProcessPayload is serialized into the task payload so the worker knows
// which record and attachment to process.
type ProcessPayload struct {
	RecordType string `json:"record_type"`
	RecordID   string `json:"record_id"`
	Attachment string `json:"attachment"`
}

// Key identifies the attachment across tasks.
func (p ProcessPayload) Key() string {
	return p.RecordType + "/" + p.RecordID + "/" + p.Attachment
}

// NewProcessTask builds the task for p.
func NewProcessTask(p ProcessPayload) (*asynq.Task, error) {
	if p.RecordType == "" || p.RecordID == "" || p.Attachment == "" {
		return nil, fmt.Errorf("incomplete payload %+v", p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ProcessAttachmentTask, data), nil
}

// ParsePayload decodes the payload of a process task.
func ParsePayload(task *asynq.Task) (ProcessPayload, error) {
	var p ProcessPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.RecordType == "" || p.RecordID == "" || p.Attachment == "" {
		return p, fmt.Errorf("incomplete payload %+v", p)
	}
	return p, nil
}

// TaskInspector is the part of *asynq.Inspector Enqueue uses to resolve
// task ID conflicts.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Client enqueues process tasks on Redis. It implements attachment.Enqueuer.
type Client struct {
	client    *asynq.Client
	inspector TaskInspector
	queue     string
}

// NewClient wraps an asynq client and inspector. An empty queue name uses
// asynq's default queue.
func NewClient(client *asynq.Client, inspector TaskInspector, queue string) *Client {
	if queue == "" {
		queue = defaultQueue
	}
	return &Client{client: client, inspector: inspector, queue: queue}
}

// Enqueue schedules processing of one attachment. The task ID is the
// attachment key. When a task with that ID already exists:
//   - pending, scheduled or retrying, it has yet to load the record and
//     counts as scheduled;
//   - archived, it is deleted and enqueued again;
//   - running or completed, a follow-up task with its own ID is enqueued.
func (c *Client) Enqueue(ctx context.Context, recordType, recordID, attachment string) error {
	p := ProcessPayload{RecordType: recordType, RecordID: recordID, Attachment: attachment}
	task, err := NewProcessTask(p)
	if err != nil {
		return err
	}
	err = c.enqueue(ctx, task, p.Key())
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	info, err := c.inspector.GetTaskInfo(c.queue, p.Key())
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
		// Finished between the two calls.
		return c.enqueue(ctx, task, p.Key())
	case err != nil:
		return fmt.Errorf("inspect process task: %w", err)
	}
	switch info.State {
	case asynq.TaskStateArchived:
		if err := c.inspector.DeleteTask(c.queue, p.Key()); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("delete archived process task: %w", err)
		}
		return c.enqueue(ctx, task, p.Key())
	case asynq.TaskStateActive, asynq.TaskStateCompleted:
		return c.enqueue(ctx, task, p.Key()+"/"+uuid.NewString(), asynq.ProcessIn(followUpDelay))
	default:
		return nil
	}
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, id string, extra ...asynq.Option) error {
	opts := append([]asynq.Option{asynq.MaxRetry(maxRetry), asynq.TaskID(id), asynq.Queue(c.queue)}, extra...)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return err
		}
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}
