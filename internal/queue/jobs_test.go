package queue

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTask(t *testing.T) {
	p := ProcessPayload{RecordType: "Asset", RecordID: "9", Attachment: "image"}
	task, err := NewProcessTask(p)
	require.NoError(t, err)
	assert.Equal(t, ProcessAttachmentTask, task.Type())
	assert.JSONEq(t, `{"record_type":"Asset","record_id":"9","attachment":"image"}`, string(task.Payload()))

	got, err := ParsePayload(task)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, "Asset/9/image", got.Key())
}

func TestProcessTask_Incomplete(t *testing.T) {
	_, err := NewProcessTask(ProcessPayload{RecordType: "Asset"})
	assert.Error(t, err)

	_, err = ParsePayload(asynq.NewTask(ProcessAttachmentTask, []byte(`{"record_type":"Asset"}`)))
	assert.ErrorContains(t, err, "incomplete payload")

	_, err = ParsePayload(asynq.NewTask(ProcessAttachmentTask, []byte(`not json`)))
	assert.ErrorContains(t, err, "decode payload")
}

func newRedis(t *testing.T) (*asynq.Client, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := asynq.NewClient(opt)
	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() {
		_ = client.Close()
		_ = inspector.Close()
	})
	return client, inspector
}

func TestClient_EnqueueKeepsPendingTask(t *testing.T) {
	ctx := context.Background()
	client, inspector := newRedis(t)
	c := NewClient(client, inspector, "")

	require.NoError(t, c.Enqueue(ctx, "Asset", "1", "image"))
	require.NoError(t, c.Enqueue(ctx, "Asset", "1", "image"))

	pending, err := inspector.ListPendingTasks(defaultQueue)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Asset/1/image", pending[0].ID)
}

func TestClient_EnqueueReplacesArchivedTask(t *testing.T) {
	ctx := context.Background()
	client, inspector := newRedis(t)
	c := NewClient(client, inspector, "")

	require.NoError(t, c.Enqueue(ctx, "Asset", "1", "image"))
	require.NoError(t, inspector.ArchiveTask(defaultQueue, "Asset/1/image"))

	require.NoError(t, c.Enqueue(ctx, "Asset", "1", "image"))
	pending, err := inspector.ListPendingTasks(defaultQueue)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Asset/1/image", pending[0].ID)
	archived, err := inspector.ListArchivedTasks(defaultQueue)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

// runningInspector reports every task as being processed.
type runningInspector struct{}

func (runningInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: id, Queue: queue, State: asynq.TaskStateActive}, nil
}

func (runningInspector) DeleteTask(string, string) error { return nil }

func TestClient_EnqueueFollowsUpRunningTask(t *testing.T) {
	ctx := context.Background()
	client, inspector := newRedis(t)
	c := NewClient(client, runningInspector{}, "")

	require.NoError(t, c.Enqueue(ctx, "Asset", "1", "image"))
	require.NoError(t, c.Enqueue(ctx, "Asset", "1", "image"))

	scheduled, err := inspector.ListScheduledTasks(defaultQueue)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.True(t, strings.HasPrefix(scheduled[0].ID, "Asset/1/image/"), scheduled[0].ID)

	p, err := ParsePayload(asynq.NewTask(scheduled[0].Type, scheduled[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, ProcessPayload{RecordType: "Asset", RecordID: "1", Attachment: "image"}, p)
}
