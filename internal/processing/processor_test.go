package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newRecorder() *recorder { return &recorder{done: make(chan string, 16)} }

func (r *recorder) process(_ context.Context, recordType, id, name string) error {
	r.mu.Lock()
	r.calls = append(r.calls, recordType+"/"+id+"/"+name)
	r.mu.Unlock()
	r.done <- name
	return nil
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d runs", i, n)
		}
	}
}

func TestPool_ProcessesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := newRecorder()
	p := New(2, nil)
	p.Start(ctx, rec.process)

	require.NoError(t, p.Enqueue(ctx, "Asset", "1", "image"))
	require.NoError(t, p.Enqueue(ctx, "Asset", "2", "image"))
	rec.wait(t, 2)
	assert.ElementsMatch(t, []string{"Asset/1/image", "Asset/2/image"}, rec.calls)
}

func TestPool_DropsDuplicateWhileQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := newRecorder()
	p := New(1, nil)

	require.NoError(t, p.Enqueue(ctx, "Asset", "1", "image"))
	require.NoError(t, p.Enqueue(ctx, "Asset", "1", "image"))
	assert.Len(t, p.queue, 1)

	p.Start(ctx, rec.process)
	rec.wait(t, 1)
	select {
	case <-rec.done:
		t.Fatal("duplicate job ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPool_RerunsWhenEnqueuedDuringRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var runs int
	var mu sync.Mutex
	fn := func(context.Context, string, string, string) error {
		mu.Lock()
		runs++
		first := runs == 1
		mu.Unlock()
		started <- struct{}{}
		if first {
			<-release
		}
		return nil
	}
	p := New(2, nil)
	p.Start(ctx, fn)

	require.NoError(t, p.Enqueue(ctx, "Asset", "1", "image"))
	<-started
	require.NoError(t, p.Enqueue(ctx, "Asset", "1", "image"))
	require.NoError(t, p.Enqueue(ctx, "Asset", "1", "image"))
	close(release)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("rerun did not happen")
	}
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.jobs) == 0
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, runs)
	mu.Unlock()
}

func TestPool_QueueFull(t *testing.T) {
	p := New(1, nil)
	ctx := context.Background()
	for i := 0; i < cap(p.queue); i++ {
		require.NoError(t, p.Enqueue(ctx, "Asset", string(rune('a'+i)), "image"))
	}
	assert.ErrorIs(t, p.Enqueue(ctx, "Asset", "overflow", "image"), ErrQueueFull)
}

func TestPool_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(3, nil)
	p.Start(ctx, newRecorder().process)
	cancel()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit")
	}
}
