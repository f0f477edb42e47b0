// Package processing runs attachment processing in-process on a pool of
// goroutines fed by a buffered channel. It stands in for the Redis job system
// when the server runs alone.
package processing

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/logging"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room left.
var ErrQueueFull = errors.New("processing queue full")

// ProcessFunc processes one attachment.
type ProcessFunc func(ctx context.Context, recordType, recordID, attachment string) error

// Job names the attachment to process.
type Job struct {
	RecordType string
	RecordID   string
	Attachment string
}

func (j Job) key() string { return j.RecordType + "/" + j.RecordID + "/" + j.Attachment }

// state tracks one attachment between Enqueue and the end of its run.
type state struct {
	queued  bool
	running bool
	rerun   bool
}

// Pool consumes Jobs. At most one run per attachment is in flight: a job
// enqueued while the same attachment is queued is dropped, and one enqueued
// while it runs triggers a single rerun afterwards.
type Pool struct {
	queue   chan Job
	workers int
	log     *zap.Logger

	mu   sync.Mutex
	jobs map[string]*state
	wg   sync.WaitGroup
}

// New builds a Pool with queue capacity tied to worker count.
func New(workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:   make(chan Job, workers*4),
		workers: workers,
		log:     logging.OrNop(log),
		jobs:    map[string]*state{},
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context, fn ProcessFunc) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx, fn)
		}()
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() { p.wg.Wait() }

// Enqueue schedules processing of one attachment. It implements
// attachment.Enqueuer.
func (p *Pool) Enqueue(_ context.Context, recordType, recordID, attachment string) error {
	job := Job{RecordType: recordType, RecordID: recordID, Attachment: attachment}
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.jobs[job.key()]
	if ok && st.queued {
		return nil
	}
	if ok && st.running {
		st.rerun = true
		return nil
	}
	select {
	case p.queue <- job:
	default:
		p.log.Warn("processing queue full, dropping job", zap.String("attachment", job.key()))
		return ErrQueueFull
	}
	if !ok {
		st = &state{}
		p.jobs[job.key()] = st
	}
	st.queued = true
	return nil
}

func (p *Pool) worker(ctx context.Context, fn ProcessFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.run(ctx, fn, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, fn ProcessFunc, job Job) {
	key := job.key()
	p.mu.Lock()
	st := p.jobs[key]
	st.queued, st.running = false, true
	p.mu.Unlock()

	for {
		if err := fn(ctx, job.RecordType, job.RecordID, job.Attachment); err != nil {
			p.log.Error("processing failed", zap.String("attachment", key), zap.Error(err))
		}
		p.mu.Lock()
		if !st.rerun || ctx.Err() != nil {
			delete(p.jobs, key)
			p.mu.Unlock()
			return
		}
		st.rerun = false
		p.mu.Unlock()
	}
}
