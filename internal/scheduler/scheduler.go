// Package scheduler implements spec §4.8: a per-chat-thread FIFO queue
// ensuring at most one run per thread is active, with no ordering relation
// across distinct threads.
package scheduler

import (
	"context"
	"sync"
)

// Job is one unit of queued work for a thread.
type Job func(ctx context.Context)

// Scheduler holds one FIFO queue and driver goroutine per active thread.
// Queues are created lazily on first submission and torn down once they
// drain, so a quiet thread costs nothing at rest.
type Scheduler struct {
	ctx context.Context

	mu      sync.Mutex
	threads map[string]*threadQueue
}

type threadQueue struct {
	jobs chan Job
}

// New builds a Scheduler whose driver goroutines exit when ctx is done.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{ctx: ctx, threads: map[string]*threadQueue{}}
}

// Submit enqueues job for threadID. If no queue exists for this thread, one
// is created along with its driver goroutine; otherwise job is appended to
// the existing queue for the driver to pick up. The enqueue itself is O(1)
// and never waits on job execution.
func (s *Scheduler) Submit(threadID string, job Job) {
	s.mu.Lock()
	q := s.getOrCreateLocked(threadID)
	q.jobs <- job
	s.mu.Unlock()
}

// NoteThreadKnown marks threadID active without enqueueing work, per spec
// §4.8: used when a runner reveals a thread's resume token mid-stream so
// later messages on that thread queue correctly rather than racing a queue
// creation that hasn't happened yet.
func (s *Scheduler) NoteThreadKnown(threadID string) {
	s.mu.Lock()
	s.getOrCreateLocked(threadID)
	s.mu.Unlock()
}

// getOrCreateLocked must be called with s.mu held.
func (s *Scheduler) getOrCreateLocked(threadID string) *threadQueue {
	q, ok := s.threads[threadID]
	if ok {
		return q
	}
	q = &threadQueue{jobs: make(chan Job, 64)}
	s.threads[threadID] = q
	go s.drive(threadID, q)
	return q
}

// drive runs queued jobs for one thread strictly sequentially. Retirement
// (removing the map entry once the queue is empty) happens under the same
// lock Submit uses to enqueue, so a job can never be appended to a queue
// whose driver has already decided to exit.
func (s *Scheduler) drive(threadID string, q *threadQueue) {
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			if s.threads[threadID] == q {
				delete(s.threads, threadID)
			}
			s.mu.Unlock()
			return
		case job := <-q.jobs:
			job(s.ctx)
		}

		s.mu.Lock()
		if len(q.jobs) == 0 {
			delete(s.threads, threadID)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// ActiveThreads reports how many threads currently have a live queue. Used
// by diagnostics/tests, not by the orchestration core itself.
func (s *Scheduler) ActiveThreads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}
