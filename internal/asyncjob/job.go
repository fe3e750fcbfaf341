// Package asyncjob implements the async-job manager: submission to a
// worker pool, status tracking, and the probe/get retrieval contract with
// at-most-once delivery.
//
// The job table is a plain map guarded by a RWMutex rather than a
// lock-free structure — the critical section on the hot path (lookup,
// insert, the get-then-delete pair) is a few map operations, and a mutex
// keeps the at-most-once guarantee trivial to reason about: once a job is
// seen as finished, asyncGet re-checks that the entry is still present and
// deletes it inside one write-locked critical section, so two concurrent
// Get calls on the same id race on the mutex and at most one observes the
// entry.
package asyncjob

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the observable lifecycle state of an async job.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is a single async-job record. ID is a UUID v4, never reused.
type Job struct {
	ID            string
	SuggestedWait time.Duration
	SubmittedAt   time.Time

	mu          sync.Mutex
	status      Status
	result      any
	err         error
	completedAt time.Time
}

func (j *Job) snapshotStatus() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) finish(result any, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = result
	j.err = err
	j.completedAt = time.Now()
	if err != nil {
		j.status = StatusFailed
	} else {
		j.status = StatusCompleted
	}
}

// Manager owns the job table shared by request goroutines.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	pool WorkerPool

	ttl      time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager builds a Manager that submits handlers to pool.
func NewManager(pool WorkerPool) *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
		pool: pool,
		stop: make(chan struct{}),
	}
}

// WithTTL enables the opt-in reaper: jobs that have completed (or failed)
// and sat unclaimed for longer than ttl are evicted from the table. It is
// disabled by default (§9 "Job-table growth" — the reference has no sweep
// at all; this rewrite adds one but keeps it off unless explicitly
// configured). Call at most once, before the manager starts receiving
// submissions.
func (m *Manager) WithTTL(ttl time.Duration) *Manager {
	m.ttl = ttl
	if ttl > 0 {
		go m.reapLoop(ttl)
	}
	return m
}

// Close stops the reaper goroutine, if one was started.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) reapLoop(ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.reapOnce(now, ttl)
		}
	}
}

func (m *Manager) reapOnce(now time.Time, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		job.mu.Lock()
		expired := job.status != StatusInProgress && now.Sub(job.completedAt) > ttl
		job.mu.Unlock()
		if expired {
			delete(m.jobs, id)
		}
	}
}

// Submit assigns a fresh job id, registers the job, and hands handler to
// the worker pool. handler itself always runs asynchronously on its own
// goroutine, but Submit can block the caller: WorkerPool.Go is allowed to
// wait for a free pool slot before returning, so once the configured
// worker count is saturated, Submit blocks until a slot frees up — the
// caller observes backpressure rather than unbounded queuing.
func (m *Manager) Submit(handler func() (any, error), suggestedWait time.Duration) *Job {
	if suggestedWait <= 0 {
		suggestedWait = 5 * time.Second
	}
	job := &Job{
		ID:            uuid.NewString(),
		SuggestedWait: suggestedWait,
		SubmittedAt:   time.Now(),
		status:        StatusInProgress,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.pool.Go(func() {
		result, err := handler()
		job.finish(result, err)
	})

	return job
}

// Probe reports the current status of a job without mutating any state.
// ok is false when id is unknown (never registered, or already retrieved).
func (m *Manager) Probe(id string) (status Status, suggestedWait time.Duration, ok bool) {
	m.mu.RLock()
	job, found := m.jobs[id]
	m.mu.RUnlock()
	if !found {
		return "", 0, false
	}
	return job.snapshotStatus(), job.SuggestedWait, true
}

// Outcome is the result of a completed (or failed) Get.
type Outcome struct {
	Result        any
	Err           error
	SuggestedWait time.Duration
}

// GetState is the three-way result of attempting to retrieve a job: it is
// either unknown, still running, or ready (in which case the record is
// removed from the table as part of this call — at most one caller ever
// observes StateReady for a given id).
type GetState int

const (
	StateUnknown GetState = iota
	StateInProgress
	StateReady
)

// Get attempts to retrieve and release a completed job. If the job is
// still running, the table is left untouched and StateInProgress is
// returned along with the job's suggested wait. If the job is unknown
// (never existed, or a previous Get already claimed it), StateUnknown is
// returned. Otherwise the job is deleted from the table and StateReady is
// returned with its outcome — this is the single point where at-most-once
// delivery is enforced.
func (m *Manager) Get(id string) (GetState, Outcome) {
	m.mu.RLock()
	job, found := m.jobs[id]
	m.mu.RUnlock()
	if !found {
		return StateUnknown, Outcome{}
	}

	job.mu.Lock()
	if job.status == StatusInProgress {
		wait := job.SuggestedWait
		job.mu.Unlock()
		return StateInProgress, Outcome{SuggestedWait: wait}
	}
	result, err := job.result, job.err
	job.mu.Unlock()

	m.mu.Lock()
	if _, stillPresent := m.jobs[id]; !stillPresent {
		m.mu.Unlock()
		// A concurrent Get already won the race and removed the job.
		return StateUnknown, Outcome{}
	}
	delete(m.jobs, id)
	m.mu.Unlock()

	return StateReady, Outcome{Result: result, Err: err}
}
