// Package jobs tracks slow, externally executed extraction work per document.
//
// Callers Submit a document id and Poll until the job is ready. Submission is
// idempotent while a job is in flight, polling never blocks, and expiry is a
// signal to the caller only: the backing work keeps running and a late result
// still reaches the job.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/google/uuid"
)

// State is the lifecycle position of a job.
type State int32

const (
	StateSubmitted State = iota
	StatePending
	StateReady
	StateExpired
	StateFailed
)

var stateNames = [...]string{"submitted", "pending", "ready", "expired", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Defaults for Options left at zero.
const (
	DefaultMaxWait        = 5 * time.Minute
	DefaultBackingTimeout = 15 * time.Minute
	DefaultRetention      = time.Hour
	maxDocumentIDLength   = 1024
)

// ErrClosed is returned by Submit once Close has been called. It wraps
// core.ErrTooManyRequests so callers report it as temporary unavailability.
var ErrClosed = fmt.Errorf("%w: job orchestrator is shutting down", core.ErrTooManyRequests)

// Result is what a finished backing operation produced.
type Result struct {
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text,omitempty"`
	Entities   content.EntityMap `json:"entities"`
}

// Handle identifies a submitted job.
type Handle struct {
	JobID       string    `json:"job_id"`
	DocumentID  string    `json:"document_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Status is a point-in-time view of a job.
type Status struct {
	Handle
	State     State     `json:"state"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Late      bool      `json:"late,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// job holds per-document state. Transitions use compare-and-swap on state;
// result and errMsg are stored before the transition that publishes them.
type job struct {
	handle   Handle
	deadline time.Time

	state   atomic.Int32
	result  atomic.Pointer[Result]
	errMsg  atomic.Pointer[string]
	late    atomic.Bool
	updated atomic.Int64
}

func (j *job) load() State {
	return State(j.state.Load())
}

func (j *job) transition(from, to State, now time.Time) bool {
	if j.state.CompareAndSwap(int32(from), int32(to)) {
		j.updated.Store(now.UnixNano())
		return true
	}
	return false
}

func (j *job) status() Status {
	st := Status{
		Handle:    j.handle,
		State:     j.load(),
		Late:      j.late.Load(),
		UpdatedAt: time.Unix(0, j.updated.Load()),
	}
	switch st.State {
	case StateReady:
		st.Result = j.result.Load()
	case StateFailed:
		if msg := j.errMsg.Load(); msg != nil {
			st.Error = *msg
		}
	}
	return st
}

// Options configures an Orchestrator.
type Options struct {
	// MaxWait is how long a job may stay pending before Poll reports expired.
	MaxWait time.Duration
	// BackingTimeout bounds the backing operation itself.
	BackingTimeout time.Duration
	// Retention is how long terminal jobs are kept for polling.
	Retention time.Duration
	// Limiter optionally bounds concurrent backing operations.
	Limiter *core.Limiter
}

// Orchestrator runs backing operations and tracks their jobs by document id.
type Orchestrator struct {
	backend Backend
	opts    Options
	jobs    sync.Map // document id -> *job

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// mu orders wg.Add in start against Close.
	mu     sync.Mutex
	closed bool

	starts atomic.Int64
	now    func() time.Time
}

// New creates an orchestrator dispatching work to backend.
func New(backend Backend, opts Options) *Orchestrator {
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.BackingTimeout <= 0 {
		opts.BackingTimeout = DefaultBackingTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend: backend,
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// ValidateDocumentID rejects empty, oversized or control-character ids.
func ValidateDocumentID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > maxDocumentIDLength {
		return core.NewValidationError("document_id", core.ErrInvalidDocumentID)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return core.NewValidationError("document_id", core.ErrInvalidDocumentID)
		}
	}
	return nil
}

// Submit starts a job for documentID, or returns the handle of the job that
// already exists for it. A failed job is replaced by a fresh one. After
// Close, Submit returns ErrClosed.
func (o *Orchestrator) Submit(ctx context.Context, documentID string) (Handle, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return Handle{}, err
	}
	if o.isClosed() {
		return Handle{}, ErrClosed
	}

	now := o.now()
	fresh := &job{
		handle: Handle{
			JobID:       uuid.New().String(),
			DocumentID:  documentID,
			SubmittedAt: now,
		},
		deadline: now.Add(o.opts.MaxWait),
	}
	fresh.updated.Store(now.UnixNano())

	for {
		actual, loaded := o.jobs.LoadOrStore(documentID, fresh)
		if !loaded {
			if err := o.start(ctx, fresh); err != nil {
				return Handle{}, err
			}
			return fresh.handle, nil
		}

		existing := actual.(*job)
		if existing.load() != StateFailed {
			return existing.handle, nil
		}
		if o.jobs.CompareAndSwap(documentID, existing, fresh) {
			slog.Info("replacing failed job", "document_id", documentID, "previous_job_id", existing.handle.JobID)
			if err := o.start(ctx, fresh); err != nil {
				return Handle{}, err
			}
			return fresh.handle, nil
		}
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// start launches the backing work for j. If Close won the race since
// Submit checked, j is dropped again and ErrClosed returned.
func (o *Orchestrator) start(ctx context.Context, j *job) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.jobs.CompareAndDelete(j.handle.DocumentID, j)
		return ErrClosed
	}
	o.wg.Add(1)
	o.mu.Unlock()

	if !j.transition(StateSubmitted, StatePending, o.now()) {
		o.wg.Done()
		return nil
	}
	o.starts.Add(1)

	slog.InfoContext(ctx, "job submitted", "document_id", j.handle.DocumentID, "job_id", j.handle.JobID)

	// The backing work outlives the submitting request.
	go o.run(j)
	return nil
}

func (o *Orchestrator) run(j *job) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(o.baseCtx, o.opts.BackingTimeout)
	defer cancel()

	start := o.now()
	logger := slog.With("document_id", j.handle.DocumentID, "job_id", j.handle.JobID)

	if o.opts.Limiter != nil {
		if err := o.opts.Limiter.Acquire(ctx); err != nil {
			o.fail(j, err, logger)
			return
		}
		defer o.opts.Limiter.Release()
	}

	res, err := o.backend.Run(ctx, j.handle.DocumentID)
	if err != nil {
		o.fail(j, err, logger)
		return
	}
	if res == nil {
		res = &Result{}
	}
	if res.DocumentID == "" {
		res.DocumentID = j.handle.DocumentID
	}
	if res.Entities == nil {
		res.Entities = content.EntityMap{}
	}

	j.result.Store(res)
	now := o.now()
	switch {
	case j.transition(StatePending, StateReady, now):
		logger.Info("job ready", "entities", len(res.Entities), "duration_ms", now.Sub(start).Milliseconds())
	case j.transition(StateExpired, StateReady, now):
		j.late.Store(true)
		logger.Warn("late result for expired job", "entities", len(res.Entities), "duration_ms", now.Sub(start).Milliseconds())
	}
}

func (o *Orchestrator) fail(j *job, err error, logger *slog.Logger) {
	msg := err.Error()
	j.errMsg.Store(&msg)
	now := o.now()
	switch {
	case j.transition(StatePending, StateFailed, now):
		logger.Warn("job failed", "error", err)
	case j.transition(StateExpired, StateFailed, now):
		j.late.Store(true)
		logger.Warn("expired job failed", "error", err)
	}
}

// expireIfOverdue moves a pending job past its deadline to expired.
func (o *Orchestrator) expireIfOverdue(j *job, now time.Time) {
	if now.After(j.deadline) && j.transition(StatePending, StateExpired, now) {
		slog.Info("job expired", "document_id", j.handle.DocumentID, "job_id", j.handle.JobID,
			"waited_ms", now.Sub(j.handle.SubmittedAt).Milliseconds())
	}
}

// Poll returns the current status of the job for documentID without
// blocking. Unknown ids yield a NotFoundError.
func (o *Orchestrator) Poll(documentID string) (Status, error) {
	v, ok := o.jobs.Load(documentID)
	if !ok {
		return Status{}, &core.NotFoundError{Kind: "job", Key: documentID}
	}
	j := v.(*job)
	o.expireIfOverdue(j, o.now())
	return j.status(), nil
}

// Starts returns how many backing operations have been launched.
func (o *Orchestrator) Starts() int64 {
	return o.starts.Load()
}

// Len returns the number of tracked jobs.
func (o *Orchestrator) Len() int {
	n := 0
	o.jobs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep expires overdue jobs and forgets terminal jobs older than the
// retention period. It returns how many jobs were removed.
func (o *Orchestrator) Sweep() int {
	now := o.now()
	removed := 0
	o.jobs.Range(func(key, v any) bool {
		j := v.(*job)
		o.expireIfOverdue(j, now)
		if j.load().Terminal() && now.Sub(time.Unix(0, j.updated.Load())) > o.opts.Retention {
			if o.jobs.CompareAndDelete(key, j) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Close refuses further submissions, cancels in-flight backing work and
// waits for it to return or for ctx to end.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
