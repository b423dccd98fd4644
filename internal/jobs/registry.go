package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snl-sec/snlscan/internal/model"
)

// SnapshotStore persists job state across process restarts.
// SaveJob upserts the full job record keyed by scan id; DeleteJob
// removes it, so deletion survives a restart like every other mutation.
type SnapshotStore interface {
	SaveJob(ctx context.Context, job *model.ScanJob) error
	DeleteJob(ctx context.Context, scanID string) error
}

// Registry is the authoritative, in-memory job table.
//
// Design decision: the registry is the only writer of job state. All
// reads return deep copies and all writes go through lifecycle-checked
// transition methods, so callers can never observe a half-mutated job or
// push one into an illegal state. Persistence is write-through and best
// effort: a snapshot failure is logged but never rejects a transition
// that is already valid in memory, because the in-memory table is the
// source of truth while the process lives. Snapshots run under the table
// lock, so the durable copy always sees mutations in the same order they
// were applied; a slow write for an earlier state can never land after a
// later one.
type Registry struct {
	mu    sync.Mutex
	table map[string]*model.ScanJob

	store  SnapshotStore
	logger *slog.Logger
	now    func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSnapshotStore enables write-through persistence of job state.
func WithSnapshotStore(store SnapshotStore) RegistryOption {
	return func(r *Registry) {
		r.store = store
	}
}

// WithRegistryLogger sets a custom logger for the registry.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty job registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		table: make(map[string]*model.ScanJob),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Create accepts a new scan job in the pending state and returns a copy.
func (r *Registry) Create(ctx context.Context, target string, mode model.ScanMode, ownerID string) *model.ScanJob {
	job := &model.ScanJob{
		ScanID:      uuid.NewString(),
		Target:      target,
		Mode:        mode,
		OwnerID:     ownerID,
		Status:      model.StatusPending,
		SubmittedAt: r.now().UTC(),
	}

	r.mu.Lock()
	r.table[job.ScanID] = job
	clone := job.Clone()
	r.snapshot(ctx, clone)
	r.mu.Unlock()

	r.logger.Info("job accepted",
		"scan_id", job.ScanID,
		"target", target,
		"mode", mode,
	)
	return clone
}

// Get returns a copy of the job with the given scan id. When ownerID is
// non-empty, jobs belonging to other owners are reported as not found
// rather than forbidden, so ids cannot be probed across owners.
func (r *Registry) Get(scanID, ownerID string) (*model.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.table[scanID]
	if !ok || !visibleTo(job, ownerID) {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrJobNotFound)
	}
	return job.Clone(), nil
}

// List returns copies of all jobs visible to ownerID, newest first.
func (r *Registry) List(ownerID string) []*model.ScanJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.ScanJob, 0, len(r.table))
	for _, job := range r.table {
		if visibleTo(job, ownerID) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Delete removes a terminal job from the registry and from the snapshot
// store. Pending and running jobs cannot be deleted; cancel them first.
func (r *Registry) Delete(ctx context.Context, scanID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.table[scanID]
	if !ok || !visibleTo(job, ownerID) {
		return fmt.Errorf("scan %s: %w", scanID, ErrJobNotFound)
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("scan %s is %s: %w", scanID, job.Status, ErrIllegalTransition)
	}
	delete(r.table, scanID)

	// Best effort like every snapshot: a deleted job must not resurface
	// from the store after a restart.
	if r.store != nil {
		if err := r.store.DeleteJob(ctx, scanID); err != nil {
			r.logger.Warn("job snapshot delete failed",
				"scan_id", scanID,
				"error", err,
			)
		}
	}
	return nil
}

// Start transitions a pending job to running and stamps StartedAt.
func (r *Registry) Start(ctx context.Context, scanID string) error {
	return r.transition(ctx, scanID, "", model.StatusRunning, func(job *model.ScanJob) {
		t := r.now().UTC()
		job.StartedAt = &t
	})
}

// Complete transitions a running job to completed and attaches its result.
func (r *Registry) Complete(ctx context.Context, scanID string, result *model.ScanResult) error {
	return r.transition(ctx, scanID, "", model.StatusCompleted, func(job *model.ScanJob) {
		t := r.now().UTC()
		job.CompletedAt = &t
		job.Result = result
	})
}

// Fail transitions a job to failed and records the cause.
func (r *Registry) Fail(ctx context.Context, scanID, cause string) error {
	return r.transition(ctx, scanID, "", model.StatusFailed, func(job *model.ScanJob) {
		t := r.now().UTC()
		job.CompletedAt = &t
		job.Error = cause
	})
}

// Cancel transitions a pending or running job to cancelled on behalf of
// ownerID. Cancellation of an already-terminal job is rejected.
func (r *Registry) Cancel(ctx context.Context, scanID, ownerID string) error {
	return r.transition(ctx, scanID, ownerID, model.StatusCancelled, func(job *model.ScanJob) {
		t := r.now().UTC()
		job.CompletedAt = &t
		job.Error = "cancelled by caller"
	})
}

// transition applies one lifecycle-checked status change. The mutate
// callback runs only after the transition is validated, so a rejected
// transition leaves the stored job untouched.
func (r *Registry) transition(ctx context.Context, scanID, ownerID string, next model.JobStatus, mutate func(*model.ScanJob)) error {
	r.mu.Lock()

	job, ok := r.table[scanID]
	if !ok || !visibleTo(job, ownerID) {
		r.mu.Unlock()
		return fmt.Errorf("scan %s: %w", scanID, ErrJobNotFound)
	}
	if !job.Status.CanTransitionTo(next) {
		from := job.Status
		r.mu.Unlock()
		return fmt.Errorf("scan %s: %s -> %s: %w", scanID, from, next, ErrIllegalTransition)
	}

	job.Status = next
	if mutate != nil {
		mutate(job)
	}
	r.snapshot(ctx, job.Clone())
	r.mu.Unlock()

	r.logger.Info("job transitioned", "scan_id", scanID, "status", next)
	return nil
}

// snapshot write-through persists the given job copy, if a store is
// configured. Failures are logged, never propagated. Must be called with
// r.mu held so snapshots reach the store in mutation order.
func (r *Registry) snapshot(ctx context.Context, job *model.ScanJob) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveJob(ctx, job); err != nil {
		r.logger.Warn("job snapshot failed",
			"scan_id", job.ScanID,
			"error", err,
		)
	}
}

func visibleTo(job *model.ScanJob, ownerID string) bool {
	return ownerID == "" || job.OwnerID == ownerID
}
