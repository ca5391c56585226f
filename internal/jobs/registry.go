// Package jobs keeps the in-memory record of background jobs that clients poll.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediatools/internal/domain"
)

// Registry stores jobs by id. Records are never shared with callers: every
// read returns a copy.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	created int64

	now    func() time.Time
	logger zerolog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		jobs:   make(map[string]*domain.Job),
		now:    time.Now,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a pending job and returns it.
func (r *Registry) Create(kind domain.JobKind, owner string) domain.Job {
	now := r.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.created++
	r.mu.Unlock()

	return job.Clone()
}

// Get returns a copy of the job or domain.ErrNotFound.
func (r *Registry) Get(id string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies a partial update. Finished jobs are left untouched and
// report domain.ErrJobTerminal. Progress never moves backwards.
func (r *Registry) Update(id string, upd domain.JobUpdate) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return job.Clone(), domain.ErrJobTerminal
	}
	if upd.Status != nil && !job.Status.CanTransition(*upd.Status) {
		return job.Clone(), domain.ErrInvalidTransition
	}

	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Progress != nil {
		if p := clampProgress(*upd.Progress); p > job.Progress {
			job.Progress = p
		}
	}
	if upd.Message != nil {
		job.Message = *upd.Message
	}
	if upd.Result != nil {
		job.Result = *upd.Result
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if len(upd.Metadata) > 0 {
		if job.Metadata == nil {
			job.Metadata = make(map[string]any, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			job.Metadata[k] = v
		}
	}
	job.UpdatedAt = r.now()

	return job.Clone(), nil
}

// Sweep drops every job whose last update is older than retention and
// returns how many were removed. Status is not considered.
func (r *Registry) Sweep(retention time.Duration) int {
	cutoff := r.now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(retention); n > 0 {
					r.logger.Info().Int("removed", n).Msg("swept expired jobs")
				}
			}
		}
	}()
}

// Counts returns per-status totals from a consistent snapshot.
func (r *Registry) Counts() domain.JobStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.JobStats{
		TotalTracked: len(r.jobs),
		TotalCreated: r.created,
	}
	for _, job := range r.jobs {
		switch job.Status {
		case domain.JobStatusPending:
			stats.Pending++
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
