// Package orchestrator admits jobs and runs them in the background.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediatools/internal/domain"
	"mediatools/internal/jobs"
	"mediatools/internal/plans"
	"mediatools/internal/quota"
)

// ProgressFunc reports percent complete and a short status message.
type ProgressFunc func(percent int, message string)

// Result is what a successful operation hands back.
type Result struct {
	Location string
	Message  string
	Metadata map[string]any
}

// Operation is one unit of external work such as a download or a transcode.
type Operation interface {
	Kind() domain.JobKind
	Run(ctx context.Context, progress ProgressFunc) (Result, error)
}

// QualityBound is implemented by operations that produce output at a
// requested resolution.
type QualityBound interface {
	Quality() string
}

// Entitlements resolves plans and records durable usage.
type Entitlements interface {
	Resolve(ctx context.Context, id domain.Identity, claimPlan string) plans.Entitlement
	RecordUsage(ctx context.Context, id domain.Identity)
}

// Request asks for op to run on behalf of Identity.
type Request struct {
	Identity  domain.Identity
	ClaimPlan string
	Operation Operation
	Metadata  map[string]any
}

// Orchestrator ties admission, the job registry and operation execution
// together.
type Orchestrator struct {
	registry     *jobs.Registry
	tracker      *quota.Tracker
	entitlements Entitlements
	logger       zerolog.Logger

	jobTimeout    time.Duration
	recordTimeout time.Duration
	wg            sync.WaitGroup
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithJobTimeout bounds how long a single operation may run.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.jobTimeout = d
	}
}

// New constructs an Orchestrator.
func New(registry *jobs.Registry, tracker *quota.Tracker, entitlements Entitlements, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:      registry,
		tracker:       tracker,
		entitlements:  entitlements,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
		recordTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates and admits req, registers a pending job and starts the
// operation in the background. Rejections are returned before anything is
// created or charged.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (domain.Job, error) {
	if req.Identity.Key == "" {
		return domain.Job{}, fmt.Errorf("%w: identity is required", domain.ErrInvalidRequest)
	}
	if req.Operation == nil {
		return domain.Job{}, fmt.Errorf("%w: operation is required", domain.ErrInvalidRequest)
	}
	kind := req.Operation.Kind()

	ent := o.entitlements.Resolve(ctx, req.Identity, req.ClaimPlan)
	if !ent.Plan.Allows(kind) {
		return domain.Job{}, fmt.Errorf("%w: %s needs a higher plan than %s", domain.ErrPlanRequired, kind, ent.Plan.ID)
	}
	if qb, ok := req.Operation.(QualityBound); ok && !quota.ValidateQuality(qb.Quality(), ent.Plan.MaxResolution) {
		return domain.Job{}, fmt.Errorf("%w: %s exceeds %dp", domain.ErrQualityNotAllowed, qb.Quality(), ent.Plan.MaxResolution)
	}

	rec, err := o.tracker.Acquire(req.Identity, ent.Plan.Limits(), ent.UsedToday)
	if err != nil {
		o.logger.Info().
			Str("identity", req.Identity.Key).
			Str("kind", string(kind)).
			Int("today", rec.Today).
			Int("concurrent", rec.Concurrent).
			Err(err).
			Msg("job rejected")
		return domain.Job{}, err
	}

	job := o.registry.Create(kind, req.Identity.Key)
	meta := map[string]any{"plan": string(ent.Plan.ID)}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if updated, err := o.registry.Update(job.ID, domain.JobUpdate{Metadata: meta}); err == nil {
		job = updated
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("identity", req.Identity.Key).
		Str("kind", string(kind)).
		Msg("job accepted")

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), job.ID, req)

	return job, nil
}

// Wait blocks until every running job has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
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

func (o *Orchestrator) run(parent context.Context, jobID string, req Request) {
	defer o.wg.Done()
	defer o.tracker.Release(req.Identity)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("job_id", jobID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("operation panicked")
			o.fail(jobID, req, fmt.Errorf("operation panicked: %v", r))
		}
	}()

	log := o.logger.With().
		Str("job_id", jobID).
		Str("identity", req.Identity.Key).
		Str("kind", string(req.Operation.Kind())).
		Logger()

	ctx := parent
	if o.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, o.jobTimeout)
		defer cancel()
	}

	o.update(jobID, domain.JobUpdate{
		Status:  domain.Ptr(domain.JobStatusProcessing),
		Message: domain.Ptr("started"),
	})
	progress := func(percent int, message string) {
		o.update(jobID, domain.JobUpdate{
			Status:   domain.Ptr(domain.JobStatusProcessing),
			Progress: domain.Ptr(percent),
			Message:  domain.Ptr(message),
		})
	}

	started := time.Now()
	res, err := req.Operation.Run(ctx, progress)
	if err != nil {
		o.fail(jobID, req, err)
		return
	}

	message := res.Message
	if message == "" {
		message = "completed"
	}
	o.update(jobID, domain.JobUpdate{
		Status:   domain.Ptr(domain.JobStatusCompleted),
		Progress: domain.Ptr(100),
		Message:  domain.Ptr(message),
		Result:   domain.Ptr(res.Location),
		Metadata: res.Metadata,
	})
	log.Info().Dur("took", time.Since(started)).Str("result", res.Location).Msg("job completed")

	recordCtx, cancel := context.WithTimeout(parent, o.recordTimeout)
	defer cancel()
	o.entitlements.RecordUsage(recordCtx, req.Identity)
}

// fail marks the job failed with a client-safe message. It must not panic:
// it runs from the recover handler.
func (o *Orchestrator) fail(jobID string, req Request, cause error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("job_id", jobID).Interface("panic", r).Msg("failed to record job failure")
		}
	}()
	o.logger.Error().
		Err(cause).
		Str("job_id", jobID).
		Str("identity", req.Identity.Key).
		Msg("job failed")
	o.update(jobID, domain.JobUpdate{
		Status:  domain.Ptr(domain.JobStatusFailed),
		Message: domain.Ptr("failed"),
		Error:   domain.Ptr(PublicMessage(cause)),
	})
}

func (o *Orchestrator) update(jobID string, upd domain.JobUpdate) {
	if _, err := o.registry.Update(jobID, upd); err != nil {
		o.logger.Debug().Err(err).Str("job_id", jobID).Msg("job update skipped")
	}
}
