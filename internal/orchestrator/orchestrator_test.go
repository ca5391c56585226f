package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediatools/internal/domain"
	"mediatools/internal/jobs"
	"mediatools/internal/plans"
	"mediatools/internal/quota"
)

type fixedEntitlements struct {
	plan plans.Plan

	mu       sync.Mutex
	recorded int
}

func (f *fixedEntitlements) Resolve(context.Context, domain.Identity, string) plans.Entitlement {
	return plans.Entitlement{Plan: f.plan}
}

func (f *fixedEntitlements) RecordUsage(context.Context, domain.Identity) {
	f.mu.Lock()
	f.recorded++
	f.mu.Unlock()
}

func (f *fixedEntitlements) Recorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded
}

type funcOp struct {
	kind    domain.JobKind
	quality string
	run     func(ctx context.Context, progress ProgressFunc) (Result, error)
}

func (f funcOp) Kind() domain.JobKind { return f.kind }

func (f funcOp) Quality() string { return f.quality }

func (f funcOp) Run(ctx context.Context, progress ProgressFunc) (Result, error) {
	return f.run(ctx, progress)
}

func succeed(location string) funcOp {
	return funcOp{kind: domain.JobKindDownload, run: func(_ context.Context, progress ProgressFunc) (Result, error) {
		progress(50, "halfway")
		return Result{Location: location, Metadata: map[string]any{"title": "clip"}}, nil
	}}
}

func failWith(err error) funcOp {
	return funcOp{kind: domain.JobKindDownload, run: func(context.Context, ProgressFunc) (Result, error) {
		return Result{}, err
	}}
}

func blockUntil(gate <-chan struct{}) funcOp {
	return funcOp{kind: domain.JobKindDownload, run: func(ctx context.Context, _ ProgressFunc) (Result, error) {
		select {
		case <-gate:
			return Result{Location: "files/out.mp4"}, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}}
}

var testPlan = plans.Plan{
	ID:            "test",
	DailyLimit:    domain.Unlimited,
	Access:        plans.AccessAll,
	MaxResolution: 1080,
	MaxConcurrent: 5,
}

type harness struct {
	orch     *Orchestrator
	registry *jobs.Registry
	tracker  *quota.Tracker
	ent      *fixedEntitlements
}

func newHarness(plan plans.Plan, opts ...Option) harness {
	logger := zerolog.Nop()
	registry := jobs.NewRegistry(logger)
	tracker := quota.NewTracker(plans.Lowest().Limits(), logger)
	ent := &fixedEntitlements{plan: plan}
	return harness{
		orch:     New(registry, tracker, ent, logger, opts...),
		registry: registry,
		tracker:  tracker,
		ent:      ent,
	}
}

func (h harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Wait(ctx); err != nil {
		t.Fatalf("jobs did not finish: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var user = domain.Identity{Key: "user:42", UserID: "42"}

func TestSubmitRunsToCompletion(t *testing.T) {
	h := newHarness(testPlan)

	job, err := h.orch.Submit(context.Background(), Request{
		Identity:  user,
		Operation: succeed("files/clip.mp4"),
		Metadata:  map[string]any{"source": "https://youtu.be/x"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("submit returned status %q", job.Status)
	}
	h.wait(t)

	got, err := h.registry.Get(job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusCompleted || got.Progress != 100 || got.Result != "files/clip.mp4" {
		t.Fatalf("unexpected final job: %+v", got)
	}
	if got.Metadata["title"] != "clip" || got.Metadata["source"] != "https://youtu.be/x" || got.Metadata["plan"] != "test" {
		t.Fatalf("metadata not merged: %#v", got.Metadata)
	}
	if rec := h.tracker.Limits(user); rec.Concurrent != 0 || rec.Today != 1 {
		t.Fatalf("tracker after completion: %+v", rec)
	}
	if h.ent.Recorded() != 1 {
		t.Fatalf("durable usage recorded %d times", h.ent.Recorded())
	}
}

func TestSubmitSurvivesCancelledRequest(t *testing.T) {
	h := newHarness(testPlan)
	gate := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	job, err := h.orch.Submit(ctx, Request{Identity: user, Operation: blockUntil(gate)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()
	close(gate)
	h.wait(t)

	if got, _ := h.registry.Get(job.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("job tied to request context: %+v", got)
	}
}

func TestFailedJobHidesDetails(t *testing.T) {
	h := newHarness(testPlan)

	job, err := h.orch.Submit(context.Background(), Request{
		Identity:  user,
		Operation: failWith(errors.New("open /srv/secret/tmp/abc.part: exit status 1")),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.wait(t)

	got, _ := h.registry.Get(job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Error != genericFailure || strings.Contains(got.Error, "/srv") {
		t.Fatalf("error leaked details: %q", got.Error)
	}
	if h.ent.Recorded() != 0 {
		t.Fatalf("failed job recorded durable usage")
	}
}

func TestPublicErrorMessageIsKept(t *testing.T) {
	h := newHarness(testPlan)
	job, _ := h.orch.Submit(context.Background(), Request{
		Identity:  user,
		Operation: failWith(domain.NewPublicError("Video is unavailable.", errors.New("yt-dlp: ERROR 410"))),
	})
	h.wait(t)
	if got, _ := h.registry.Get(job.ID); got.Error != "Video is unavailable." {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestPanickingOperationReleasesSlot(t *testing.T) {
	h := newHarness(testPlan)
	op := funcOp{kind: domain.JobKindHash, run: func(context.Context, ProgressFunc) (Result, error) {
		panic("boom")
	}}

	job, err := h.orch.Submit(context.Background(), Request{Identity: user, Operation: op})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.wait(t)

	got, _ := h.registry.Get(job.ID)
	if got.Status != domain.JobStatusFailed || got.Error != genericFailure {
		t.Fatalf("panicking job: %+v", got)
	}
	if rec := h.tracker.Limits(user); rec.Concurrent != 0 {
		t.Fatalf("concurrent = %d after panic", rec.Concurrent)
	}
}

func TestRepeatedFailuresLeaveNoSlotsHeld(t *testing.T) {
	plan := testPlan
	plan.MaxConcurrent = 1
	h := newHarness(plan)

	for i := 0; i < 100; i++ {
		if _, err := h.orch.Submit(context.Background(), Request{Identity: user, Operation: failWith(errors.New("ffmpeg exited"))}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		h.wait(t)
	}

	if rec := h.tracker.Limits(user); rec.Concurrent != 0 {
		t.Fatalf("concurrent = %d after 100 failures", rec.Concurrent)
	}
	if stats := h.registry.Counts(); stats.Failed != 100 {
		t.Fatalf("failed jobs = %d", stats.Failed)
	}
}

func TestJobTimeoutFailsJob(t *testing.T) {
	h := newHarness(testPlan, WithJobTimeout(20*time.Millisecond))
	job, err := h.orch.Submit(context.Background(), Request{Identity: user, Operation: blockUntil(make(chan struct{}))})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.wait(t)
	got, _ := h.registry.Get(job.ID)
	if got.Status != domain.JobStatusFailed || !strings.Contains(got.Error, "too long") {
		t.Fatalf("timed out job: %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(testPlan)
	cases := []Request{
		{Operation: succeed("x")},
		{Identity: user},
	}
	for _, req := range cases {
		if _, err := h.orch.Submit(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}
	}
	if stats := h.registry.Counts(); stats.TotalCreated != 0 {
		t.Fatalf("invalid request created a job")
	}
}

func TestSubmitEnforcesPlanAccess(t *testing.T) {
	h := newHarness(plans.Get(plans.Free))

	op := funcOp{kind: domain.JobKindConvert, run: func(context.Context, ProgressFunc) (Result, error) { return Result{}, nil }}
	if _, err := h.orch.Submit(context.Background(), Request{Identity: user, Operation: op}); !errors.Is(err, domain.ErrPlanRequired) {
		t.Fatalf("expected ErrPlanRequired, got %v", err)
	}

	hd := succeed("x")
	hd.quality = "1080p"
	if _, err := h.orch.Submit(context.Background(), Request{Identity: user, Operation: hd}); !errors.Is(err, domain.ErrQualityNotAllowed) {
		t.Fatalf("expected ErrQualityNotAllowed, got %v", err)
	}

	if rec := h.tracker.Limits(user); rec.Today != 0 || rec.Concurrent != 0 {
		t.Fatalf("rejected requests charged quota: %+v", rec)
	}
	if stats := h.registry.Counts(); stats.TotalCreated != 0 {
		t.Fatalf("rejected requests created jobs")
	}
}

func TestDailyAndConcurrencyScenario(t *testing.T) {
	plan := testPlan
	plan.DailyLimit = 5
	plan.MaxConcurrent = 2
	h := newHarness(plan)
	ctx := context.Background()
	submit := func(op Operation) (domain.Job, error) {
		return h.orch.Submit(ctx, Request{Identity: user, Operation: op})
	}

	gate1 := make(chan struct{})
	gate2 := make(chan struct{})
	job1, err := submit(blockUntil(gate1))
	if err != nil {
		t.Fatalf("job 1: %v", err)
	}
	if _, err := submit(blockUntil(gate2)); err != nil {
		t.Fatalf("job 2: %v", err)
	}
	if _, err := submit(succeed("x")); !errors.Is(err, domain.ErrConcurrencyLimit) {
		t.Fatalf("job 3: expected concurrency limit, got %v", err)
	}

	close(gate1)
	waitFor(t, func() bool { return h.tracker.Limits(user).Concurrent == 1 })
	if got, _ := h.registry.Get(job1.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("job 1 status %q", got.Status)
	}

	gate3 := make(chan struct{})
	if _, err := submit(blockUntil(gate3)); err != nil {
		t.Fatalf("job after slot freed: %v", err)
	}
	close(gate2)
	close(gate3)
	h.wait(t)

	for i := 0; i < 2; i++ {
		if _, err := submit(succeed("x")); err != nil {
			t.Fatalf("job %d: %v", i+4, err)
		}
		h.wait(t)
	}

	if _, err := submit(succeed("x")); !errors.Is(err, domain.ErrDailyLimit) {
		t.Fatalf("6th job: expected daily limit, got %v", err)
	}
	if rec := h.tracker.Limits(user); rec.Concurrent != 0 || rec.Today != 5 {
		t.Fatalf("final record: %+v", rec)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	h := newHarness(testPlan)
	gate := make(chan struct{})
	defer close(gate)
	if _, err := h.orch.Submit(context.Background(), Request{Identity: user, Operation: blockUntil(gate)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.orch.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}
