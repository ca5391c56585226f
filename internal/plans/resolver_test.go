package plans

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"mediatools/internal/domain"
)

type stubPlans struct {
	plan string
	err  error
}

func (s stubPlans) PlanForUser(context.Context, string) (string, error) {
	return s.plan, s.err
}

type stubUsage struct {
	count    int
	err      error
	recorded int
}

func (s *stubUsage) CurrentUsage(context.Context, string) (int, error) {
	return s.count, s.err
}

func (s *stubUsage) RecordUsage(_ context.Context, _ string, delta int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.recorded += delta
	s.count += delta
	return s.count, nil
}

func TestResolveAnonymousUsesLowestTier(t *testing.T) {
	usage := &stubUsage{count: 9}
	r := NewResolver(zerolog.Nop(), stubPlans{plan: "exclusive"}, usage)

	ent := r.Resolve(context.Background(), domain.Identity{Key: "ip:1.1.1.1", IP: "1.1.1.1"}, "pro")
	if ent.Plan.ID != Free || ent.UsedToday != 0 {
		t.Fatalf("anonymous entitlement = %+v", ent)
	}
}

func TestResolveUsesStoredPlan(t *testing.T) {
	r := NewResolver(zerolog.Nop(), stubPlans{plan: "Premium"})
	ent := r.Resolve(context.Background(), domain.Identity{Key: "user:1", UserID: "1"}, "")
	if ent.Plan.ID != Pro {
		t.Fatalf("plan = %q, want pro", ent.Plan.ID)
	}
}

func TestResolveFallsBackToClaim(t *testing.T) {
	id := domain.Identity{Key: "user:1", UserID: "1"}
	for _, store := range []domain.PlanStore{
		stubPlans{err: domain.ErrNotFound},
		stubPlans{err: errors.New("connection refused")},
		nil,
	} {
		r := NewResolver(zerolog.Nop(), store)
		if ent := r.Resolve(context.Background(), id, "exclusive"); ent.Plan.ID != Exclusive {
			t.Fatalf("plan = %q, want exclusive", ent.Plan.ID)
		}
	}
}

func TestResolveReconcilesUsageByMax(t *testing.T) {
	aggregate := &stubUsage{count: 4}
	profile := &stubUsage{count: 6}
	broken := &stubUsage{err: errors.New("timeout")}
	r := NewResolver(zerolog.Nop(), stubPlans{plan: "free"}, aggregate, profile, broken)

	ent := r.Resolve(context.Background(), domain.Identity{Key: "user:1", UserID: "1"}, "")
	if ent.UsedToday != 6 {
		t.Fatalf("used today = %d, want 6", ent.UsedToday)
	}
	if ent.Remaining != Get(Free).DailyLimit-6 {
		t.Fatalf("remaining = %d", ent.Remaining)
	}
}

func TestRecordUsageWritesEveryStore(t *testing.T) {
	a := &stubUsage{}
	b := &stubUsage{err: errors.New("down")}
	c := &stubUsage{}
	r := NewResolver(zerolog.Nop(), nil, a, b, c)

	r.RecordUsage(context.Background(), domain.Identity{Key: "user:1", UserID: "1"})
	r.RecordUsage(context.Background(), domain.Identity{Key: "ip:1.1.1.1", IP: "1.1.1.1"})

	if a.recorded != 1 || c.recorded != 1 {
		t.Fatalf("recorded a=%d c=%d, want 1 each", a.recorded, c.recorded)
	}
}
