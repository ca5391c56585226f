package plans

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mediatools/internal/domain"
)

// Entitlement is the resolved plan and durable usage for one identity.
type Entitlement struct {
	Plan      Plan `json:"plan"`
	UsedToday int  `json:"used_today"`
	Remaining int  `json:"remaining"`
}

// Resolver looks up plans and durable usage for authenticated identities.
// Anonymous identities always get the lowest tier and rely on in-memory
// counters only.
type Resolver struct {
	plans  domain.PlanStore
	usage  []domain.UsageStore
	logger zerolog.Logger
}

// NewResolver builds a Resolver. planStore may be nil and usage may be empty
// when no durable storage is configured.
func NewResolver(logger zerolog.Logger, planStore domain.PlanStore, usage ...domain.UsageStore) *Resolver {
	stores := make([]domain.UsageStore, 0, len(usage))
	for _, s := range usage {
		if s != nil {
			stores = append(stores, s)
		}
	}
	return &Resolver{
		plans:  planStore,
		usage:  stores,
		logger: logger.With().Str("component", "plans").Logger(),
	}
}

// Resolve returns the entitlement for id. claimPlan is the plan carried in
// the caller's token and is used when the plan store has no answer. Store
// failures are logged and never fail the request.
func (r *Resolver) Resolve(ctx context.Context, id domain.Identity, claimPlan string) Entitlement {
	if !id.Authenticated() {
		p := Lowest()
		return Entitlement{Plan: p, Remaining: RemainingDownloads(p, 0)}
	}

	tier := Normalize(claimPlan, Free)
	if r.plans != nil {
		stored, err := r.plans.PlanForUser(ctx, id.UserID)
		switch {
		case err == nil:
			tier = Normalize(stored, tier)
		case errors.Is(err, domain.ErrNotFound):
		default:
			r.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("plan lookup failed")
		}
	}

	p := Get(tier)
	used := r.UsedToday(ctx, id)
	return Entitlement{Plan: p, UsedToday: used, Remaining: RemainingDownloads(p, used)}
}

// UsedToday reconciles every durable counter for the identity.
func (r *Resolver) UsedToday(ctx context.Context, id domain.Identity) int {
	if !id.Authenticated() {
		return 0
	}
	counts := make([]int, 0, len(r.usage))
	for _, store := range r.usage {
		n, err := store.CurrentUsage(ctx, id.UserID)
		if err != nil {
			r.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("usage lookup failed")
			continue
		}
		counts = append(counts, n)
	}
	return ReconcileUsage(counts...)
}

// RecordUsage adds one completed job to every durable counter. A failing
// counter is logged and skipped.
func (r *Resolver) RecordUsage(ctx context.Context, id domain.Identity) {
	if !id.Authenticated() {
		return
	}
	for _, store := range r.usage {
		if _, err := store.RecordUsage(ctx, id.UserID, 1); err != nil {
			r.logger.Error().Err(err).Str("user_id", id.UserID).Msg("record usage failed")
		}
	}
}
