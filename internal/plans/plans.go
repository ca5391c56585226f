// Package plans holds the subscription catalog and derives per-identity
// entitlements from it.
package plans

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"mediatools/internal/domain"
)

// Tier is a canonical plan key.
type Tier string

const (
	Free      Tier = "free"
	Pro       Tier = "pro"
	Exclusive Tier = "exclusive"
)

// Access distinguishes which tools a plan unlocks.
type Access string

const (
	AccessBasic Access = "basic"
	AccessAll   Access = "all"
)

// Plan describes one entry of the catalog.
type Plan struct {
	ID            Tier   `json:"id"`
	Name          string `json:"name"`
	DailyLimit    int    `json:"daily_limit"`
	PriceCents    int    `json:"price_cents"`
	Access        Access `json:"access"`
	MaxResolution int    `json:"max_resolution"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// Limits converts the plan into tracker ceilings.
func (p Plan) Limits() domain.Limits {
	return domain.Limits{
		MaxPerDay:     p.DailyLimit,
		MaxResolution: p.MaxResolution,
		MaxConcurrent: p.MaxConcurrent,
	}
}

// Allows reports whether the plan may run jobs of the given kind.
func (p Plan) Allows(kind domain.JobKind) bool {
	if p.Access == AccessAll {
		return true
	}
	_, ok := basicKinds[kind]
	return ok
}

var basicKinds = map[domain.JobKind]struct{}{
	domain.JobKindDownload: {},
	domain.JobKindHash:     {},
	domain.JobKindQR:       {},
}

var order = []Tier{Free, Pro, Exclusive}

var catalog = map[Tier]Plan{
	Free: {
		ID:            Free,
		Name:          "Free",
		DailyLimit:    10,
		Access:        AccessBasic,
		MaxResolution: 720,
		MaxConcurrent: 1,
	},
	Pro: {
		ID:            Pro,
		Name:          "Pro",
		DailyLimit:    100,
		PriceCents:    499,
		Access:        AccessAll,
		MaxResolution: 1080,
		MaxConcurrent: 3,
	},
	Exclusive: {
		ID:            Exclusive,
		Name:          "Exclusive",
		DailyLimit:    domain.Unlimited,
		PriceCents:    1499,
		Access:        AccessAll,
		MaxResolution: 2160,
		MaxConcurrent: 5,
	},
}

var aliases = map[string]Tier{
	"free":      Free,
	"basic":     Free,
	"starter":   Free,
	"pro":       Pro,
	"premium":   Pro,
	"plus":      Pro,
	"exclusive": Exclusive,
	"vip":       Exclusive,
	"lifetime":  Exclusive,
	"unlimited": Exclusive,
}

var fold = cases.Fold()

// Normalize maps raw plan strings, including aliases, to a canonical tier.
// Empty or unknown input yields fallback, or Free when fallback is not a
// canonical tier either.
func Normalize(raw string, fallback Tier) Tier {
	key := fold.String(strings.TrimSpace(raw))
	if tier, ok := aliases[key]; ok {
		return tier
	}
	if _, ok := catalog[fallback]; ok {
		return fallback
	}
	return Free
}

// Parse is the strict form of Normalize for operator input.
func Parse(raw string) (Tier, error) {
	if tier, ok := aliases[fold.String(strings.TrimSpace(raw))]; ok {
		return tier, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedPlan, raw)
}

// Get returns the catalog entry for tier. Non-canonical keys resolve to the
// lowest tier so the lookup never fails.
func Get(tier Tier) Plan {
	if p, ok := catalog[tier]; ok {
		return p
	}
	return catalog[Free]
}

// Lowest returns the plan applied to unknown identities.
func Lowest() Plan {
	return catalog[order[0]]
}

// Catalog lists every plan from cheapest to most expensive.
func Catalog() []Plan {
	out := make([]Plan, 0, len(order))
	for _, tier := range order {
		out = append(out, catalog[tier])
	}
	return out
}

// RemainingDownloads returns how many jobs are left today, or
// domain.Unlimited for uncapped plans.
func RemainingDownloads(p Plan, usedToday int) int {
	if p.DailyLimit == domain.Unlimited {
		return domain.Unlimited
	}
	return max(p.DailyLimit-usedToday, 0)
}

// HasExceededLimit reports whether usedToday has reached the daily cap.
func HasExceededLimit(p Plan, usedToday int) bool {
	if p.DailyLimit == domain.Unlimited {
		return false
	}
	return usedToday >= p.DailyLimit
}

// ReconcileUsage picks the largest of several usage counters. Counters are
// written independently and either one may have missed an increment.
func ReconcileUsage(counts ...int) int {
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return best
}
