// Package quota enforces per-identity daily and concurrency ceilings.
package quota

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediatools/internal/domain"
)

// DefaultWindow is how long a daily counter lives after its first use.
const DefaultWindow = 24 * time.Hour

// Record is the limits and usage tracked for one identity.
type Record struct {
	Identity    string        `json:"identity"`
	Limits      domain.Limits `json:"limits"`
	Today       int           `json:"today"`
	Concurrent  int           `json:"concurrent"`
	WindowStart time.Time     `json:"window_start"`
}

// Tracker holds usage records in memory. All access goes through one mutex.
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*Record
	defaults domain.Limits
	window   time.Duration

	now    func() time.Time
	logger zerolog.Logger
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// NewTracker builds a tracker whose unseen identities start with defaults.
func NewTracker(defaults domain.Limits, logger zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		records:  make(map[string]*Record),
		defaults: defaults,
		window:   DefaultWindow,
		now:      time.Now,
		logger:   logger.With().Str("component", "quota").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ResolveIdentity keys authenticated callers by user id and everyone else by
// client address.
func ResolveIdentity(userID, clientIP string) domain.Identity {
	userID = strings.TrimSpace(userID)
	clientIP = strings.TrimSpace(clientIP)
	if userID != "" {
		return domain.Identity{Key: "user:" + userID, UserID: userID, IP: clientIP}
	}
	if clientIP == "" {
		clientIP = "unknown"
	}
	return domain.Identity{Key: "ip:" + clientIP, IP: clientIP}
}

// Limits returns the identity's record, creating it with default limits when
// it has not been seen yet.
func (t *Tracker) Limits(id domain.Identity) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.record(id.Key)
}

// Check reports whether a new job would be admitted right now without
// reserving anything.
func (t *Tracker) Check(id domain.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return admit(t.record(id.Key))
}

// Acquire applies limits to the identity, folds in the durable usage count
// and, when both ceilings allow it, charges one daily use and one
// concurrency slot. The decision and the increment happen under the same
// lock. A rejected call changes nothing but the stored limits.
func (t *Tracker) Acquire(id domain.Identity, limits domain.Limits, durableUsed int) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.record(id.Key)
	rec.Limits = limits
	if durableUsed > rec.Today {
		rec.Today = durableUsed
	}
	if err := admit(rec); err != nil {
		return *rec, err
	}
	rec.Today++
	rec.Concurrent++
	return *rec, nil
}

// Release returns a concurrency slot. The count never drops below zero.
func (t *Tracker) Release(id domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id.Key]
	if !ok {
		return
	}
	if rec.Concurrent > 0 {
		rec.Concurrent--
	}
}

// ResetExpired zeroes every daily counter whose window has elapsed. Idle
// records are dropped entirely; they are recreated on next use.
func (t *Tracker) ResetExpired() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	reset := 0
	for key, rec := range t.records {
		if now.Sub(rec.WindowStart) < t.window {
			continue
		}
		reset++
		if rec.Concurrent == 0 {
			delete(t.records, key)
			continue
		}
		rec.Today = 0
		rec.WindowStart = now
	}
	return reset
}

// Start runs ResetExpired every interval until ctx is cancelled.
func (t *Tracker) Start(ctx context.Context, interval time.Duration) {
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
				if n := t.ResetExpired(); n > 0 {
					t.logger.Debug().Int("reset", n).Msg("daily windows reset")
				}
			}
		}
	}()
}

// record must be called with t.mu held. An expired window is reset in place
// so admission stays correct between sweeps.
func (t *Tracker) record(key string) *Record {
	now := t.now()
	rec, ok := t.records[key]
	if !ok {
		rec = &Record{Identity: key, Limits: t.defaults, WindowStart: now}
		t.records[key] = rec
		return rec
	}
	if now.Sub(rec.WindowStart) >= t.window {
		rec.Today = 0
		rec.WindowStart = now
	}
	return rec
}

func admit(rec *Record) error {
	if !rec.Limits.DailyUnlimited() && rec.Today >= rec.Limits.MaxPerDay {
		return domain.ErrDailyLimit
	}
	if rec.Limits.MaxConcurrent != domain.Unlimited && rec.Concurrent >= rec.Limits.MaxConcurrent {
		return domain.ErrConcurrencyLimit
	}
	return nil
}
