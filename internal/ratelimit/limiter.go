package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/worktab/worktab-api/internal/domain"
	"github.com/worktab/worktab-api/internal/metrics"
	"github.com/worktab/worktab-api/internal/store"
)

// concurrentWindow labels denials caused by too many in-flight turns.
const concurrentWindow Window = "concurrent"

// Usage is the caller's consumption in the current buckets. Monthly is nil
// for tiers without a monthly limit.
type Usage struct {
	Daily   int64  `json:"daily"`
	Hourly  int64  `json:"hourly"`
	Monthly *int64 `json:"monthly"`
}

// Decision is the outcome of Acquire.
type Decision struct {
	Allowed    bool
	Window     Window
	Message    string
	RetryAfter int // seconds
	Limits     Policy
	Usage      Usage
	Remaining  int
	ResetAt    time.Time
}

// Status is reported to the client on successful turns.
type Status struct {
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// Limiter checks hourly and daily quotas, caps in-flight turns per identity
// and tracks monthly usage. Counters live in the UsageStore; in-flight slots
// are per process.
type Limiter struct {
	store    store.UsageStore
	policies Policies
	enabled  bool
	now      func() time.Time

	mu     sync.Mutex
	active map[string]int
}

// New creates a limiter. A disabled limiter admits everything and never
// touches the store.
func New(s store.UsageStore, policies Policies, enabled bool) *Limiter {
	if s == nil {
		s = store.NoopStore{}
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{
		store:    s,
		policies: policies,
		enabled:  enabled,
		now:      time.Now,
		active:   make(map[string]int),
	}
}

// Enabled reports whether quotas are enforced.
func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// Policy returns the quota that applies to caller.
func (l *Limiter) Policy(caller domain.Identity) Policy {
	return l.policies.For(caller.Tier())
}

// Acquire admits or denies one chat turn for caller. On admission the
// returned Reservation must be finished with Commit or Release.
func (l *Limiter) Acquire(ctx context.Context, caller domain.Identity) (*Reservation, Decision) {
	if !l.Enabled() {
		return &Reservation{}, Decision{Allowed: true}
	}

	pol := l.Policy(caller)
	now := l.now()
	dec := Decision{Allowed: true, Limits: pol}

	if !l.takeSlot(caller.ID, pol.ConcurrentLimit) {
		dec.Allowed = false
		dec.Window = concurrentWindow
		dec.Message = fmt.Sprintf("Too many concurrent requests. Only %d allowed at a time.", pol.ConcurrentLimit)
		dec.RetryAfter = 1
		dec.Usage = l.currentUsage(ctx, caller.ID, pol, now)
		l.recordDenial(caller, dec)
		return nil, dec
	}

	hourKey := Key(caller.ID, Hourly, now)
	dayKey := Key(caller.ID, Daily, now)
	_, hourEnd := Hourly.bounds(now)
	_, dayEnd := Daily.bounds(now)

	dec.Usage = l.currentUsage(ctx, caller.ID, pol, now)
	if denied, window := overLimit(dec.Usage, pol, 0); denied {
		l.releaseSlot(caller.ID)
		return nil, l.deny(caller, dec, window, now)
	}

	hourly, errH := l.store.Increment(ctx, hourKey, hourEnd.Sub(now))
	daily, errD := l.store.Increment(ctx, dayKey, dayEnd.Sub(now))
	if errH != nil || errD != nil {
		// Fail open: tracking problems never block a turn.
		l.storeError("increment", caller, firstErr(errH, errD))
		dec.Remaining = remainingOf(pol.HourlyLimit, dec.Usage.Hourly+1, pol.DailyLimit, dec.Usage.Daily+1)
		dec.ResetAt = hourEnd
		return &Reservation{l: l, caller: caller, status: statusOf(dec)}, dec
	}

	dec.Usage.Hourly = hourly
	dec.Usage.Daily = daily
	// Lost a race with a concurrent turn on another replica.
	if denied, window := overLimit(dec.Usage, pol, 1); denied {
		l.releaseSlot(caller.ID)
		dec.Usage.Hourly = min(hourly, int64(pol.HourlyLimit))
		dec.Usage.Daily = min(daily, int64(pol.DailyLimit))
		return nil, l.deny(caller, dec, window, now)
	}

	dec.Remaining = remainingOf(pol.HourlyLimit, hourly, pol.DailyLimit, daily)
	dec.ResetAt = hourEnd
	if int64(pol.DailyLimit)-daily < int64(pol.HourlyLimit)-hourly {
		dec.ResetAt = dayEnd
	}

	return &Reservation{l: l, caller: caller, status: statusOf(dec)}, dec
}

// overLimit reports the first window whose count exceeds limit-slack.
// slack is 0 when checking before incrementing and 1 after.
func overLimit(u Usage, pol Policy, slack int64) (bool, Window) {
	if u.Hourly+1-slack > int64(pol.HourlyLimit) {
		return true, Hourly
	}
	if u.Daily+1-slack > int64(pol.DailyLimit) {
		return true, Daily
	}
	return false, ""
}

func (l *Limiter) deny(caller domain.Identity, dec Decision, window Window, now time.Time) Decision {
	_, end := window.bounds(now)
	limit := dec.Limits.HourlyLimit
	label := "Hourly"
	if window == Daily {
		limit = dec.Limits.DailyLimit
		label = "Daily"
	}

	dec.Allowed = false
	dec.Window = window
	dec.Message = fmt.Sprintf("%s limit of %d messages reached. Please try again later.", label, limit)
	dec.RetryAfter = int(math.Ceil(end.Sub(now).Seconds()))
	dec.ResetAt = end
	dec.Remaining = 0
	l.recordDenial(caller, dec)
	return dec
}

func (l *Limiter) recordDenial(caller domain.Identity, dec Decision) {
	metrics.RateLimitHits.WithLabelValues(string(caller.Tier()), string(dec.Window)).Inc()
	slog.Info("Rate limit exceeded",
		"user_id", caller.ID,
		"tier", caller.Tier(),
		"window", dec.Window,
		"retry_after", dec.RetryAfter)
}

func (l *Limiter) currentUsage(ctx context.Context, id string, pol Policy, now time.Time) Usage {
	var u Usage
	var err error
	if u.Hourly, err = l.store.Peek(ctx, Key(id, Hourly, now)); err != nil {
		l.storeError("peek", domain.Identity{ID: id}, err)
	}
	if u.Daily, err = l.store.Peek(ctx, Key(id, Daily, now)); err != nil {
		l.storeError("peek", domain.Identity{ID: id}, err)
	}
	if pol.MonthlySoftLimit > 0 {
		monthly, err := l.store.Peek(ctx, Key(id, Monthly, now))
		if err != nil {
			l.storeError("peek", domain.Identity{ID: id}, err)
		}
		u.Monthly = &monthly
	}
	return u
}

func (l *Limiter) storeError(op string, caller domain.Identity, err error) {
	metrics.UsageStoreErrors.WithLabelValues(op).Inc()
	slog.Error("Failed to track usage", "op", op, "user_id", caller.ID, "error", err)
}

func (l *Limiter) takeSlot(id string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit > 0 && l.active[id] >= limit {
		return false
	}
	l.active[id]++
	return true
}

func (l *Limiter) releaseSlot(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[id] <= 1 {
		delete(l.active, id)
		return
	}
	l.active[id]--
}

// InFlight returns the number of admitted, unfinished turns for id.
func (l *Limiter) InFlight(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[id]
}

// Reservation is an admitted turn holding a concurrent slot.
type Reservation struct {
	l      *Limiter
	caller domain.Identity
	status Status
	once   sync.Once
}

// Release frees the concurrent slot without recording success. Safe to call
// more than once and after Commit.
func (r *Reservation) Release() {
	if r == nil || r.l == nil {
		return
	}
	r.once.Do(func() { r.l.releaseSlot(r.caller.ID) })
}

// Commit records a successful turn against the monthly soft limit, frees
// the slot and returns the status to report. It returns nil when the
// limiter is disabled.
func (r *Reservation) Commit(ctx context.Context) *Status {
	if r == nil || r.l == nil {
		return nil
	}
	defer r.Release()

	pol := r.l.Policy(r.caller)
	if pol.MonthlySoftLimit > 0 {
		now := r.l.now()
		_, end := Monthly.bounds(now)
		n, err := r.l.store.Increment(ctx, Key(r.caller.ID, Monthly, now), end.Sub(now))
		switch {
		case err != nil:
			r.l.storeError("increment", r.caller, err)
		case n > int64(pol.MonthlySoftLimit):
			slog.Warn("Monthly soft limit exceeded",
				"user_id", r.caller.ID,
				"count", n,
				"limit", pol.MonthlySoftLimit)
		}
	}

	status := r.status
	return &status
}

func statusOf(dec Decision) Status {
	return Status{
		Remaining: dec.Remaining,
		ResetAt:   dec.ResetAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func remainingOf(hourlyLimit int, hourly int64, dailyLimit int, daily int64) int {
	r := min(int64(hourlyLimit)-hourly, int64(dailyLimit)-daily)
	if r < 0 {
		return 0
	}
	return int(r)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
