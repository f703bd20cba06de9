// Package ratelimit enforces per-identity chat quotas on top of a
// store.UsageStore.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/worktab/worktab-api/internal/domain"
)

// Policy is the quota applied to one tier. A zero MonthlySoftLimit means no
// monthly tracking.
type Policy struct {
	DailyLimit          int `json:"daily" yaml:"daily"`
	HourlyLimit         int `json:"hourly" yaml:"hourly"`
	ConcurrentLimit     int `json:"concurrent" yaml:"concurrent"`
	MaxTokensPerMessage int `json:"maxTokens" yaml:"maxTokens"`
	MonthlySoftLimit    int `json:"monthly,omitempty" yaml:"monthly,omitempty"`
}

// Policies maps each tier to its quota.
type Policies map[domain.Tier]Policy

// DefaultPolicies returns the built-in tier table.
func DefaultPolicies() Policies {
	return Policies{
		domain.TierFree: {
			DailyLimit:          10,
			HourlyLimit:         3,
			ConcurrentLimit:     1,
			MaxTokensPerMessage: 500,
		},
		domain.TierPro: {
			DailyLimit:          200,
			HourlyLimit:         20,
			ConcurrentLimit:     3,
			MaxTokensPerMessage: 2000,
			MonthlySoftLimit:    5000,
		},
	}
}

// For returns the policy of tier, falling back to the free tier.
func (p Policies) For(tier domain.Tier) Policy {
	if pol, ok := p[tier]; ok {
		return pol
	}
	return p[domain.TierFree]
}

// Window is a fixed calendar bucket in UTC.
type Window string

const (
	Hourly  Window = "hourly"
	Daily   Window = "daily"
	Monthly Window = "monthly"
)

// bounds returns the bucket label containing t and the instant the bucket
// ends.
func (w Window) bounds(t time.Time) (string, time.Time) {
	t = t.UTC()
	switch w {
	case Hourly:
		start := t.Truncate(time.Hour)
		return start.Format("2006010215"), start.Add(time.Hour)
	case Daily:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start.Format("20060102"), start.AddDate(0, 0, 1)
	default:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.Format("200601"), start.AddDate(0, 1, 0)
	}
}

// Key returns the usage-store key of identity id in window w at time t.
func Key(id string, w Window, t time.Time) string {
	bucket, _ := w.bounds(t)
	return fmt.Sprintf("ai-usage:%s:%s:%s", id, w, bucket)
}
