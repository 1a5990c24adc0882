// Package ratelimit implements the per-user admission gates: the daily
// contact quota and the active instance cap. Both are evaluated before
// work starts and never interrupt jobs already running.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/metrics"
	"PulseJoin/internal/models"
)

type UsageStore interface {
	ProcessedSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountActiveInstances(ctx context.Context, userID string) (int, error)
	UserLimits(ctx context.Context, userID string) (models.UserLimits, error)
}

// Defaults apply when a user has no override. A value <= 0 disables the
// corresponding gate.
type Defaults struct {
	DailyContacts int
	MaxInstances  int
}

type Quota struct {
	Limit     int
	Used      int
	Remaining int
	ResetsAt  time.Time
}

type Limiter struct {
	store    UsageStore
	defaults Defaults
	loc      *time.Location

	Now func() time.Time
}

func New(store UsageStore, defaults Defaults, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.Local
	}
	return &Limiter{store: store, defaults: defaults, loc: loc, Now: time.Now}
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// CheckDailyQuota admits a batch only if it fits entirely in what is left
// of the user's quota for today.
func (l *Limiter) CheckDailyQuota(ctx context.Context, userID string, batch int) (Quota, error) {
	limits, err := l.store.UserLimits(ctx, userID)
	if err != nil {
		return Quota{}, fmt.Errorf("load user limits: %w", err)
	}
	limit := l.defaults.DailyContacts
	if limits.DailyContactLimit != nil {
		limit = *limits.DailyContactLimit
	}

	midnight := StartOfDay(l.Now(), l.loc)
	resets := midnight.AddDate(0, 0, 1)

	if limit <= 0 && limits.DailyContactLimit == nil {
		return Quota{Limit: -1, Remaining: -1, ResetsAt: resets}, nil
	}

	used, err := l.store.ProcessedSince(ctx, userID, midnight)
	if err != nil {
		return Quota{}, fmt.Errorf("count processed contacts: %w", err)
	}

	q := Quota{Limit: limit, Used: used, Remaining: max(limit-used, 0), ResetsAt: resets}
	if batch > q.Remaining {
		metrics.AdmissionRejections.WithLabelValues("quota").Inc()
		return q, &apperrors.QuotaError{
			UserID:    userID,
			Limit:     limit,
			Used:      used,
			Requested: batch,
			ResetsAt:  resets,
		}
	}
	return q, nil
}

// CheckInstanceCap rejects creating another instance once the user owns
// as many active instances as allowed.
func (l *Limiter) CheckInstanceCap(ctx context.Context, userID string) error {
	limits, err := l.store.UserLimits(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user limits: %w", err)
	}
	limit := l.defaults.MaxInstances
	if limits.MaxInstances != nil {
		limit = *limits.MaxInstances
	} else if limit <= 0 {
		return nil
	}

	active, err := l.store.CountActiveInstances(ctx, userID)
	if err != nil {
		return fmt.Errorf("count active instances: %w", err)
	}
	if active >= limit {
		metrics.AdmissionRejections.WithLabelValues("instance_cap").Inc()
		return &apperrors.InstanceCapError{UserID: userID, Limit: limit, Active: active}
	}
	return nil
}
