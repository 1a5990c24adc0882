package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/memstore"
	"PulseJoin/internal/models"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

func newTestLimiter(store *memstore.Store, d Defaults) *Limiter {
	l := New(store, d, time.UTC)
	l.Now = func() time.Time { return now }
	return l
}

func TestDailyQuotaRejectsWholeBatch(t *testing.T) {
	store := memstore.New()
	store.PutCampaign(models.Campaign{ID: "old", OwnerID: "u1", Processed: 95, CreatedAt: now.Add(-2 * time.Hour)})
	store.PutCampaign(models.Campaign{ID: "yesterday", OwnerID: "u1", Processed: 500, CreatedAt: now.Add(-20 * time.Hour)})
	store.PutCampaign(models.Campaign{ID: "other-user", OwnerID: "u2", Processed: 500, CreatedAt: now})

	l := newTestLimiter(store, Defaults{DailyContacts: 100})

	_, err := l.CheckDailyQuota(context.Background(), "u1", 10)
	if !errors.Is(err, apperrors.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	var qe *apperrors.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("err is not a QuotaError: %T", err)
	}
	if qe.Remaining() != 5 || qe.Requested != 10 {
		t.Errorf("quota error = %+v", qe)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !qe.ResetsAt.Equal(want) {
		t.Errorf("ResetsAt = %v, want %v", qe.ResetsAt, want)
	}

	q, err := l.CheckDailyQuota(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("batch of exactly the remaining quota rejected: %v", err)
	}
	if q.Remaining != 5 || q.Used != 95 {
		t.Errorf("quota = %+v", q)
	}
}

func TestDailyQuotaUserOverride(t *testing.T) {
	store := memstore.New()
	store.SetUserLimits("u1", models.UserLimits{DailyContactLimit: ptr(3)})

	_, err := newTestLimiter(store, Defaults{DailyContacts: 1000}).CheckDailyQuota(context.Background(), "u1", 4)
	if !errors.Is(err, apperrors.ErrQuotaExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestDailyQuotaDisabled(t *testing.T) {
	store := memstore.New()
	if _, err := newTestLimiter(store, Defaults{}).CheckDailyQuota(context.Background(), "u1", 1_000_000); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestInstanceCap(t *testing.T) {
	store := memstore.New()
	store.PutInstance(models.Instance{ID: "a", OwnerID: "u1", Active: true})
	store.PutInstance(models.Instance{ID: "b", OwnerID: "u1", Active: true})
	store.PutInstance(models.Instance{ID: "c", OwnerID: "u1", Active: false})

	l := newTestLimiter(store, Defaults{MaxInstances: 2})
	err := l.CheckInstanceCap(context.Background(), "u1")
	if !errors.Is(err, apperrors.ErrInstanceCapExceeded) {
		t.Fatalf("err = %v, want ErrInstanceCapExceeded", err)
	}

	store.SetUserLimits("u1", models.UserLimits{MaxInstances: ptr(3)})
	if err := l.CheckInstanceCap(context.Background(), "u1"); err != nil {
		t.Fatalf("override ignored: %v", err)
	}

	if err := l.CheckInstanceCap(context.Background(), "u2"); err != nil {
		t.Fatalf("user without instances rejected: %v", err)
	}
}

func TestStartOfDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	got := StartOfDay(time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), loc)
	want := time.Date(2026, 2, 28, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
}
