package balancer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/memstore"
	"PulseJoin/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func healthy(id string) models.Instance {
	return models.Instance{ID: id, Name: id, Active: true, Health: models.HealthOK}
}

func newTestBalancer(store *memstore.Store) *Balancer {
	b := New(store, zap.NewNop())
	b.Now = func() time.Time { return now }
	b.Float64 = func() float64 { return 0 }
	b.IntN = func(n int) int { return n - 1 }
	return b
}

func TestPickExcludesUnavailableInstances(t *testing.T) {
	store := memstore.New()

	cooling := healthy("a-cooling")
	cooling.CooldownUntil = ptr(now.Add(time.Minute))
	inactive := healthy("b-inactive")
	inactive.Active = false
	blocked := healthy("c-blocked")
	blocked.Health = models.HealthBlocked
	exhausted := healthy("d-exhausted")
	exhausted.DailyLimit = ptr(10)
	exhausted.SentToday = 10
	expired := healthy("e-cooldown-expired")
	expired.CooldownUntil = ptr(now.Add(-time.Second))

	for _, inst := range []models.Instance{cooling, inactive, blocked, exhausted, expired} {
		store.PutInstance(inst)
	}

	got, err := newTestBalancer(store).Pick(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.ID != "e-cooldown-expired" {
		t.Errorf("picked %s", got.ID)
	}
}

func TestPickNoInstanceAvailable(t *testing.T) {
	store := memstore.New()
	inst := healthy("a")
	inst.CooldownUntil = ptr(now.Add(5 * time.Minute))
	store.PutInstance(inst)

	_, err := newTestBalancer(store).Pick(context.Background(), Request{})
	if !errors.Is(err, apperrors.ErrNoInstanceAvailable) {
		t.Fatalf("err = %v, want ErrNoInstanceAvailable", err)
	}
}

func TestPickPrefersLessUsedAndRestedInstances(t *testing.T) {
	store := memstore.New()

	busy := healthy("busy")
	busy.SentToday = 40
	busy.LastUsedAt = ptr(now.Add(-10 * time.Second))

	rested := healthy("rested")
	rested.SentToday = 40
	rested.LastUsedAt = ptr(now.Add(-2 * time.Hour))

	store.PutInstance(busy)
	store.PutInstance(rested)

	got, err := newTestBalancer(store).Pick(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.ID != "rested" {
		t.Errorf("picked %s, want rested", got.ID)
	}
}

func TestPickNeverUsedWins(t *testing.T) {
	store := memstore.New()
	used := healthy("used")
	used.LastUsedAt = ptr(now.Add(-24 * time.Hour))
	store.PutInstance(used)
	store.PutInstance(healthy("fresh"))

	got, _ := newTestBalancer(store).Pick(context.Background(), Request{})
	if got.ID != "fresh" {
		t.Errorf("picked %s, want fresh", got.ID)
	}
}

func TestPickRecordsLastUsed(t *testing.T) {
	store := memstore.New()
	store.PutInstance(healthy("a"))

	got, err := newTestBalancer(store).Pick(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(now) {
		t.Errorf("returned last_used_at = %v", got.LastUsedAt)
	}
	stored, _ := store.Instance("a")
	if stored.LastUsedAt == nil || !stored.LastUsedAt.Equal(now) {
		t.Errorf("stored last_used_at = %v", stored.LastUsedAt)
	}
}

func TestPickEligibleRestriction(t *testing.T) {
	store := memstore.New()
	store.PutInstance(healthy("a"))
	store.PutInstance(healthy("b"))

	got, err := newTestBalancer(store).Pick(context.Background(), Request{Eligible: []string{"b"}})
	if err != nil || got.ID != "b" {
		t.Fatalf("got %s, %v", got.ID, err)
	}

	_, err = newTestBalancer(store).Pick(context.Background(), Request{Eligible: []string{"missing"}})
	if !errors.Is(err, apperrors.ErrNoInstanceAvailable) {
		t.Errorf("err = %v", err)
	}
}

func TestCandidatesOwnerPreferenceFallsBack(t *testing.T) {
	mine := healthy("mine")
	mine.OwnerID = "u1"
	theirs := healthy("theirs")
	theirs.OwnerID = "u2"

	got := Candidates([]models.Instance{mine, theirs}, Request{PreferOwner: "u1"}, now)
	if len(got) != 1 || got[0].ID != "mine" {
		t.Errorf("preferred = %+v", got)
	}

	mine.Active = false
	got = Candidates([]models.Instance{mine, theirs}, Request{PreferOwner: "u1"}, now)
	if len(got) != 1 || got[0].ID != "theirs" {
		t.Errorf("fallback = %+v", got)
	}
}

func TestSequentialRotates(t *testing.T) {
	store := memstore.New()
	for _, id := range []string{"c", "a", "b"} {
		store.PutInstance(healthy(id))
	}

	b := newTestBalancer(store)
	clock := now
	b.Now = func() time.Time { return clock }

	var order []string
	for i := 0; i < 6; i++ {
		got, err := b.Pick(context.Background(), Request{Strategy: models.DistributionSequential})
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		order = append(order, got.ID)
		clock = clock.Add(time.Second)
	}

	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRandomStrategyUsesPicker(t *testing.T) {
	store := memstore.New()
	store.PutInstance(healthy("a"))
	store.PutInstance(healthy("b"))

	got, err := newTestBalancer(store).Pick(context.Background(), Request{Strategy: models.DistributionRandom})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("picked %s", got.ID)
	}
}

func TestScoreCapsIdleTerm(t *testing.T) {
	inst := healthy("a")
	inst.LastUsedAt = ptr(now.Add(-1000 * time.Hour))
	if got := Score(inst, now); got != 1+maxIdleScore {
		t.Errorf("Score = %v", got)
	}
}
