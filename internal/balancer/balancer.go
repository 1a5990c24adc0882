package balancer

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/metrics"
	"PulseJoin/internal/models"
)

const (
	maxIdleScore = 100.0
	jitterScale  = 0.01
)

type InstanceStore interface {
	ListInstances(ctx context.Context) ([]models.Instance, error)
	TouchInstance(ctx context.Context, id string, at time.Time) error
}

type Request struct {
	// Eligible restricts selection to these instance ids. Empty means any.
	Eligible []string

	// PreferOwner narrows selection to the user's own instances when at
	// least one of them is available.
	PreferOwner string

	Strategy models.DistributionMode
}

// Balancer picks one instance per call. It keeps no state between calls;
// everything it needs is read from the store.
type Balancer struct {
	store InstanceStore
	log   *zap.Logger

	Now     func() time.Time
	Float64 func() float64
	IntN    func(n int) int
}

func New(store InstanceStore, log *zap.Logger) *Balancer {
	return &Balancer{
		store:   store,
		log:     log,
		Now:     time.Now,
		Float64: rand.Float64,
		IntN:    rand.IntN,
	}
}

// Pick returns the best available instance and records it as used.
// apperrors.ErrNoInstanceAvailable is an expected result, not a failure.
func (b *Balancer) Pick(ctx context.Context, req Request) (models.Instance, error) {
	all, err := b.store.ListInstances(ctx)
	if err != nil {
		return models.Instance{}, fmt.Errorf("list instances: %w", err)
	}

	now := b.Now()
	candidates := Candidates(all, req, now)
	if len(candidates) == 0 {
		return models.Instance{}, apperrors.ErrNoInstanceAvailable
	}

	strategy := req.Strategy
	if !strategy.Valid() {
		strategy = models.DistributionScored
	}

	var winner models.Instance
	switch strategy {
	case models.DistributionSequential:
		winner = leastRecentlyUsed(candidates)
	case models.DistributionRandom:
		winner = candidates[b.IntN(len(candidates))]
	default:
		winner = b.bestScore(candidates, now)
	}

	if err := b.store.TouchInstance(ctx, winner.ID, now); err != nil {
		b.log.Warn("failed to record instance use",
			zap.String("instance_id", winner.ID),
			zap.Error(err),
		)
	}
	t := now
	winner.LastUsedAt = &t

	metrics.InstanceSelections.WithLabelValues(string(strategy)).Inc()
	return winner, nil
}

// Candidates filters all down to selectable instances, applying the
// eligibility restriction and then the owner preference with fallback.
func Candidates(all []models.Instance, req Request, now time.Time) []models.Instance {
	var out []models.Instance
	for _, inst := range all {
		if !inst.Selectable(now) {
			continue
		}
		if len(req.Eligible) > 0 && !slices.Contains(req.Eligible, inst.ID) {
			continue
		}
		out = append(out, inst)
	}

	if req.PreferOwner != "" {
		var owned []models.Instance
		for _, inst := range out {
			if inst.OwnerID == req.PreferOwner {
				owned = append(owned, inst)
			}
		}
		if len(owned) > 0 {
			return owned
		}
	}
	return out
}

// Score favours instances that sent less today and have rested longer.
// The jitter term is added by the caller.
func Score(inst models.Instance, now time.Time) float64 {
	s := 1.0 / float64(inst.SentToday+1)
	if inst.LastUsedAt == nil {
		return s + maxIdleScore
	}
	idle := now.Sub(*inst.LastUsedAt).Seconds() / 1000
	if idle < 0 {
		idle = 0
	}
	return s + min(idle, maxIdleScore)
}

func (b *Balancer) bestScore(candidates []models.Instance, now time.Time) models.Instance {
	best := candidates[0]
	bestScore := -1.0
	for _, inst := range candidates {
		s := Score(inst, now) + b.Float64()*jitterScale
		if s > bestScore {
			best, bestScore = inst, s
		}
	}
	return best
}

// leastRecentlyUsed yields round-robin order across calls because every
// pick stamps last_used_at. Never-used instances go first, ties by id.
func leastRecentlyUsed(candidates []models.Instance) models.Instance {
	return slices.MinFunc(candidates, func(a, c models.Instance) int {
		switch {
		case a.LastUsedAt == nil && c.LastUsedAt != nil:
			return -1
		case a.LastUsedAt != nil && c.LastUsedAt == nil:
			return 1
		case a.LastUsedAt != nil && c.LastUsedAt != nil && !a.LastUsedAt.Equal(*c.LastUsedAt):
			return a.LastUsedAt.Compare(*c.LastUsedAt)
		}
		return cmp.Compare(a.ID, c.ID)
	})
}
