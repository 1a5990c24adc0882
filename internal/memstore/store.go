// Package memstore is an in-memory implementation of every store the
// campaign core depends on. Each method takes the lock once, which gives
// the same single-request atomicity the SQL store has.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
)

type contactKey struct {
	campaignID string
	contactID  string
}

type ContactRecord struct {
	Status models.ContactStatus
	Detail string
}

type Store struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
	instances map[string]*models.Instance
	contacts  map[contactKey]ContactRecord
	limits    map[string]models.UserLimits
	logs      []models.OutcomeLog

	Now func() time.Time
}

func New() *Store {
	return &Store{
		campaigns: make(map[string]*models.Campaign),
		instances: make(map[string]*models.Instance),
		contacts:  make(map[contactKey]ContactRecord),
		limits:    make(map[string]models.UserLimits),
		Now:       time.Now,
	}
}

// ----------------------------
// Seeding and inspection
// ----------------------------

func (s *Store) PutCampaign(c models.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Now()
	}
	if c.Status == "" {
		c.Status = models.StatusPending
	}
	c.InstanceIDs = slices.Clone(c.InstanceIDs)
	s.campaigns[c.ID] = &c
}

func (s *Store) PutInstance(i models.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[i.ID] = cloneInstance(&i)
}

func (s *Store) SetUserLimits(userID string, l models.UserLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[userID] = l
}

func (s *Store) Instance(id string) (models.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.instances[id]
	if !ok {
		return models.Instance{}, false
	}
	return *cloneInstance(i), true
}

func (s *Store) Contact(campaignID, contactID string) (ContactRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.contacts[contactKey{campaignID, contactID}]
	return r, ok
}

func (s *Store) OutcomeLogs() []models.OutcomeLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// ----------------------------
// Campaigns
// ----------------------------

func (s *Store) GetCampaign(ctx context.Context, id string) (models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return models.Campaign{}, apperrors.NewCampaignNotFound(id)
	}
	out := *c
	out.InstanceIDs = slices.Clone(c.InstanceIDs)
	return out, nil
}

func (s *Store) PrepareCampaign(ctx context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return apperrors.NewCampaignNotFound(id)
	}
	c.Total = total
	c.Processed = 0
	c.Failed = 0
	c.UpdatedAt = s.Now()
	return nil
}

func (s *Store) MarkStarted(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return apperrors.NewCampaignNotFound(id)
	}
	if c.StartedAt == nil {
		t := at
		c.StartedAt = &t
	}
	c.UpdatedAt = at
	return nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, apperrors.NewCampaignNotFound(id)
	}
	if !slices.Contains(from, c.Status) {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = s.Now()
	return true, nil
}

func (s *Store) IncrementCounters(ctx context.Context, id string, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return apperrors.NewCampaignNotFound(id)
	}
	if c.Status.Terminal() {
		return nil
	}
	c.Processed += processed
	c.Failed += failed
	c.UpdatedAt = s.Now()
	return nil
}

func (s *Store) FinishCampaign(ctx context.Context, id string, status models.CampaignStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, apperrors.NewCampaignNotFound(id)
	}
	if c.Status.Terminal() {
		return false, nil
	}
	t := at
	c.Status = status
	c.CompletedAt = &t
	c.UpdatedAt = at
	return true, nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return apperrors.NewCampaignNotFound(id)
	}
	delete(s.campaigns, id)
	for k := range s.contacts {
		if k.campaignID == id {
			delete(s.contacts, k)
		}
	}
	return nil
}

func (s *Store) SetContactStatus(ctx context.Context, campaignID, contactID string, status models.ContactStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaignID]; !ok {
		return apperrors.NewCampaignNotFound(campaignID)
	}
	s.contacts[contactKey{campaignID, contactID}] = ContactRecord{Status: status, Detail: detail}
	return nil
}

// ----------------------------
// Instances
// ----------------------------

func (s *Store) CreateInstance(ctx context.Context, inst models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; ok {
		return fmt.Errorf("instance %s: %w", inst.ID, apperrors.ErrInstanceExists)
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.Now()
	}
	s.instances[inst.ID] = cloneInstance(&inst)
	return nil
}

func (s *Store) ListInstances(ctx context.Context) ([]models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Instance, 0, len(s.instances))
	for _, i := range s.instances {
		out = append(out, *cloneInstance(i))
	}
	slices.SortFunc(out, func(a, b models.Instance) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) TouchInstance(ctx context.Context, id string, at time.Time) error {
	return s.updateInstance(id, func(i *models.Instance) {
		t := at
		i.LastUsedAt = &t
	})
}

func (s *Store) RecordSuccess(ctx context.Context, id string) error {
	return s.updateInstance(id, func(i *models.Instance) {
		i.SentToday++
	})
}

func (s *Store) RecordRateLimited(ctx context.Context, id string, cooldownUntil time.Time) error {
	return s.updateInstance(id, func(i *models.Instance) {
		t := cooldownUntil
		i.ErrorToday++
		i.RateLimitCountToday++
		i.CooldownUntil = &t
	})
}

func (s *Store) RecordBanned(ctx context.Context, id string) error {
	return s.updateInstance(id, func(i *models.Instance) {
		i.ErrorToday++
		i.Health = models.HealthBlocked
		i.Active = false
	})
}

func (s *Store) RecordError(ctx context.Context, id string) error {
	return s.updateInstance(id, func(i *models.Instance) {
		i.ErrorToday++
	})
}

func (s *Store) AppendOutcomeLog(ctx context.Context, entry models.OutcomeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) ResetDailyCounters(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.instances {
		i.SentToday = 0
		i.ErrorToday = 0
		i.RateLimitCountToday = 0
	}
	return int64(len(s.instances)), nil
}

func (s *Store) updateInstance(id string, fn func(*models.Instance)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.instances[id]
	if !ok {
		return apperrors.NewInstanceNotFound(id)
	}
	fn(i)
	return nil
}

// ----------------------------
// Usage
// ----------------------------

func (s *Store) ProcessedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.campaigns {
		if c.OwnerID == userID && !c.CreatedAt.Before(since) {
			total += c.Processed
		}
	}
	return total, nil
}

func (s *Store) CountActiveInstances(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, i := range s.instances {
		if i.OwnerID == userID && i.Active {
			n++
		}
	}
	return n, nil
}

func (s *Store) UserLimits(ctx context.Context, userID string) (models.UserLimits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limits[userID], nil
}

func cloneInstance(i *models.Instance) *models.Instance {
	c := *i
	if i.DailyLimit != nil {
		v := *i.DailyLimit
		c.DailyLimit = &v
	}
	if i.LastUsedAt != nil {
		v := *i.LastUsedAt
		c.LastUsedAt = &v
	}
	if i.CooldownUntil != nil {
		v := *i.CooldownUntil
		c.CooldownUntil = &v
	}
	return &c
}
