package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/balancer"
	"PulseJoin/internal/gateway"
	"PulseJoin/internal/metrics"
	"PulseJoin/internal/models"
)

// gate re-reads the campaign before a job. It blocks while the campaign is
// paused and returns a stopError once it is deleted or finalized.
func (r *run) gate(ctx context.Context, workerID int) error {
	var (
		updates <-chan struct{}
		paused  bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var c models.Campaign
		err := r.p.persist(ctx, func() error {
			var err error
			c, err = r.p.campaigns.GetCampaign(ctx, r.campaign.ID)
			return err
		})
		switch {
		case errors.Is(err, apperrors.ErrCampaignNotFound):
			return &stopError{reason: StopDeleted}
		case err != nil:
			return err
		}

		switch c.Status {
		case models.StatusCompleted, models.StatusFailed:
			return &stopError{reason: StopTerminated}
		case models.StatusPaused:
			if !paused {
				paused = true
				r.log.Info("campaign paused; waiting", zap.Int("worker_id", workerID))
				if r.p.hub != nil {
					ch, unsubscribe := r.p.hub.Subscribe(r.campaign.ID)
					defer unsubscribe()
					updates = ch
				}
			}
			if err := r.waitForChange(ctx, updates); err != nil {
				return err
			}
		default:
			if paused {
				r.log.Info("campaign resumed", zap.Int("worker_id", workerID))
			}
			return nil
		}
	}
}

func (r *run) waitForChange(ctx context.Context, updates <-chan struct{}) error {
	t := time.NewTimer(r.p.cfg.PollInterval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-updates:
	}
	return nil
}

// process attempts job i exactly once. Only a vanished campaign is
// reported back; every other failure is counted against the job.
func (r *run) process(ctx context.Context, workerID, i int) error {
	p := r.p
	job := r.jobs[i]
	r.attempted.Add(1)

	log := r.log.With(
		zap.Int("worker_id", workerID),
		zap.Int("job", i),
		zap.String("contact_id", job.ContactID),
	)

	normalized, err := p.phones.Normalize(job.Phone)
	if err != nil {
		log.Warn("invalid phone number", zap.String("phone", job.Phone))
		return r.record(ctx, job, false, "invalid phone number", "invalid_phone")
	}

	inst, err := p.picker.Pick(ctx, balancer.Request{
		Eligible:    r.campaign.InstanceIDs,
		PreferOwner: r.campaign.OwnerID,
		Strategy:    r.campaign.Strategy.Distribution,
	})
	if errors.Is(err, apperrors.ErrNoInstanceAvailable) {
		log.Warn("no instance available")
		metrics.NoInstanceAvailable.Inc()
		return r.record(ctx, job, false, "no instance available", "no_instance")
	}
	if err != nil {
		log.Error("instance selection failed", zap.Error(err))
		return r.record(ctx, job, false, "instance selection failed", "selection_error")
	}

	res := p.gateway.AddParticipant(ctx, gateway.Request{
		Instance: inst,
		GroupID:  r.campaign.GroupID,
		Phone:    normalized,
	})
	out := p.outcomes.Apply(ctx, r.campaign.ID, inst, res)

	fields := []zap.Field{
		zap.String("instance_id", inst.ID),
		zap.String("outcome", string(out.Type)),
		zap.Int("http_status", out.StatusCode),
		zap.Duration("took", res.Duration),
	}
	if out.Type == models.OutcomeSuccess {
		log.Info("participant added", fields...)
		return r.record(ctx, job, true, "", string(out.Type))
	}
	log.Warn("participant add failed", append(fields, zap.String("message", out.Message))...)
	return r.record(ctx, job, false, out.Message, string(out.Type))
}

// record writes a job's outcome to the contact and the campaign counters,
// then moves a pending campaign to running after its first attempt.
func (r *run) record(ctx context.Context, job models.JobInput, ok bool, detail, label string) error {
	p := r.p
	id := r.campaign.ID
	metrics.Jobs.WithLabelValues(label).Inc()

	processed, failed := 0, 1
	status := models.ContactFailed
	if ok {
		processed, failed = 1, 0
		status = models.ContactAdded
		r.processed.Add(1)
	} else {
		r.failed.Add(1)
	}

	if job.ContactID != "" {
		err := p.persist(ctx, func() error {
			return p.campaigns.SetContactStatus(ctx, id, job.ContactID, status, detail)
		})
		if errors.Is(err, apperrors.ErrCampaignNotFound) {
			return &stopError{reason: StopDeleted}
		}
		if err != nil {
			r.log.Error("failed to update contact", zap.String("contact_id", job.ContactID), zap.Error(err))
		}
	}

	err := p.persist(ctx, func() error {
		return p.campaigns.IncrementCounters(ctx, id, processed, failed)
	})
	if errors.Is(err, apperrors.ErrCampaignNotFound) {
		return &stopError{reason: StopDeleted}
	}
	if err != nil {
		r.log.Error("failed to persist counters", zap.Error(err))
	}

	if r.running.CompareAndSwap(false, true) {
		_, err := p.campaigns.TransitionStatus(ctx, id, []models.CampaignStatus{models.StatusPending}, models.StatusRunning)
		if errors.Is(err, apperrors.ErrCampaignNotFound) {
			return &stopError{reason: StopDeleted}
		}
		if err != nil {
			r.running.Store(false)
			r.log.Error("failed to mark campaign running", zap.Error(err))
		}
	}
	return nil
}
