package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
)

const campaignColumns = `id, owner_id, group_id, group_label, status,
	total_contacts, processed_contacts, failed_contacts,
	delay_mode, delay_ms, delay_min_seconds, delay_max_seconds, distribution, concurrency,
	instance_ids, created_at, started_at, completed_at, updated_at`

func (s *Store) GetCampaign(ctx context.Context, id string) (models.Campaign, error) {
	var (
		c            models.Campaign
		status       string
		delayMode    string
		distribution string
		delayMS      int64
	)
	err := s.Pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id,
	).Scan(
		&c.ID, &c.OwnerID, &c.GroupID, &c.GroupLabel, &status,
		&c.Total, &c.Processed, &c.Failed,
		&delayMode, &delayMS, &c.Strategy.DelayMinSeconds, &c.Strategy.DelayMaxSeconds, &distribution, &c.Strategy.Concurrency,
		&c.InstanceIDs, &c.CreatedAt, &c.StartedAt, &c.CompletedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Campaign{}, apperrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return models.Campaign{}, err
	}

	if c.Status, err = models.ParseCampaignStatus(status); err != nil {
		return models.Campaign{}, fmt.Errorf("campaign %s: %w", id, err)
	}
	c.Strategy.DelayMode = models.DelayMode(delayMode)
	c.Strategy.Delay = time.Duration(delayMS) * time.Millisecond
	c.Strategy.Distribution = models.DistributionMode(distribution)
	return c, nil
}

func (s *Store) PrepareCampaign(ctx context.Context, id string, total int) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaigns
		 SET total_contacts=$2,
		     processed_contacts=0,
		     failed_contacts=0,
		     updated_at=NOW()
		 WHERE id=$1`,
		id,
		total,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewCampaignNotFound(id)
	}
	return nil
}

func (s *Store) MarkStarted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaigns
		 SET started_at=COALESCE(started_at, $2),
		     updated_at=$2
		 WHERE id=$1`,
		id,
		at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewCampaignNotFound(id)
	}
	return nil
}

// TransitionStatus moves the campaign to `to` only if its current status
// is one of from. The existence check and the update share a statement.
func (s *Store) TransitionStatus(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	var exists, changed bool
	err := s.Pool.QueryRow(ctx,
		`WITH target AS (
		     SELECT id FROM campaigns WHERE id=$1
		 ), upd AS (
		     UPDATE campaigns
		     SET status=$2,
		         updated_at=NOW()
		     WHERE id=$1 AND status = ANY($3)
		     RETURNING id
		 )
		 SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM upd)`,
		id,
		string(to),
		allowed,
	).Scan(&exists, &changed)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, apperrors.NewCampaignNotFound(id)
	}
	return changed, nil
}

// IncrementCounters leaves a finished campaign untouched; the row count
// still tells a missing campaign apart.
func (s *Store) IncrementCounters(ctx context.Context, id string, processed, failed int) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE campaigns
		 SET processed_contacts = processed_contacts + CASE WHEN status IN ('completed','failed') THEN 0 ELSE $2 END,
		     failed_contacts = failed_contacts + CASE WHEN status IN ('completed','failed') THEN 0 ELSE $3 END,
		     updated_at = CASE WHEN status IN ('completed','failed') THEN updated_at ELSE NOW() END
		 WHERE id=$1`,
		id,
		processed,
		failed,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewCampaignNotFound(id)
	}
	return nil
}

func (s *Store) FinishCampaign(ctx context.Context, id string, status models.CampaignStatus, at time.Time) (bool, error) {
	var exists, changed bool
	err := s.Pool.QueryRow(ctx,
		`WITH target AS (
		     SELECT id FROM campaigns WHERE id=$1
		 ), upd AS (
		     UPDATE campaigns
		     SET status=$2,
		         completed_at=$3,
		         updated_at=$3
		     WHERE id=$1 AND status NOT IN ('completed', 'failed')
		     RETURNING id
		 )
		 SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM upd)`,
		id,
		string(status),
		at,
	).Scan(&exists, &changed)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, apperrors.NewCampaignNotFound(id)
	}
	return changed, nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewCampaignNotFound(id)
	}
	return nil
}

func (s *Store) SetContactStatus(ctx context.Context, campaignID, contactID string, status models.ContactStatus, detail string) error {
	tag, err := s.Pool.Exec(ctx,
		`INSERT INTO campaign_contacts (campaign_id, contact_id, status, detail, updated_at)
		 SELECT $1, $2, $3, $4, NOW()
		 WHERE EXISTS (SELECT 1 FROM campaigns WHERE id=$1)
		 ON CONFLICT (campaign_id, contact_id)
		 DO UPDATE SET status=EXCLUDED.status,
		               detail=EXCLUDED.detail,
		               updated_at=NOW()`,
		campaignID,
		contactID,
		string(status),
		detail,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewCampaignNotFound(campaignID)
	}
	return nil
}
