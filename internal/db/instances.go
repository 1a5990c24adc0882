package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
)

const uniqueViolation = "23505"

func (s *Store) CreateInstance(ctx context.Context, inst models.Instance) error {
	health := inst.Health
	if health == "" {
		health = models.HealthOK
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO instances
		 (id, owner_id, name, api_key, base_url, is_active, status, daily_limit, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
		inst.ID,
		inst.OwnerID,
		inst.Name,
		inst.APIKey,
		inst.BaseURL,
		inst.Active,
		string(health),
		inst.DailyLimit,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("instance %s: %w", inst.ID, apperrors.ErrInstanceExists)
	}
	return err
}

func (s *Store) ListInstances(ctx context.Context) ([]models.Instance, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, owner_id, name, api_key, base_url, is_active, status, daily_limit,
		        sent_today, error_today, rate_limit_count_today, last_used_at, cooldown_until, created_at
		 FROM instances
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Instance, error) {
		var (
			inst   models.Instance
			health string
		)
		err := row.Scan(
			&inst.ID, &inst.OwnerID, &inst.Name, &inst.APIKey, &inst.BaseURL, &inst.Active, &health, &inst.DailyLimit,
			&inst.SentToday, &inst.ErrorToday, &inst.RateLimitCountToday, &inst.LastUsedAt, &inst.CooldownUntil, &inst.CreatedAt,
		)
		if err != nil {
			return inst, err
		}
		inst.Health = models.HealthStatus(health)
		if !inst.Health.Valid() {
			return inst, fmt.Errorf("instance %s: unknown health status %q", inst.ID, health)
		}
		return inst, nil
	})
}

func (s *Store) TouchInstance(ctx context.Context, id string, at time.Time) error {
	return s.execInstance(ctx, id, `UPDATE instances SET last_used_at=$2 WHERE id=$1`, at)
}

func (s *Store) RecordSuccess(ctx context.Context, id string) error {
	return s.execInstance(ctx, id, `UPDATE instances SET sent_today = sent_today + 1 WHERE id=$1`)
}

func (s *Store) RecordRateLimited(ctx context.Context, id string, cooldownUntil time.Time) error {
	return s.execInstance(ctx, id,
		`UPDATE instances
		 SET error_today = error_today + 1,
		     rate_limit_count_today = rate_limit_count_today + 1,
		     cooldown_until=$2
		 WHERE id=$1`,
		cooldownUntil,
	)
}

func (s *Store) RecordBanned(ctx context.Context, id string) error {
	return s.execInstance(ctx, id,
		`UPDATE instances
		 SET error_today = error_today + 1,
		     status=$2,
		     is_active=FALSE
		 WHERE id=$1`,
		string(models.HealthBlocked),
	)
}

func (s *Store) RecordError(ctx context.Context, id string) error {
	return s.execInstance(ctx, id, `UPDATE instances SET error_today = error_today + 1 WHERE id=$1`)
}

func (s *Store) AppendOutcomeLog(ctx context.Context, entry models.OutcomeLog) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO outcome_logs
		 (id, instance_id, campaign_id, outcome, http_status, snippet, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID,
		entry.InstanceID,
		entry.CampaignID,
		string(entry.Type),
		entry.HTTPStatus,
		entry.Snippet,
		entry.CreatedAt,
	)
	return err
}

func (s *Store) ResetDailyCounters(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE instances
		 SET sent_today=0,
		     error_today=0,
		     rate_limit_count_today=0`,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) execInstance(ctx context.Context, id, sql string, args ...any) error {
	tag, err := s.Pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewInstanceNotFound(id)
	}
	return nil
}
