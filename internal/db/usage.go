package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"PulseJoin/internal/models"
)

func (s *Store) ProcessedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var total int
	err := s.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(processed_contacts), 0)
		 FROM campaigns
		 WHERE owner_id=$1 AND created_at >= $2`,
		userID,
		since,
	).Scan(&total)
	return total, err
}

func (s *Store) CountActiveInstances(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM instances WHERE owner_id=$1 AND is_active`,
		userID,
	).Scan(&n)
	return n, err
}

// UserLimits returns the user's overrides; unknown users have none.
func (s *Store) UserLimits(ctx context.Context, userID string) (models.UserLimits, error) {
	var l models.UserLimits
	err := s.Pool.QueryRow(ctx,
		`SELECT daily_contact_limit, max_instances FROM users WHERE id=$1`,
		userID,
	).Scan(&l.DailyContactLimit, &l.MaxInstances)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.UserLimits{}, nil
	}
	return l, err
}
