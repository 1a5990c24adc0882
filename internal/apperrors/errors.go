// Package apperrors holds the error taxonomy shared by stores, the
// processor and the admission gates.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoInstanceAvailable = errors.New("no instance available")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrCampaignTerminated  = errors.New("campaign already finished")
	ErrCampaignStarted     = errors.New("campaign already started")
	ErrInstanceNotFound    = errors.New("instance not found")
	ErrInstanceExists      = errors.New("instance already exists")
	ErrQuotaExceeded       = errors.New("daily contact quota exceeded")
	ErrInstanceCapExceeded = errors.New("instance limit reached")
)

// QuotaError describes a rejected batch.
type QuotaError struct {
	UserID    string
	Limit     int
	Used      int
	Requested int
	ResetsAt  time.Time
}

func (e *QuotaError) Remaining() int {
	if r := e.Limit - e.Used; r > 0 {
		return r
	}
	return 0
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily contact quota exceeded for user %s: requested %d, remaining %d of %d (resets at %s)",
		e.UserID, e.Requested, e.Remaining(), e.Limit, e.ResetsAt.Format(time.RFC3339))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

type InstanceCapError struct {
	UserID string
	Limit  int
	Active int
}

func (e *InstanceCapError) Error() string {
	return fmt.Sprintf("instance limit reached for user %s: %d active of %d allowed", e.UserID, e.Active, e.Limit)
}

func (e *InstanceCapError) Unwrap() error { return ErrInstanceCapExceeded }

func NewCampaignNotFound(id string) error {
	return fmt.Errorf("campaign %s: %w", id, ErrCampaignNotFound)
}

func NewInstanceNotFound(id string) error {
	return fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
}
