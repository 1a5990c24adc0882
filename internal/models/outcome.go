package models

import "time"

type OutcomeType string

const (
	OutcomeSuccess      OutcomeType = "success"
	OutcomeRateLimited  OutcomeType = "rate_limited"
	OutcomeBanned       OutcomeType = "banned"
	OutcomeUnknownError OutcomeType = "unknown_error"
)

// OutcomeLog is an append-only audit record of a single gateway call.
type OutcomeLog struct {
	ID         string      `json:"id"`
	InstanceID string      `json:"instance_id"`
	CampaignID string      `json:"campaign_id"`
	Type       OutcomeType `json:"type"`
	HTTPStatus int         `json:"http_status"`
	Snippet    string      `json:"snippet,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
