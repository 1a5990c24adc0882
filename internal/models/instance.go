package models

import "time"

type HealthStatus string

const (
	HealthOK           HealthStatus = "ok"
	HealthRateLimited  HealthStatus = "rate_limited"
	HealthBlocked      HealthStatus = "blocked"
	HealthError        HealthStatus = "error"
	HealthDisconnected HealthStatus = "disconnected"
)

func (h HealthStatus) Valid() bool {
	switch h {
	case HealthOK, HealthRateLimited, HealthBlocked, HealthError, HealthDisconnected:
		return true
	}
	return false
}

// Instance is a sending account registered with the gateway.
type Instance struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// Name is the gateway-side instance name used in the request path.
	Name    string `json:"name"`
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`

	Active bool         `json:"is_active"`
	Health HealthStatus `json:"status"`

	// DailyLimit nil means unlimited.
	DailyLimit          *int `json:"daily_limit,omitempty"`
	SentToday           int  `json:"sent_today"`
	ErrorToday          int  `json:"error_today"`
	RateLimitCountToday int  `json:"rate_limit_count_today"`

	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Selectable reports whether the instance may be handed out at now.
func (i Instance) Selectable(now time.Time) bool {
	if !i.Active || i.Health != HealthOK {
		return false
	}
	if i.CooldownUntil != nil && i.CooldownUntil.After(now) {
		return false
	}
	if i.DailyLimit != nil && i.SentToday >= *i.DailyLimit {
		return false
	}
	return true
}

// UserLimits holds per-user overrides; nil fields fall back to system defaults.
type UserLimits struct {
	DailyContactLimit *int
	MaxInstances      *int
}
