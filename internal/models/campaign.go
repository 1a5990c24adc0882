package models

import (
	"fmt"
	"time"
)

type CampaignStatus string

const (
	StatusPending   CampaignStatus = "pending"
	StatusRunning   CampaignStatus = "running"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s CampaignStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func ParseCampaignStatus(v string) (CampaignStatus, error) {
	s := CampaignStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown campaign status %q", v)
	}
	return s, nil
}

type DelayMode string

const (
	DelayFixed  DelayMode = "fixed"
	DelayRandom DelayMode = "random"
)

// DistributionMode selects how the balancer orders eligible instances.
type DistributionMode string

const (
	DistributionScored     DistributionMode = "scored"
	DistributionSequential DistributionMode = "sequential"
	DistributionRandom     DistributionMode = "random"
)

func (m DistributionMode) Valid() bool {
	switch m {
	case DistributionScored, DistributionSequential, DistributionRandom:
		return true
	}
	return false
}

type Strategy struct {
	DelayMode DelayMode `json:"delay_mode"`

	// Delay is used when DelayMode is fixed.
	Delay time.Duration `json:"delay"`

	// DelayMinSeconds and DelayMaxSeconds bound the random delay, inclusive.
	DelayMinSeconds int `json:"delay_min_seconds"`
	DelayMaxSeconds int `json:"delay_max_seconds"`

	Distribution DistributionMode `json:"distribution"`
	Concurrency  int              `json:"concurrency"`
}

type Campaign struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	GroupID    string         `json:"group_id"`
	GroupLabel string         `json:"group_label"`
	Status     CampaignStatus `json:"status"`

	Total     int `json:"total_contacts"`
	Processed int `json:"processed_contacts"`
	Failed    int `json:"failed_contacts"`

	Strategy    Strategy `json:"strategy"`
	InstanceIDs []string `json:"instance_ids"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ContactStatus string

const (
	ContactAdded  ContactStatus = "added"
	ContactFailed ContactStatus = "failed"
)
