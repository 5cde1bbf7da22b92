package models

import (
	"time"
)

type DealStatus string

const (
	DealOpen       DealStatus = "open"
	DealClosedWon  DealStatus = "closed_won"
	DealClosedLost DealStatus = "closed_lost"
)

type Staleness string

const (
	StalenessNone     Staleness = "none"
	StalenessWarning  Staleness = "warning"
	StalenessCritical Staleness = "critical"
)

// DealStageState is the pipeline-relevant slice of a deal.
// DaysInStage, IsStale, Staleness and HealthScore are derived on read.
type DealStageState struct {
	DealID                string     `json:"deal_id"`
	Name                  string     `json:"name"`
	Amount                float64    `json:"amount"`
	AssignedUserID        string     `json:"assigned_user_id"`
	CurrentStageKey       string     `json:"current_stage_key"`
	StageEnteredAt        time.Time  `json:"stage_entered_at"`
	DaysInStage           int        `json:"days_in_stage"`
	IsStale               bool       `json:"is_stale"`
	Staleness             Staleness  `json:"staleness"`
	HealthScore           int        `json:"health_score"`
	Probability           int        `json:"probability"`
	ProbabilityOverridden bool       `json:"probability_overridden"`
	Status                DealStatus `json:"status"`
	SalesStage            string     `json:"sales_stage"`
	LastActivityAt        *time.Time `json:"last_activity_at,omitempty"`
	Version               int64      `json:"version"`
}

func (d DealStageState) IsClosed() bool {
	return d.Status == DealClosedWon || d.Status == DealClosedLost
}

// PipelineFilter narrows a pipeline snapshot.
type PipelineFilter struct {
	StageKeys      []string
	AssignedUserID string
	IncludeClosed  bool
	StaleOnly      bool
}
