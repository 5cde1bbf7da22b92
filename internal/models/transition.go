package models

import "time"

// TransitionRecord is an immutable audit entry written once per committed
// stage change.
type TransitionRecord struct {
	ID              string    `json:"id"`
	DealID          string    `json:"deal_id"`
	FromStageKey    *string   `json:"from_stage_key"`
	ToStageKey      string    `json:"to_stage_key"`
	ChangedBy       string    `json:"changed_by"`
	ChangedAt       time.Time `json:"changed_at"`
	Reason          *string   `json:"reason,omitempty"`
	OverrodeWarning bool      `json:"overrode_warning"`
	Regression      bool      `json:"regression"`
}

// WipGuard asks the store to re-check occupancy of a stage inside the
// commit unit.
type WipGuard struct {
	StageKey string
	Limit    int
}

// StageCommit is the unit written atomically by a transition: the new deal
// state plus its history record.
type StageCommit struct {
	State           DealStageState
	ExpectedVersion int64
	Record          TransitionRecord
	Guard           *WipGuard
}
