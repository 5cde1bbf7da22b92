package services

import (
	"fmt"
	"strings"

	"makedeal/internal/models"
)

// ValidationInput is everything the validator needs; it performs no I/O.
type ValidationInput struct {
	DealID       string
	FromStageKey string
	ToStageKey   string
	// Occupancy is the live number of deals in the target stage.
	Occupancy int
	Override  bool
	// HealthScore is the deal's current score; nil skips the health check.
	HealthScore *int
}

// lowHealthThreshold applies to moves into the stages in healthGatedStages.
const lowHealthThreshold = 50

var healthGatedStages = map[string]bool{"term_sheet": true, "due_diligence": true}

// ValidationResult describes whether a move may proceed. Warnings are
// advisory and never block.
type ValidationResult struct {
	Allowed     bool             `json:"allowed"`
	Reason      ValidationReason `json:"reason,omitempty"`
	Message     string           `json:"message,omitempty"`
	Warnings    []string         `json:"warnings"`
	WipCount    int              `json:"wip_count"`
	WipLimit    *int             `json:"wip_limit,omitempty"`
	WipExceeded bool             `json:"wip_exceeded"`
}

// Err converts a rejected result into a *ValidationError.
func (r ValidationResult) Err(stageKey string) error {
	if r.Allowed {
		return nil
	}
	return &ValidationError{
		Reason:   r.Reason,
		StageKey: stageKey,
		Count:    r.WipCount,
		Limit:    r.WipLimit,
		Warnings: r.Warnings,
	}
}

// ValidateTransition applies, in order: target existence, no-op, the WIP
// gate, then advisory ordering and health warnings.
func ValidateTransition(catalog *StageCatalog, in ValidationInput) ValidationResult {
	res := ValidationResult{Warnings: []string{}, WipCount: in.Occupancy}

	to, err := catalog.GetStage(in.ToStageKey)
	if err != nil {
		res.Reason = ReasonStageNotFound
		res.Message = fmt.Sprintf("stage %q does not exist", in.ToStageKey)
		return res
	}
	res.WipLimit = to.WipLimit

	if in.FromStageKey == in.ToStageKey {
		res.Reason = ReasonNoOp
		res.Message = fmt.Sprintf("deal is already in stage %s", to.DisplayName)
		return res
	}

	if to.WipLimit != nil && in.Occupancy >= *to.WipLimit {
		res.WipExceeded = true
		msg := fmt.Sprintf("WIP limit exceeded for %s stage (%d/%d).", to.DisplayName, in.Occupancy, *to.WipLimit)
		if !in.Override {
			res.Reason = ReasonWipLimitExceeded
			res.Message = msg + " Override required."
			return res
		}
		res.Warnings = append(res.Warnings, msg+" Overridden.")
	}

	res.Warnings = append(res.Warnings, orderingWarnings(catalog, in.FromStageKey, to)...)
	if in.HealthScore != nil && *in.HealthScore < lowHealthThreshold && healthGatedStages[to.Key] {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("deal health score is low (%d%%); consider improving it before %s", *in.HealthScore, to.DisplayName))
	}
	res.Allowed = true
	return res
}

func orderingWarnings(catalog *StageCatalog, fromKey string, to models.StageDefinition) []string {
	from, err := catalog.GetStage(fromKey)
	if err != nil {
		// deals with no known stage yet may enter anywhere
		return nil
	}
	fromPos, _ := catalog.Position(from.Key)
	toPos, _ := catalog.Position(to.Key)

	var warnings []string
	switch {
	case toPos < fromPos:
		warnings = append(warnings, fmt.Sprintf("moving backwards from %s to %s", from.DisplayName, to.DisplayName))
	case to.IsLostTerminal:
		// a deal may be lost from any stage
		return warnings
	case toPos > fromPos+1:
		skipped := catalog.Between(fromPos, toPos)
		names := make([]string, 0, len(skipped))
		for _, s := range skipped {
			names = append(names, s.DisplayName)
		}
		warnings = append(warnings, fmt.Sprintf("skipping %d stage(s): %s", len(skipped), strings.Join(names, ", ")))
	}
	if !to.IsLostTerminal && !onConfiguredPath(from, to.Key) {
		warnings = append(warnings, fmt.Sprintf("%s is not an expected next stage after %s", to.DisplayName, from.DisplayName))
	}
	return warnings
}

// onConfiguredPath checks the optional next_stages table of from. Stages
// without a table accept any successor.
func onConfiguredPath(from models.StageDefinition, to string) bool {
	if len(from.NextStages) == 0 {
		return true
	}
	for _, k := range from.NextStages {
		if k == to {
			return true
		}
	}
	return false
}
