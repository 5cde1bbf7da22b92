package services

import (
	"context"
	"errors"
	"time"

	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// HealthScorer computes the 0-100 health score of a deal. position is the
// zero-based index of the deal's stage in the catalog.
type HealthScorer interface {
	Score(state models.DealStageState, stage models.StageDefinition, position int, now time.Time) int
}

// HealthScorerFunc adapts a function to HealthScorer.
type HealthScorerFunc func(state models.DealStageState, stage models.StageDefinition, position int, now time.Time) int

func (f HealthScorerFunc) Score(state models.DealStageState, stage models.StageDefinition, position int, now time.Time) int {
	return f(state, stage, position, now)
}

const (
	recentActivityWindow = 7 * 24 * time.Hour
	largeDealAmount      = 1_000_000
)

// DefaultHealthScorer rewards progression, recent activity and large deal
// value, and penalizes time beyond the stage thresholds.
var DefaultHealthScorer HealthScorer = HealthScorerFunc(func(state models.DealStageState, stage models.StageDefinition, position int, now time.Time) int {
	switch state.Status {
	case models.DealClosedWon:
		return 100
	case models.DealClosedLost:
		return 0
	}

	score := 50
	score += min(30, (position+1)*3)
	if state.LastActivityAt != nil && now.Sub(*state.LastActivityAt) <= recentActivityWindow {
		score += 10
	}
	if state.Amount > largeDealAmount {
		score += 10
	}
	switch state.Staleness {
	case models.StalenessCritical:
		score -= 25
	case models.StalenessWarning:
		score -= 15
	}
	return max(0, min(100, score))
})

// DaysBetween is the number of whole days elapsed from since to now.
func DaysBetween(since, now time.Time) int {
	if now.Before(since) {
		return 0
	}
	return int(now.Sub(since) / (24 * time.Hour))
}

// StalenessFor applies the stage thresholds to days. A nil threshold never
// triggers.
func StalenessFor(stage models.StageDefinition, days int) models.Staleness {
	if stage.CriticalDays != nil && days >= *stage.CriticalDays {
		return models.StalenessCritical
	}
	if stage.WarningDays != nil && days >= *stage.WarningDays {
		return models.StalenessWarning
	}
	return models.StalenessNone
}

// ComputeDerived fills DaysInStage, Staleness, IsStale and HealthScore.
func ComputeDerived(state models.DealStageState, stage models.StageDefinition, position int, scorer HealthScorer, now time.Time) models.DealStageState {
	if scorer == nil {
		scorer = DefaultHealthScorer
	}
	state.DaysInStage = DaysBetween(state.StageEnteredAt, now)
	state.Staleness = StalenessFor(stage, state.DaysInStage)
	state.IsStale = state.Staleness != models.StalenessNone
	state.HealthScore = scorer.Score(state, stage, position, now)
	return state
}

// DealStateService loads deal stage state with derived fields computed.
type DealStateService struct {
	repo    repositories.DealStageRepository
	catalog *StageCatalog
	scorer  HealthScorer
	now     func() time.Time
}

func NewDealStateService(repo repositories.DealStageRepository, catalog *StageCatalog, scorer HealthScorer) *DealStateService {
	if scorer == nil {
		scorer = DefaultHealthScorer
	}
	return &DealStateService{repo: repo, catalog: catalog, scorer: scorer, now: time.Now}
}

// Load returns the current state of a deal, or ErrDealNotFound.
func (s *DealStateService) Load(ctx context.Context, dealID string) (*models.DealStageState, error) {
	st, err := s.repo.Load(ctx, dealID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDealNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("load deal stage state", err)
	}
	derived := s.Derive(*st, s.now())
	return &derived, nil
}

// Derive computes the derived fields of st against the shared catalog.
// Deals sitting in a stage missing from the catalog keep zero thresholds.
func (s *DealStateService) Derive(st models.DealStageState, now time.Time) models.DealStageState {
	stage, err := s.catalog.GetStage(st.CurrentStageKey)
	if err != nil {
		stage = models.StageDefinition{Key: st.CurrentStageKey}
	}
	pos, _ := s.catalog.Position(st.CurrentStageKey)
	return ComputeDerived(st, stage, pos, s.scorer, now)
}

// wrapStoreErr keeps context errors recognizable and wraps everything else.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
