package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"makedeal/internal/metrics"
	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// DefaultProbabilityTolerance is how far a deal's probability may drift from
// the stage default before a move resets it.
const DefaultProbabilityTolerance = 10

// UserContext identifies who performs a transition.
type UserContext struct {
	UserID string
	RoleID int
}

// TransitionOptions are the caller supplied parameters of a move.
type TransitionOptions struct {
	Reason   string
	Override bool
	// ExpectedFromStage is the stage the caller believes the deal is in.
	// When set and different from the stored stage the move fails with
	// ErrConcurrentModification.
	ExpectedFromStage string
}

// TransitionResult is returned for a committed move and handed to hooks.
type TransitionResult struct {
	Success             bool                    `json:"success"`
	Message             string                  `json:"message"`
	NewState            models.DealStageState   `json:"new_state"`
	PreviousStageKey    string                  `json:"previous_stage_key"`
	DaysInPreviousStage int                     `json:"days_in_previous_stage"`
	HistoryID           string                  `json:"history_id"`
	Record              models.TransitionRecord `json:"record"`
	Warnings            []string                `json:"warnings"`
}

// TaskCanceller cancels the open follow-up work of a deal that was lost.
type TaskCanceller interface {
	CancelOpenTasks(ctx context.Context, dealID string) (int64, error)
}

// StageTransitionService executes deal stage transitions: validate, mutate,
// commit state and history atomically, then refresh WIP counts and run hooks.
type StageTransitionService struct {
	repo    repositories.DealStageRepository
	catalog *StageCatalog
	states  *DealStateService
	wip     *WipTracker
	hooks   *HookDispatcher
	tasks   TaskCanceller

	tolerance int
	metrics   *metrics.PipelineMetrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type TransitionOption func(*StageTransitionService)

func WithProbabilityTolerance(tolerance int) TransitionOption {
	return func(s *StageTransitionService) { s.tolerance = tolerance }
}

func WithTransitionMetrics(m *metrics.PipelineMetrics) TransitionOption {
	return func(s *StageTransitionService) { s.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TransitionOption {
	return func(s *StageTransitionService) {
		s.now = now
		s.states.now = now
	}
}

func NewStageTransitionService(
	repo repositories.DealStageRepository,
	catalog *StageCatalog,
	states *DealStateService,
	wip *WipTracker,
	hooks *HookDispatcher,
	tasks TaskCanceller,
	logger *slog.Logger,
	opts ...TransitionOption,
) *StageTransitionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StageTransitionService{
		repo:      repo,
		catalog:   catalog,
		states:    states,
		wip:       wip,
		hooks:     hooks,
		tasks:     tasks,
		tolerance: DefaultProbabilityTolerance,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecuteTransition moves a deal to toStageKey.
//
// Rejections are returned as *ValidationError. A deal modified between load
// and commit yields ErrConcurrentModification and leaves nothing written.
// Once the commit succeeds, WIP refresh, task cancellation and hooks are
// best effort and cannot fail the call.
func (s *StageTransitionService) ExecuteTransition(ctx context.Context, dealID, toStageKey string, user UserContext, opts TransitionOptions) (*TransitionResult, error) {
	began := time.Now()
	res, from, err := s.execute(ctx, dealID, toStageKey, user, opts)

	outcome := metrics.OutcomeCommitted
	switch {
	case err == nil:
	case errors.Is(err, ErrValidationFailed):
		outcome = metrics.OutcomeRejected
	case errors.Is(err, ErrConcurrentModification):
		outcome = metrics.OutcomeConflict
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.ObserveTransition(from, toStageKey, outcome, time.Since(began).Seconds())

	if err != nil {
		s.logger.Info("stage transition not applied",
			"deal_id", dealID, "from_stage", from, "to_stage", toStageKey,
			"user_id", user.UserID, "error", err)
		return nil, err
	}
	return res, nil
}

func (s *StageTransitionService) execute(ctx context.Context, dealID, toStageKey string, user UserContext, opts TransitionOptions) (*TransitionResult, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	current, err := s.states.Load(ctx, dealID)
	if err != nil {
		return nil, "", err
	}
	from := current.CurrentStageKey
	if opts.ExpectedFromStage != "" && opts.ExpectedFromStage != from {
		return nil, from, fmt.Errorf("%w: deal %s is in %s, not %s",
			ErrConcurrentModification, dealID, from, opts.ExpectedFromStage)
	}

	vr, target, err := s.validate(ctx, current, toStageKey, opts.Override)
	if err != nil {
		return nil, from, err
	}
	if !vr.Allowed {
		return nil, from, vr.Err(toStageKey)
	}

	now := s.now()
	next := s.applyMove(*current, target, now)
	record := models.TransitionRecord{
		ID:              s.newID(),
		DealID:          dealID,
		ToStageKey:      target.Key,
		ChangedBy:       user.UserID,
		ChangedAt:       now,
		OverrodeWarning: opts.Override && (vr.WipExceeded || len(vr.Warnings) > 0),
		Regression:      s.isRegression(from, target),
	}
	if from != "" {
		f := from
		record.FromStageKey = &f
	}
	if opts.Reason != "" {
		r := opts.Reason
		record.Reason = &r
	}

	commit := models.StageCommit{
		State:           next,
		ExpectedVersion: current.Version,
		Record:          record,
	}
	if target.WipLimit != nil && !opts.Override {
		commit.Guard = &models.WipGuard{StageKey: target.Key, Limit: *target.WipLimit}
	}

	// last point where cancellation leaves no trace
	if err := ctx.Err(); err != nil {
		return nil, from, err
	}
	if err := s.repo.CommitTransition(ctx, commit); err != nil {
		return nil, from, s.commitError(err, target, vr)
	}

	after := context.WithoutCancel(ctx)
	s.wip.RefreshAfterMove(after, from, target.Key)
	if target.IsLostTerminal && s.tasks != nil {
		if n, err := s.tasks.CancelOpenTasks(after, dealID); err != nil {
			s.logger.Error("cancel open tasks failed", "deal_id", dealID, "error", err)
		} else if n > 0 {
			s.logger.Info("open tasks cancelled", "deal_id", dealID, "count", n)
		}
	}

	result := TransitionResult{
		Success:             true,
		Message:             fmt.Sprintf("Deal moved to %s", target.DisplayName),
		NewState:            next,
		PreviousStageKey:    from,
		DaysInPreviousStage: current.DaysInStage,
		HistoryID:           record.ID,
		Record:              record,
		Warnings:            vr.Warnings,
	}
	s.logger.Info("stage transition committed",
		"deal_id", dealID, "from_stage", from, "to_stage", target.Key,
		"user_id", user.UserID, "override", opts.Override, "regression", record.Regression)

	s.hooks.Dispatch(after, result)
	return &result, from, nil
}

// Validate runs the validator against live occupancy without moving the
// deal. It backs confirmation dialogs.
func (s *StageTransitionService) Validate(ctx context.Context, dealID, toStageKey string, override bool) (ValidationResult, error) {
	current, err := s.states.Load(ctx, dealID)
	if err != nil {
		return ValidationResult{}, err
	}
	vr, _, err := s.validate(ctx, current, toStageKey, override)
	return vr, err
}

func (s *StageTransitionService) validate(ctx context.Context, current *models.DealStageState, toStageKey string, override bool) (ValidationResult, models.StageDefinition, error) {
	occupancy := 0
	target, stageErr := s.catalog.GetStage(toStageKey)
	if stageErr == nil && target.WipLimit != nil && current.CurrentStageKey != toStageKey {
		n, err := s.wip.LiveCount(ctx, toStageKey)
		if err != nil {
			return ValidationResult{}, target, err
		}
		occupancy = n
	}
	health := current.HealthScore
	vr := ValidateTransition(s.catalog, ValidationInput{
		DealID:       current.DealID,
		FromStageKey: current.CurrentStageKey,
		ToStageKey:   toStageKey,
		Occupancy:    occupancy,
		Override:     override,
		HealthScore:  &health,
	})
	return vr, target, nil
}

func (s *StageTransitionService) applyMove(cur models.DealStageState, target models.StageDefinition, now time.Time) models.DealStageState {
	next := cur
	next.CurrentStageKey = target.Key
	next.StageEnteredAt = now
	if target.SalesStage != "" {
		next.SalesStage = target.SalesStage
	}
	switch {
	case target.IsWonTerminal:
		next.Status = models.DealClosedWon
		next.Probability = 100
	case target.IsLostTerminal:
		next.Status = models.DealClosedLost
		next.Probability = 0
	default:
		next.Status = models.DealOpen
		if !next.ProbabilityOverridden && abs(next.Probability-target.DefaultProbability) > s.tolerance {
			next.Probability = target.DefaultProbability
		}
	}
	next.Version = cur.Version + 1
	return s.states.Derive(next, now)
}

func (s *StageTransitionService) isRegression(from string, target models.StageDefinition) bool {
	fromPos, ok := s.catalog.Position(from)
	if !ok {
		return false
	}
	toPos, _ := s.catalog.Position(target.Key)
	return toPos < fromPos
}

func (s *StageTransitionService) commitError(err error, target models.StageDefinition, vr ValidationResult) error {
	var guard *repositories.WipGuardError
	switch {
	case errors.Is(err, repositories.ErrVersionConflict):
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	case errors.As(err, &guard):
		limit := guard.Limit
		return &ValidationError{
			Reason:   ReasonWipLimitExceeded,
			StageKey: target.Key,
			Count:    guard.Count,
			Limit:    &limit,
			Warnings: vr.Warnings,
		}
	case errors.Is(err, repositories.ErrNotFound):
		return ErrDealNotFound
	}
	return wrapStoreErr("commit transition", err)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
