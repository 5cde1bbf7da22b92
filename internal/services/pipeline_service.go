package services

import (
	"context"
	"errors"
	"time"

	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// PipelineSnapshot is the board view: stages, their deals and occupancy.
type PipelineSnapshot struct {
	Stages       []models.StageDefinition `json:"stages"`
	Deals        []models.DealStageState  `json:"deals"`
	WipOccupancy []models.WipSnapshot     `json:"wip_occupancy"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// StageSummary is the per-stage deal count and value shown above a column.
type StageSummary struct {
	StageKey       string  `json:"stage_key"`
	DealCount      int     `json:"deal_count"`
	TotalAmount    float64 `json:"total_amount"`
	AvgValue       float64 `json:"avg_value"`
	AvgDaysInStage float64 `json:"avg_days_in_stage"`
	StaleCount     int     `json:"stale_count"`
}

// PipelineService answers read queries about the pipeline.
type PipelineService struct {
	repo    repositories.DealStageRepository
	catalog *StageCatalog
	states  *DealStateService
	wip     *WipTracker
}

func NewPipelineService(repo repositories.DealStageRepository, catalog *StageCatalog, states *DealStateService, wip *WipTracker) *PipelineService {
	return &PipelineService{repo: repo, catalog: catalog, states: states, wip: wip}
}

// GetPipelineSnapshot lists the deals matching filter with derived fields
// computed at a single instant.
func (s *PipelineService) GetPipelineSnapshot(ctx context.Context, filter models.PipelineFilter) (*PipelineSnapshot, error) {
	deals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, wrapStoreErr("list deals", err)
	}
	occupancy, err := s.wip.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.states.now()
	out := make([]models.DealStageState, 0, len(deals))
	for _, d := range deals {
		d = s.states.Derive(d, now)
		if filter.StaleOnly && !d.IsStale {
			continue
		}
		out = append(out, d)
	}

	return &PipelineSnapshot{
		Stages:       s.catalog.GetStages(),
		Deals:        out,
		WipOccupancy: occupancy,
		GeneratedAt:  now,
	}, nil
}

// Summaries groups a snapshot's deals per stage in catalog order.
func (p *PipelineSnapshot) Summaries() []StageSummary {
	byStage := make(map[string]*StageSummary, len(p.Stages))
	out := make([]StageSummary, len(p.Stages))
	for i, st := range p.Stages {
		out[i].StageKey = st.Key
		byStage[st.Key] = &out[i]
	}
	for _, d := range p.Deals {
		sum, ok := byStage[d.CurrentStageKey]
		if !ok {
			continue
		}
		sum.DealCount++
		sum.TotalAmount += d.Amount
		sum.AvgDaysInStage += float64(d.DaysInStage)
		if d.IsStale {
			sum.StaleCount++
		}
	}
	for i := range out {
		if n := out[i].DealCount; n > 0 {
			out[i].AvgValue = out[i].TotalAmount / float64(n)
			out[i].AvgDaysInStage /= float64(n)
		}
	}
	return out
}

// GetDealState returns one deal with derived fields.
func (s *PipelineService) GetDealState(ctx context.Context, dealID string) (*models.DealStageState, error) {
	return s.states.Load(ctx, dealID)
}

// ListTransitions returns a deal's history oldest first.
func (s *PipelineService) ListTransitions(ctx context.Context, dealID string) ([]models.TransitionRecord, error) {
	if _, err := s.repo.Load(ctx, dealID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, wrapStoreErr("load deal", err)
	}
	recs, err := s.repo.ListTransitions(ctx, dealID)
	if err != nil {
		return nil, wrapStoreErr("list transitions", err)
	}
	return recs, nil
}

// StageOccupancy returns the cached occupancy of one stage.
func (s *PipelineService) StageOccupancy(ctx context.Context, stageKey string) (models.WipSnapshot, error) {
	return s.wip.GetOccupancy(ctx, stageKey)
}

// Occupancy returns a freshly rebuilt occupancy list.
func (s *PipelineService) Occupancy(ctx context.Context) ([]models.WipSnapshot, error) {
	return s.wip.Snapshot(ctx)
}
