package services

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"makedeal/internal/metrics"
	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// WipTracker caches per-stage deal counts. The cache is advisory: the
// engine validates against LiveCount and the store re-checks inside the
// commit.
type WipTracker struct {
	mu     sync.RWMutex
	counts map[string]int

	repo    repositories.DealStageRepository
	catalog *StageCatalog
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

func NewWipTracker(repo repositories.DealStageRepository, catalog *StageCatalog, m *metrics.PipelineMetrics, logger *slog.Logger) *WipTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &WipTracker{
		counts:  make(map[string]int),
		repo:    repo,
		catalog: catalog,
		metrics: m,
		logger:  logger,
	}
}

// LiveCount reads the authoritative count, bypassing the cache.
func (t *WipTracker) LiveCount(ctx context.Context, stageKey string) (int, error) {
	n, err := t.repo.CountInStage(ctx, stageKey)
	if err != nil {
		return 0, wrapStoreErr("count deals in stage", err)
	}
	return n, nil
}

// GetOccupancy returns the cached occupancy of a stage, loading it on a miss.
func (t *WipTracker) GetOccupancy(ctx context.Context, stageKey string) (models.WipSnapshot, error) {
	stage, err := t.catalog.GetStage(stageKey)
	if err != nil {
		return models.WipSnapshot{}, err
	}
	t.mu.RLock()
	n, ok := t.counts[stageKey]
	t.mu.RUnlock()
	if ok {
		return snapshotFor(stage, n), nil
	}
	return t.Refresh(ctx, stageKey)
}

// Refresh recounts one stage and stores the result.
func (t *WipTracker) Refresh(ctx context.Context, stageKey string) (models.WipSnapshot, error) {
	stage, err := t.catalog.GetStage(stageKey)
	if err != nil {
		return models.WipSnapshot{}, err
	}
	n, err := t.LiveCount(ctx, stageKey)
	if err != nil {
		return models.WipSnapshot{}, err
	}
	t.mu.Lock()
	t.counts[stageKey] = n
	t.mu.Unlock()
	t.metrics.SetOccupancy(stageKey, n)
	return snapshotFor(stage, n), nil
}

// Invalidate drops cached counts so the next read recomputes them.
func (t *WipTracker) Invalidate(stageKeys ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range stageKeys {
		delete(t.counts, k)
	}
}

// RefreshAfterMove recounts the source and destination of a committed move.
// Failures only leave the cache cold.
func (t *WipTracker) RefreshAfterMove(ctx context.Context, from, to string) {
	t.Invalidate(from, to)
	for _, k := range []string{from, to} {
		if k == "" {
			continue
		}
		if _, err := t.Refresh(ctx, k); err != nil {
			t.logger.Warn("wip refresh failed", "stage", k, "error", err)
		}
	}
}

// Snapshot returns the occupancy of every stage in catalog order, rebuilding
// the whole cache from one grouped count.
func (t *WipTracker) Snapshot(ctx context.Context) ([]models.WipSnapshot, error) {
	counts, err := t.repo.CountByStage(ctx)
	if err != nil {
		return nil, wrapStoreErr("count deals by stage", err)
	}
	stages := t.catalog.GetStages()
	out := make([]models.WipSnapshot, 0, len(stages))

	t.mu.Lock()
	t.counts = make(map[string]int, len(stages))
	for _, s := range stages {
		n := counts[s.Key]
		t.counts[s.Key] = n
		out = append(out, snapshotFor(s, n))
	}
	t.mu.Unlock()

	for _, s := range out {
		t.metrics.SetOccupancy(s.StageKey, s.DealCount)
	}
	return out, nil
}

func snapshotFor(stage models.StageDefinition, count int) models.WipSnapshot {
	snap := models.WipSnapshot{
		StageKey:  stage.Key,
		DealCount: count,
		WipLimit:  stage.WipLimit,
	}
	if stage.WipLimit != nil && *stage.WipLimit > 0 {
		u := math.Round(float64(count)/float64(*stage.WipLimit)*1000) / 10
		snap.UtilizationPercent = &u
	}
	return snap
}
