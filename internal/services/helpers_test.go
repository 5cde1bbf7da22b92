package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"makedeal/internal/metrics"
	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStages() []models.StageDefinition {
	return []models.StageDefinition{
		{Key: "sourcing", DisplayName: "Sourcing", SortOrder: 10, DefaultProbability: 10, SalesStage: "Prospecting"},
		{Key: "screening", DisplayName: "Screening", SortOrder: 20, DefaultProbability: 20,
			WipLimit: models.IntPtr(2), WarningDays: models.IntPtr(14), CriticalDays: models.IntPtr(30)},
		{Key: "analysis", DisplayName: "Analysis", SortOrder: 30, DefaultProbability: 30},
		{Key: "due_diligence", DisplayName: "Due Diligence", SortOrder: 40, DefaultProbability: 50,
			WipLimit: models.IntPtr(1),
			AutoTasks: []models.StageTaskTemplate{
				{Title: "Review financial statements", Priority: models.PriorityHigh, DueDays: 7},
				{Title: "Verify legal documentation", Priority: models.PriorityHigh, DueDays: 7},
			}},
		{Key: "closing", DisplayName: "Closing", SortOrder: 50, DefaultProbability: 90},
		{Key: "closed_won", DisplayName: "Closed Won", SortOrder: 60, DefaultProbability: 100,
			IsWonTerminal: true, SalesStage: "Closed Won"},
		{Key: "closed_lost", DisplayName: "Closed Lost", SortOrder: 70, DefaultProbability: 0,
			IsLostTerminal: true, SalesStage: "Closed Lost"},
	}
}

// engineFixture wires the whole engine on an in-memory store.
type engineFixture struct {
	store    *repositories.MemoryStore
	tasks    *repositories.MemoryTaskRepository
	taskSvc  TaskService
	catalog  *StageCatalog
	states   *DealStateService
	wip      *WipTracker
	hooks    *HookDispatcher
	metrics  *metrics.PipelineMetrics
	engine   *StageTransitionService
	pipeline *PipelineService
}

// wrap, when non-nil, decorates the store seen by the services.
func newEngineFixture(t *testing.T, wrap func(*repositories.MemoryStore) repositories.DealStageRepository) *engineFixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	var repo repositories.DealStageRepository = store
	if wrap != nil {
		repo = wrap(store)
	}
	catalog, err := NewStageCatalog(testStages(), store, quietLogger())
	require.NoError(t, err)

	f := &engineFixture{
		store:   store,
		tasks:   repositories.NewMemoryTaskRepository(),
		catalog: catalog,
		metrics: metrics.New(),
	}
	f.taskSvc = NewTaskService(f.tasks)
	f.states = NewDealStateService(repo, catalog, nil)
	f.states.now = func() time.Time { return testNow }
	f.wip = NewWipTracker(repo, catalog, f.metrics, quietLogger())
	f.hooks = NewHookDispatcher(quietLogger(), WithHookMetrics(f.metrics))
	f.engine = NewStageTransitionService(repo, catalog, f.states, f.wip, f.hooks, f.taskSvc, quietLogger(),
		WithClock(func() time.Time { return testNow }),
		WithTransitionMetrics(f.metrics),
	)
	f.pipeline = NewPipelineService(repo, catalog, f.states, f.wip)
	return f
}

func (f *engineFixture) putDeal(id, stage string, enteredDaysAgo int, opts ...func(*models.DealStageState)) {
	d := models.DealStageState{
		DealID:          id,
		Name:            "Deal " + id,
		CurrentStageKey: stage,
		StageEnteredAt:  testNow.Add(-time.Duration(enteredDaysAgo) * 24 * time.Hour),
		Status:          models.DealOpen,
		AssignedUserID:  "owner-1",
	}
	for _, o := range opts {
		o(&d)
	}
	f.store.PutDeal(d)
}

var alice = UserContext{UserID: "alice", RoleID: 10}
