package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"makedeal/internal/models"
)

// MemoryStore keeps deals, history and the stage catalog in process. It
// backs the memory storage driver and the service tests.
type MemoryStore struct {
	mu      sync.Mutex
	deals   map[string]models.DealStageState
	history map[string][]models.TransitionRecord
	stages  map[string]models.StageDefinition
}

var (
	_ DealStageRepository = (*MemoryStore)(nil)
	_ StageRepository     = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deals:   make(map[string]models.DealStageState),
		history: make(map[string][]models.TransitionRecord),
		stages:  make(map[string]models.StageDefinition),
	}
}

// PutDeal inserts or replaces a deal.
func (m *MemoryStore) PutDeal(d models.DealStageState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Status == "" {
		d.Status = models.DealOpen
	}
	m.deals[d.DealID] = d
}

func (m *MemoryStore) Load(ctx context.Context, dealID string) (*models.DealStageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[dealID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) List(ctx context.Context, filter models.PipelineFilter) ([]models.DealStageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stageSet := map[string]bool{}
	for _, k := range filter.StageKeys {
		stageSet[k] = true
	}

	m.mu.Lock()
	out := make([]models.DealStageState, 0, len(m.deals))
	for _, d := range m.deals {
		if len(stageSet) > 0 && !stageSet[d.CurrentStageKey] {
			continue
		}
		if filter.AssignedUserID != "" && d.AssignedUserID != filter.AssignedUserID {
			continue
		}
		if !filter.IncludeClosed && d.IsClosed() {
			continue
		}
		out = append(out, d)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StageEnteredAt.Equal(out[j].StageEnteredAt) {
			return out[i].StageEnteredAt.Before(out[j].StageEnteredAt)
		}
		return out[i].DealID < out[j].DealID
	})
	return out, nil
}

func (m *MemoryStore) CountInStage(ctx context.Context, stageKey string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(stageKey, ""), nil
}

func (m *MemoryStore) CountByStage(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, d := range m.deals {
		out[d.CurrentStageKey]++
	}
	return out, nil
}

func (m *MemoryStore) countLocked(stageKey, exclude string) int {
	n := 0
	for id, d := range m.deals {
		if d.CurrentStageKey == stageKey && id != exclude {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CommitTransition(ctx context.Context, commit models.StageCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deals[commit.State.DealID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != commit.ExpectedVersion {
		return ErrVersionConflict
	}
	if g := commit.Guard; g != nil {
		if n := m.countLocked(g.StageKey, commit.State.DealID); n >= g.Limit {
			return &WipGuardError{StageKey: g.StageKey, Count: n, Limit: g.Limit}
		}
	}

	next := commit.State
	next.Version = current.Version + 1
	m.deals[next.DealID] = next
	m.history[next.DealID] = append(m.history[next.DealID], commit.Record)
	return nil
}

func (m *MemoryStore) ListTransitions(ctx context.Context, dealID string) ([]models.TransitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.history[dealID]
	out := make([]models.TransitionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *MemoryStore) ListStages(ctx context.Context) ([]models.StageDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StageDefinition, 0, len(m.stages))
	for _, s := range m.stages {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *MemoryStore) SaveStage(ctx context.Context, stage models.StageDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage.Key] = stage
	return nil
}

// SaveSortOrders ignores keys it does not hold, like the SQL UPDATE does.
func (m *MemoryStore) SaveSortOrders(ctx context.Context, orders map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, order := range orders {
		if s, ok := m.stages[key]; ok {
			s.SortOrder = order
			m.stages[key] = s
		}
	}
	return nil
}

func (m *MemoryStore) DeleteStage(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stages[key]; !ok {
		return ErrNotFound
	}
	delete(m.stages, key)
	return nil
}

func (m *MemoryStore) StageReferenced(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deals {
		if d.CurrentStageKey == key {
			return true, nil
		}
	}
	for _, recs := range m.history {
		for _, r := range recs {
			if r.ToStageKey == key || (r.FromStageKey != nil && *r.FromStageKey == key) {
				return true, nil
			}
		}
	}
	return false, nil
}

// MemoryTaskRepository is the in-process TaskRepository.
type MemoryTaskRepository struct {
	mu    sync.Mutex
	tasks []models.Task
}

var _ TaskRepository = (*MemoryTaskRepository)(nil)

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{}
}

func (r *MemoryTaskRepository) Store(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, *task)
	return nil
}

func (r *MemoryTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryTaskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if filter.AssigneeID != nil && t.AssigneeID != *filter.AssigneeID {
			continue
		}
		if filter.EntityID != nil && t.EntityID != *filter.EntityID {
			continue
		}
		if filter.EntityType != nil && t.EntityType != *filter.EntityType {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *MemoryTaskRepository) UpdateStatus(ctx context.Context, id string, to models.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks[i].Status = to
			r.tasks[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryTaskRepository) CancelOpenForEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.tasks {
		t := &r.tasks[i]
		if t.EntityType == entityType && t.EntityID == entityID && t.Open() {
			t.Status = models.StatusCancelled
			t.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}
