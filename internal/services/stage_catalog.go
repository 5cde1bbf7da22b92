package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// StageCatalog is the ordered set of pipeline stages. It is loaded once and
// shared by reference between the engine, the validator and the WIP tracker;
// administrative mutations take the write lock.
type StageCatalog struct {
	mu     sync.RWMutex
	stages []models.StageDefinition
	index  map[string]int

	store  repositories.StageRepository
	logger *slog.Logger
}

// NewStageCatalog validates and orders the given stages. store may be nil, in
// which case mutations only change the in-memory catalog.
func NewStageCatalog(stages []models.StageDefinition, store repositories.StageRepository, logger *slog.Logger) (*StageCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &StageCatalog{store: store, logger: logger}
	if err := c.replace(stages); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *StageCatalog) replace(stages []models.StageDefinition) error {
	ordered := make([]models.StageDefinition, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SortOrder < ordered[j].SortOrder })

	index := make(map[string]int, len(ordered))
	for i, s := range ordered {
		if s.Key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidStage)
		}
		if _, dup := index[s.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidStage, s.Key)
		}
		if i > 0 && ordered[i-1].SortOrder == s.SortOrder {
			return fmt.Errorf("%w: stages %q and %q share sort order %d",
				ErrInvalidStage, ordered[i-1].Key, s.Key, s.SortOrder)
		}
		if s.DefaultProbability < 0 || s.DefaultProbability > 100 {
			return fmt.Errorf("%w: %q default probability out of range", ErrInvalidStage, s.Key)
		}
		if s.IsWonTerminal && s.IsLostTerminal {
			return fmt.Errorf("%w: %q cannot be both won and lost", ErrInvalidStage, s.Key)
		}
		index[s.Key] = i
	}

	c.mu.Lock()
	c.stages = ordered
	c.index = index
	c.mu.Unlock()
	return nil
}

// GetStages returns the stages in canonical order.
func (c *StageCatalog) GetStages() []models.StageDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.StageDefinition, len(c.stages))
	copy(out, c.stages)
	return out
}

func (c *StageCatalog) GetStage(key string) (models.StageDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[key]
	if !ok {
		return models.StageDefinition{}, fmt.Errorf("%w: %s", ErrStageNotFound, key)
	}
	return c.stages[i], nil
}

// Position is the zero-based index of key in canonical order.
func (c *StageCatalog) Position(key string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[key]
	return i, ok
}

// Between returns the stages strictly between positions from and to.
func (c *StageCatalog) Between(from, to int) []models.StageDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if from > to {
		from, to = to, from
	}
	if from < -1 || to > len(c.stages) || to-from <= 1 {
		return nil
	}
	out := make([]models.StageDefinition, 0, to-from-1)
	out = append(out, c.stages[from+1:to]...)
	return out
}

// AddStage inserts a new stage. Keys are permanent identities.
func (c *StageCatalog) AddStage(ctx context.Context, stage models.StageDefinition) error {
	if _, err := c.GetStage(stage.Key); err == nil {
		return fmt.Errorf("%w: %s", ErrStageExists, stage.Key)
	}
	next := append(c.GetStages(), stage)
	if err := c.persist(ctx, func(s repositories.StageRepository) error { return s.SaveStage(ctx, stage) }, next); err != nil {
		return err
	}
	c.logger.Info("stage added", "stage", stage.Key, "sort_order", stage.SortOrder)
	return nil
}

// UpdateStage replaces every attribute of an existing stage except its key.
func (c *StageCatalog) UpdateStage(ctx context.Context, stage models.StageDefinition) error {
	pos, ok := c.Position(stage.Key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stage.Key)
	}
	next := c.GetStages()
	next[pos] = stage
	if err := c.persist(ctx, func(s repositories.StageRepository) error { return s.SaveStage(ctx, stage) }, next); err != nil {
		return err
	}
	c.logger.Info("stage updated", "stage", stage.Key)
	return nil
}

// Reorder assigns sort orders 10, 20, ... following keys, which must name
// every stage exactly once.
func (c *StageCatalog) Reorder(ctx context.Context, keys []string) error {
	current := c.GetStages()
	if len(keys) != len(current) {
		return fmt.Errorf("%w: reorder needs all %d stage keys, got %d", ErrInvalidStage, len(current), len(keys))
	}
	byKey := make(map[string]models.StageDefinition, len(current))
	for _, s := range current {
		byKey[s.Key] = s
	}

	orders := make(map[string]int, len(keys))
	next := make([]models.StageDefinition, 0, len(keys))
	for i, k := range keys {
		s, ok := byKey[k]
		if !ok {
			return fmt.Errorf("%w: %s", ErrStageNotFound, k)
		}
		if _, dup := orders[k]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidStage, k)
		}
		s.SortOrder = (i + 1) * 10
		orders[k] = s.SortOrder
		next = append(next, s)
	}
	if err := c.persist(ctx, func(s repositories.StageRepository) error { return s.SaveSortOrders(ctx, orders) }, next); err != nil {
		return err
	}
	c.logger.Info("stages reordered", "order", keys)
	return nil
}

// RemoveStage deletes a stage that no deal or history record references.
func (c *StageCatalog) RemoveStage(ctx context.Context, key string) error {
	if _, ok := c.Position(key); !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, key)
	}
	if c.store != nil {
		used, err := c.store.StageReferenced(ctx, key)
		if err != nil {
			return &PersistenceError{Op: "check stage references", Err: err}
		}
		if used {
			return fmt.Errorf("%w: %s", ErrStageInUse, key)
		}
	}

	var next []models.StageDefinition
	for _, s := range c.GetStages() {
		if s.Key != key {
			next = append(next, s)
		}
	}
	err := c.persist(ctx, func(s repositories.StageRepository) error {
		if err := s.DeleteStage(ctx, key); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return nil
	}, next)
	if err != nil {
		return err
	}
	c.logger.Info("stage removed", "stage", key)
	return nil
}

// persist validates next, writes through the store and only then swaps the
// in-memory catalog.
func (c *StageCatalog) persist(ctx context.Context, write func(repositories.StageRepository) error, next []models.StageDefinition) error {
	candidate := &StageCatalog{}
	if err := candidate.replace(next); err != nil {
		return err
	}
	if c.store != nil {
		if err := write(c.store); err != nil {
			return &PersistenceError{Op: "save stage catalog", Err: err}
		}
	}
	return c.replace(next)
}
