// internal/services/task_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// TaskService defines the task operations the pipeline automation needs.
type TaskService interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error)

	// CreateStageTasks instantiates the stage's task templates for a deal.
	CreateStageTasks(ctx context.Context, stage models.StageDefinition, deal models.DealStageState, creatorID string) ([]models.Task, error)
	// CancelOpenTasks cancels all unfinished tasks of a deal.
	CancelOpenTasks(ctx context.Context, dealID string) (int64, error)
}

type taskService struct {
	repo repositories.TaskRepository
	now  func() time.Time
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(repo repositories.TaskRepository) TaskService {
	return &taskService{repo: repo, now: time.Now}
}

func (s *taskService) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.StatusNew
	}
	if task.Priority == "" {
		task.Priority = models.PriorityNormal
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.repo.Store(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, id string) (*models.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("load task", err)
	}
	return t, nil
}

func (s *taskService) GetAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *taskService) UpdateStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error) {
	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, wrapStoreErr("update task status", err)
	}
	return s.GetByID(ctx, id)
}

func (s *taskService) CreateStageTasks(ctx context.Context, stage models.StageDefinition, deal models.DealStageState, creatorID string) ([]models.Task, error) {
	created := make([]models.Task, 0, len(stage.AutoTasks))
	for _, tpl := range stage.AutoTasks {
		due := s.now().AddDate(0, 0, tpl.DueDays)
		task := &models.Task{
			CreatorID:   creatorID,
			AssigneeID:  deal.AssignedUserID,
			EntityID:    deal.DealID,
			EntityType:  models.EntityTypeDeal,
			StageKey:    stage.Key,
			Title:       tpl.Title,
			Description: tpl.Description,
			DueDate:     &due,
			Priority:    tpl.Priority,
		}
		t, err := s.Create(ctx, task)
		if err != nil {
			return created, err
		}
		created = append(created, *t)
	}
	return created, nil
}

func (s *taskService) CancelOpenTasks(ctx context.Context, dealID string) (int64, error) {
	return s.repo.CancelOpenForEntity(ctx, models.EntityTypeDeal, dealID)
}
