package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"makedeal/internal/models"
)

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateStatus(ctx context.Context, id string, to models.TaskStatus) error
	// CancelOpenForEntity cancels every task of the entity that is not done
	// or already cancelled and returns how many were changed.
	CancelOpenForEntity(ctx context.Context, entityType, entityID string) (int64, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, creator_id, assignee_id, entity_id, entity_type, stage_key, title, description,
       due_date, priority, status, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var (
		t   models.Task
		due sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.CreatorID, &t.AssigneeID, &t.EntityID, &t.EntityType, &t.StageKey,
		&t.Title, &t.Description, &due, &t.Priority, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	return t, err
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, creator_id, assignee_id, entity_id, entity_type, stage_key, title, description,
			due_date, priority, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.CreatorID, task.AssigneeID, task.EntityID, task.EntityType, task.StageKey,
		task.Title, task.Description, task.DueDate, task.Priority, task.Status,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store task: %w", err)
	}
	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`

	conditions := []string{}
	args := []interface{}{}
	argID := 1

	if filter.AssigneeID != nil {
		conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", argID))
		args = append(args, *filter.AssigneeID)
		argID++
	}
	if filter.EntityID != nil {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", argID))
		args = append(args, *filter.EntityID)
		argID++
	}
	if filter.EntityType != nil {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", argID))
		args = append(args, *filter.EntityType)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id string, to models.TaskStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status=$1, updated_at=NOW() WHERE id=$2`, to, id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepository) CancelOpenForEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status=$1, updated_at=NOW()
		WHERE entity_type=$2 AND entity_id=$3 AND status NOT IN ('done','cancelled')`,
		models.StatusCancelled, entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("cancel open tasks: %w", err)
	}
	return res.RowsAffected()
}
