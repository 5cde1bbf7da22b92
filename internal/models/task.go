// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusNew        TaskStatus = "new"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// EntityTypeDeal marks tasks attached to a deal.
const EntityTypeDeal = "deal"

// Task is a follow-up item attached to a deal, usually created by a stage
// automation hook.
type Task struct {
	ID          string       `json:"id"`
	CreatorID   string       `json:"creator_id"`
	AssigneeID  string       `json:"assignee_id"`
	EntityID    string       `json:"entity_id"`
	EntityType  string       `json:"entity_type"`
	StageKey    string       `json:"stage_key,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TaskFilter defines the available parameters for filtering tasks.
type TaskFilter struct {
	AssigneeID *string
	EntityID   *string
	EntityType *string
	Status     *TaskStatus
}

// Open reports whether the task still needs work.
func (t Task) Open() bool {
	return t.Status != StatusDone && t.Status != StatusCancelled
}
