package models

// StageTaskTemplate describes a task created automatically when a deal
// enters a stage.
type StageTaskTemplate struct {
	Title       string       `json:"title" yaml:"title" validate:"required"`
	Description string       `json:"description,omitempty" yaml:"description"`
	Priority    TaskPriority `json:"priority" yaml:"priority" validate:"omitempty,oneof=low normal high urgent"`
	DueDays     int          `json:"due_days" yaml:"due_days" validate:"gte=0"`
}

// StageDefinition is one column of the deal pipeline.
type StageDefinition struct {
	Key                string              `json:"key" yaml:"key" validate:"required"`
	DisplayName        string              `json:"display_name" yaml:"display_name" validate:"required"`
	SortOrder          int                 `json:"sort_order" yaml:"sort_order"`
	WipLimit           *int                `json:"wip_limit,omitempty" yaml:"wip_limit" validate:"omitempty,gt=0"`
	WarningDays        *int                `json:"warning_days,omitempty" yaml:"warning_days" validate:"omitempty,gt=0"`
	CriticalDays       *int                `json:"critical_days,omitempty" yaml:"critical_days" validate:"omitempty,gt=0"`
	DefaultProbability int                 `json:"default_probability" yaml:"default_probability" validate:"gte=0,lte=100"`
	IsWonTerminal      bool                `json:"is_won_terminal" yaml:"is_won_terminal"`
	IsLostTerminal     bool                `json:"is_lost_terminal" yaml:"is_lost_terminal"`
	SalesStage         string              `json:"sales_stage,omitempty" yaml:"sales_stage"`
	NextStages         []string            `json:"next_stages,omitempty" yaml:"next_stages"`
	AutoTasks          []StageTaskTemplate `json:"auto_tasks,omitempty" yaml:"auto_tasks" validate:"dive"`
}

func (s StageDefinition) IsTerminal() bool {
	return s.IsWonTerminal || s.IsLostTerminal
}

// IntPtr is a small helper for optional stage thresholds.
func IntPtr(v int) *int {
	return &v
}
