package services

import (
	"context"

	"makedeal/internal/metrics"
)

// Names of the built-in hooks, used in logs and the hook failure metric.
const (
	HookStageTasks     = "stage-tasks"
	HookNotify         = "notify"
	HookPublishEvent   = "publish-event"
	HookBoardBroadcast = "board-broadcast"
	HookMetrics        = "metrics"
)

// StageTaskHook creates the destination stage's task templates for the deal.
func StageTaskHook(catalog *StageCatalog, tasks TaskService) HookFunc {
	return func(ctx context.Context, r TransitionResult) error {
		stage, err := catalog.GetStage(r.NewState.CurrentStageKey)
		if err != nil {
			return err
		}
		if len(stage.AutoTasks) == 0 {
			return nil
		}
		_, err = tasks.CreateStageTasks(ctx, stage, r.NewState, r.Record.ChangedBy)
		return err
	}
}

// NotificationHook sends a stage change notice through n.
func NotificationHook(catalog *StageCatalog, n Notifier) HookFunc {
	return func(ctx context.Context, r TransitionResult) error {
		return n.NotifyStageChange(ctx, NewStageChangeNotice(catalog, r))
	}
}

// EventHook publishes every transition to the event stream.
func EventHook(p *EventPublisher) HookFunc {
	return p.Publish
}

// MetricsHook records how long the deal stayed in the stage it left.
func MetricsHook(m *metrics.PipelineMetrics) HookFunc {
	return func(_ context.Context, r TransitionResult) error {
		if r.PreviousStageKey != "" {
			m.ObserveDaysInStage(r.PreviousStageKey, r.DaysInPreviousStage)
		}
		return nil
	}
}

// BoardBroadcaster pushes board updates to live clients.
type BoardBroadcaster interface {
	Broadcast(stageKeys []string, v any) error
}

// BoardHook sends the transition event to board clients watching either
// the stage the deal left or the one it entered.
func BoardHook(b BoardBroadcaster) HookFunc {
	return func(_ context.Context, r TransitionResult) error {
		stages := []string{r.NewState.CurrentStageKey}
		if r.PreviousStageKey != "" {
			stages = append(stages, r.PreviousStageKey)
		}
		return b.Broadcast(stages, NewTransitionEvent(r))
	}
}
