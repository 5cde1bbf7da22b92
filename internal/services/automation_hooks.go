package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"makedeal/internal/metrics"
)

// WildcardStage registers a hook for every destination stage.
const WildcardStage = "*"

// HookFunc is a side effect run after a transition commits. Errors and
// panics are contained by the dispatcher.
type HookFunc func(ctx context.Context, result TransitionResult) error

type registeredHook struct {
	name string
	fn   HookFunc
}

// HookDispatcher runs registered hooks for committed transitions. Hooks for
// the destination stage run first, then wildcard hooks, each group in
// registration order.
type HookDispatcher struct {
	mu    sync.RWMutex
	hooks map[string][]registeredHook

	async   bool
	timeout time.Duration
	wg      sync.WaitGroup

	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

// DispatcherOption configures a HookDispatcher.
type DispatcherOption func(*HookDispatcher)

// WithAsyncHooks runs each dispatch on its own goroutine.
func WithAsyncHooks(async bool) DispatcherOption {
	return func(d *HookDispatcher) { d.async = async }
}

// WithHookTimeout bounds each hook invocation. Zero disables the bound.
func WithHookTimeout(timeout time.Duration) DispatcherOption {
	return func(d *HookDispatcher) { d.timeout = timeout }
}

func WithHookMetrics(m *metrics.PipelineMetrics) DispatcherOption {
	return func(d *HookDispatcher) { d.metrics = m }
}

func NewHookDispatcher(logger *slog.Logger, opts ...DispatcherOption) *HookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &HookDispatcher{
		hooks:  make(map[string][]registeredHook),
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterHook adds fn for stageKey, or for every stage when stageKey is
// WildcardStage.
func (d *HookDispatcher) RegisterHook(stageKey, name string, fn HookFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[stageKey] = append(d.hooks[stageKey], registeredHook{name: name, fn: fn})
}

func (d *HookDispatcher) matching(stageKey string) []registeredHook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]registeredHook, 0, len(d.hooks[stageKey])+len(d.hooks[WildcardStage]))
	out = append(out, d.hooks[stageKey]...)
	if stageKey != WildcardStage {
		out = append(out, d.hooks[WildcardStage]...)
	}
	return out
}

// Dispatch runs the hooks matching the destination of result. It never
// returns hook failures; in async mode it returns immediately.
func (d *HookDispatcher) Dispatch(ctx context.Context, result TransitionResult) {
	if d == nil {
		return
	}
	hooks := d.matching(result.NewState.CurrentStageKey)
	if len(hooks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if !d.async {
		d.run(ctx, hooks, result)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, hooks, result)
	}()
}

// Wait blocks until asynchronous dispatches finish.
func (d *HookDispatcher) Wait() {
	d.wg.Wait()
}

func (d *HookDispatcher) run(ctx context.Context, hooks []registeredHook, result TransitionResult) {
	for _, h := range hooks {
		if err := d.invoke(ctx, h, result); err != nil {
			d.metrics.HookFailed(h.name)
			d.logger.Error("automation hook failed",
				"hook", h.name,
				"deal_id", result.NewState.DealID,
				"from_stage", result.PreviousStageKey,
				"to_stage", result.NewState.CurrentStageKey,
				"error", err,
			)
		}
	}
}

func (d *HookDispatcher) invoke(ctx context.Context, h registeredHook, result TransitionResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{
				Hook:     h.name,
				DealID:   result.NewState.DealID,
				StageKey: result.NewState.CurrentStageKey,
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if hookErr := h.fn(ctx, result); hookErr != nil {
		return &HookError{
			Hook:     h.name,
			DealID:   result.NewState.DealID,
			StageKey: result.NewState.CurrentStageKey,
			Err:      hookErr,
		}
	}
	return nil
}
