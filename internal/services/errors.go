package services

import (
	"errors"
	"fmt"
)

var (
	// ErrDealNotFound is returned when the deal id does not exist.
	ErrDealNotFound = errors.New("deal not found")
	// ErrStageNotFound is returned for an unknown stage key.
	ErrStageNotFound = errors.New("stage not found")
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStageExists is returned when adding a stage whose key is taken.
	ErrStageExists = errors.New("stage already exists")
	// ErrNoOp is the rejection reason for a move into the current stage.
	ErrNoOp = errors.New("deal is already in the target stage")
	// ErrWipLimitExceeded is the rejection reason for a full target stage.
	ErrWipLimitExceeded = errors.New("wip limit exceeded")
	// ErrValidationFailed wraps every rejected transition.
	ErrValidationFailed = errors.New("transition validation failed")
	// ErrConcurrentModification means the deal changed after it was loaded.
	ErrConcurrentModification = errors.New("deal was modified concurrently")
	// ErrStageInUse blocks removal of a stage that deals or history reference.
	ErrStageInUse = errors.New("stage is referenced by deals or history")
	// ErrHookExecutionFailed marks a failed automation hook. It is logged,
	// never returned to transition callers.
	ErrHookExecutionFailed = errors.New("automation hook failed")
	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidStage is returned by catalog mutations with bad input.
	ErrInvalidStage = errors.New("invalid stage definition")
)

// ValidationReason is the machine readable cause of a rejected transition.
type ValidationReason string

const (
	ReasonNone             ValidationReason = ""
	ReasonStageNotFound    ValidationReason = "stage_not_found"
	ReasonNoOp             ValidationReason = "no_op"
	ReasonWipLimitExceeded ValidationReason = "wip_limit_exceeded"
)

func (r ValidationReason) sentinel() error {
	switch r {
	case ReasonStageNotFound:
		return ErrStageNotFound
	case ReasonNoOp:
		return ErrNoOp
	case ReasonWipLimitExceeded:
		return ErrWipLimitExceeded
	}
	return nil
}

// ValidationError is returned when a transition is rejected. It matches
// ErrValidationFailed and the sentinel of its reason.
type ValidationError struct {
	Reason   ValidationReason
	StageKey string
	Count    int
	Limit    *int
	Warnings []string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonWipLimitExceeded:
		limit := 0
		if e.Limit != nil {
			limit = *e.Limit
		}
		return fmt.Sprintf("WIP limit exceeded for %s stage (%d/%d). Override required.", e.StageKey, e.Count, limit)
	case ReasonNoOp:
		return fmt.Sprintf("deal is already in stage %s", e.StageKey)
	case ReasonStageNotFound:
		return fmt.Sprintf("stage %q does not exist", e.StageKey)
	}
	return ErrValidationFailed.Error()
}

func (e *ValidationError) Unwrap() []error {
	if s := e.Reason.sentinel(); s != nil {
		return []error{ErrValidationFailed, s}
	}
	return []error{ErrValidationFailed}
}

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// HookError is logged by the dispatcher for each failed hook.
type HookError struct {
	Hook     string
	DealID   string
	StageKey string
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s for deal %s (stage %s): %v", e.Hook, e.DealID, e.StageKey, e.Err)
}

func (e *HookError) Unwrap() []error { return []error{ErrHookExecutionFailed, e.Err} }
