package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a deal row changed after it was read.
	ErrVersionConflict = errors.New("version conflict")
)

// WipGuardError reports that the WIP re-check inside a commit failed.
type WipGuardError struct {
	StageKey string
	Count    int
	Limit    int
}

func (e *WipGuardError) Error() string {
	return fmt.Sprintf("stage %s is at its wip limit (%d/%d)", e.StageKey, e.Count, e.Limit)
}

// serialization_failure and deadlock_detected are retried by the caller as
// concurrent modifications.
func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
