package engine

import (
	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
)

// ValidateTransition reports whether a task may move from one status to another.
// There is no direct edge between not started and done in either direction.
func ValidateTransition(from, to domain.Status) error {
	switch from {
	case domain.StatusNotStarted:
		if to == domain.StatusInProgress {
			return nil
		}
	case domain.StatusInProgress:
		if to == domain.StatusDone || to == domain.StatusNotStarted {
			return nil
		}
	case domain.StatusDone:
		if to == domain.StatusInProgress {
			return nil
		}
	}
	return apperr.New(apperr.InvalidStatusTransition, "invalid status transition %q -> %q", from, to).
		With("from", string(from)).With("to", string(to))
}
