package session

import "errors"

var (
	ErrNotFound             = errors.New("session not found")
	ErrInterventionNotFound = errors.New("intervention not found")
	ErrNoInterventions      = errors.New("no interventions found")
	ErrDuplicateIndex       = errors.New("duplicate intervention index")
	ErrOutOfOrder           = errors.New("intervention is not next in chronological order")
	ErrBusy                 = errors.New("an analysis is already in progress for this session")
	ErrNotAnalyzed          = errors.New("intervention has not been analyzed")
	ErrStepOutOfRange       = errors.New("history step out of range")
)

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
