// Package persistence stores analysis sessions, their per-intervention
// results and the well-state snapshot after every fold in a SQL database.
package persistence

import (
	"context"
	"errors"

	"github.com/well-timeline/backend/internal/models"
)

// ErrNotFound is returned when a session is not stored.
var ErrNotFound = errors.New("session not found")

// SessionRecord is everything stored for one session.
type SessionRecord struct {
	Session       models.AnalysisSession
	Interventions []models.RawIntervention
	// Analyses is ordered by rank.
	Analyses []models.InterventionAnalysis
	// Snapshots[k] is the state after k folds, so Snapshots[0] is the
	// initial state.
	Snapshots []*models.WellState
}

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, s models.AnalysisSession, items []models.RawIntervention, initial *models.WellState) error
	UpdateSession(ctx context.Context, s models.AnalysisSession) error
	// SaveStep upserts an analysis and the snapshot that followed it.
	SaveStep(ctx context.Context, sessionID string, a models.InterventionAnalysis, step int, state *models.WellState) error
	LoadSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context) ([]models.AnalysisSession, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}
