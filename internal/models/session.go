package models

import "time"

// SessionStatus represents the status of an analysis session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusAnalyzing SessionStatus = "analyzing"
	SessionStatusComplete  SessionStatus = "complete"
	SessionStatusError     SessionStatus = "error"
)

// AnalysisSession represents the analysis of one well history document.
type AnalysisSession struct {
	ID                string        `json:"id"`
	FileID            string        `json:"fileId,omitempty"`
	FileName          string        `json:"fileName,omitempty"`
	Status            SessionStatus `json:"status"`
	InterventionCount int           `json:"interventionCount"`
	AnalyzedCount     int           `json:"analyzedCount"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	LastError         string        `json:"lastError,omitempty"`
}

// NewAnalysisSession creates a new AnalysisSession in pending status.
func NewAnalysisSession(id, fileID, fileName string, interventions int) *AnalysisSession {
	now := time.Now()
	return &AnalysisSession{
		ID:                id,
		FileID:            fileID,
		FileName:          fileName,
		Status:            SessionStatusPending,
		InterventionCount: interventions,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// InterventionAnalysis is the stored outcome of analyzing one intervention.
type InterventionAnalysis struct {
	Index      int                 `json:"index"`
	Rank       int                 `json:"rank"`
	Resumen    string              `json:"resumen"`
	Mode       string              `json:"mode,omitempty"`
	Payload    InterventionPayload `json:"payload"`
	Report     FoldReport          `json:"report"`
	Attempts   int                 `json:"attempts"`
	AnalyzedAt time.Time           `json:"analyzedAt"`
}

// Chronology is the analysis order of a session's interventions.
type Chronology struct {
	Order     []int       `json:"order"`
	Ranks     map[int]int `json:"ranks"`
	Completed int         `json:"completed"`
	Next      *int        `json:"next"`
}
