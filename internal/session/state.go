package session

import (
	"sort"
	"strings"
	"time"

	"github.com/well-timeline/backend/internal/chrono"
	"github.com/well-timeline/backend/internal/models"
)

// sessionState is the in-memory event log of one session. history[k] is the
// well state after the first k interventions in chronological order, and the
// analyzed interventions are always a prefix of that order.
type sessionState struct {
	session      *models.AnalysisSession
	items        []models.RawIntervention
	byIndex      map[int]int
	seq          *chrono.Sequence
	analyses     map[int]*models.InterventionAnalysis
	history      []*models.WellState
	busy         bool
	lastAccessed time.Time
}

func newSessionState(s *models.AnalysisSession, items []models.RawIntervention, initial *models.WellState) *sessionState {
	if initial == nil {
		initial = models.NewWellState()
	}
	st := &sessionState{
		session:      s,
		items:        items,
		byIndex:      make(map[int]int, len(items)),
		seq:          chrono.New(items),
		analyses:     make(map[int]*models.InterventionAnalysis),
		history:      []*models.WellState{initial},
		lastAccessed: time.Now(),
	}
	for pos, it := range items {
		st.byIndex[it.Index] = pos
	}
	return st
}

func (s *sessionState) done(index int) bool {
	_, ok := s.analyses[index]
	return ok
}

// step is the number of folds applied so far.
func (s *sessionState) step() int {
	return len(s.history) - 1
}

func (s *sessionState) current() *models.WellState {
	return s.history[len(s.history)-1]
}

func (s *sessionState) item(index int) (models.RawIntervention, bool) {
	pos, ok := s.byIndex[index]
	if !ok {
		return models.RawIntervention{}, false
	}
	return s.items[pos], true
}

func (s *sessionState) chronology() models.Chronology {
	return s.seq.Chronology(s.done)
}

// settle derives the session status from the analyzed count.
func (s *sessionState) settle() {
	s.session.AnalyzedCount = len(s.analyses)
	if s.session.AnalyzedCount >= s.session.InterventionCount {
		s.session.Status = models.SessionStatusComplete
	} else {
		s.session.Status = models.SessionStatusPending
	}
}

// orderedAnalyses returns the stored analyses in chronological order.
func (s *sessionState) orderedAnalyses() []models.InterventionAnalysis {
	out := make([]models.InterventionAnalysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// withFallbackDate fills a missing payload date from the intervention's
// resolved ISO date, then its raw date label.
func withFallbackDate(p models.InterventionPayload, item models.RawIntervention) models.InterventionPayload {
	if p.Fecha != nil && strings.TrimSpace(*p.Fecha) != "" {
		return p
	}
	if d := chrono.ResolveDate(item); d != "" {
		p.Fecha = &d
	} else if label := strings.TrimSpace(item.FechaTexto); label != "" {
		p.Fecha = &label
	}
	return p
}
