// Package session runs analysis sessions: it orders the interventions of a
// well history, gates their analysis in chronological order and keeps the
// well state after every fold.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/events"
	"github.com/well-timeline/backend/internal/extract"
	"github.com/well-timeline/backend/internal/metrics"
	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/parser"
	"github.com/well-timeline/backend/internal/persistence"
	"github.com/well-timeline/backend/internal/wellstate"
)

// MaxSessions limits sessions held in memory
const MaxSessions = 50

// SessionMaxAge is how long an idle session stays in memory
const SessionMaxAge = 2 * time.Hour

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 10 * time.Minute

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Extractor   extract.Extractor
	Applier     *wellstate.Applier
	Store       persistence.Store
	Publisher   events.Publisher
	Metrics     *metrics.Metrics
	MaxSessions int
}

// Manager handles analysis sessions.
type Manager struct {
	sessions    map[string]*sessionState
	mu          sync.RWMutex
	extractor   extract.Extractor
	applier     *wellstate.Applier
	store       persistence.Store
	publisher   events.Publisher
	metrics     *metrics.Metrics
	maxSessions int
}

// CreateInput describes a new session. Items take precedence; otherwise
// Text is segmented into interventions.
type CreateInput struct {
	FileID   string
	FileName string
	Text     string
	Items    []models.RawIntervention
}

// Detail is the full view of a session.
type Detail struct {
	Session       models.AnalysisSession        `json:"session"`
	Interventions []models.RawIntervention      `json:"interventions"`
	Chronology    models.Chronology             `json:"chronology"`
	Analyses      []models.InterventionAnalysis `json:"analyses"`
}

// Outcome is the result of committing an analysis.
type Outcome struct {
	Analysis   models.InterventionAnalysis `json:"analysis"`
	Step       int                         `json:"step"`
	State      *models.WellState           `json:"state"`
	Chronology models.Chronology           `json:"chronology"`
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		sessions:    make(map[string]*sessionState),
		extractor:   opts.Extractor,
		applier:     opts.Applier,
		store:       opts.Store,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		maxSessions: opts.MaxSessions,
	}
	if m.extractor == nil {
		m.extractor = extract.Unavailable
	}
	if m.applier == nil {
		m.applier = wellstate.NewApplier()
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.maxSessions <= 0 {
		m.maxSessions = MaxSessions
	}
	return m
}

// Create registers a new session with its interventions.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*models.AnalysisSession, error) {
	items := in.Items
	if len(items) == 0 {
		if strings.TrimSpace(in.Text) == "" {
			return nil, ErrNoInterventions
		}
		items = parser.Segment(in.Text)
	}
	if len(items) == 0 {
		return nil, ErrNoInterventions
	}
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if seen[it.Index] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIndex, it.Index)
		}
		seen[it.Index] = true
	}
	items = append([]models.RawIntervention(nil), items...)

	m.cleanupOldSessionsIfNeeded()

	s := models.NewAnalysisSession(uuid.New().String(), in.FileID, in.FileName, len(items))
	st := newSessionState(s, items, models.NewWellState())

	if m.store != nil {
		if err := m.store.CreateSession(ctx, *s, items, st.history[0]); err != nil {
			return nil, fmt.Errorf("persisting session: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[s.ID] = st
	count := len(m.sessions)
	out := *s
	m.mu.Unlock()

	m.metrics.SetActiveSessions(count)
	log.Infof("[Session %s] Created with %d interventions (file=%q)", shortID(s.ID), len(items), in.FileName)
	m.publish(ctx, events.New(events.SessionCreated, s.ID))
	return &out, nil
}

// lookup returns the in-memory session, restoring it from the store when
// it is not loaded.
func (m *Manager) lookup(ctx context.Context, id string) (*sessionState, error) {
	m.mu.RLock()
	st, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return st, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	loaded, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = loaded
	m.metrics.SetActiveSessions(len(m.sessions))
	return loaded, nil
}

// Restore loads a persisted session into memory.
func (m *Manager) Restore(ctx context.Context, id string) (*models.AnalysisSession, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := *st.session
	return &out, nil
}

// load rebuilds a session from its persisted record. Analyses that do not
// follow the chronological order are discarded, and the snapshots are
// recomputed when they do not match the analyses.
func (m *Manager) load(ctx context.Context, id string) (*sessionState, error) {
	rec, err := m.store.LoadSession(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	var initial *models.WellState
	if len(rec.Snapshots) > 0 && rec.Snapshots[0] != nil {
		initial = rec.Snapshots[0]
	}
	s := rec.Session
	st := newSessionState(&s, rec.Interventions, initial)
	s.InterventionCount = len(rec.Interventions)

	accepted := make([]models.InterventionAnalysis, 0, len(rec.Analyses))
	for i, a := range rec.Analyses {
		if i >= st.seq.Len() || st.seq.At(i) != a.Index {
			log.Warnf("[Session %s] Discarding analyses from rank %d: out of chronological order", shortID(id), i)
			break
		}
		a.Rank = i
		accepted = append(accepted, a)
	}

	if len(rec.Snapshots) >= len(accepted)+1 && !hasNil(rec.Snapshots[:len(accepted)+1]) {
		st.history = append([]*models.WellState(nil), rec.Snapshots[:len(accepted)+1]...)
	} else {
		log.Warnf("[Session %s] Snapshots incomplete, replaying %d analyses", shortID(id), len(accepted))
		payloads := make([]models.InterventionPayload, len(accepted))
		for i, a := range accepted {
			payloads[i] = a.Payload
		}
		var reports []models.FoldReport
		st.history, reports = m.applier.Replay(st.history[0], payloads...)
		for i := range accepted {
			accepted[i].Report = reports[i]
		}
	}
	for i := range accepted {
		a := accepted[i]
		st.analyses[a.Index] = &a
	}
	st.settle()
	log.Infof("[Session %s] Restored %d/%d analyses", shortID(id), len(accepted), len(rec.Interventions))
	return st, nil
}

func hasNil(states []*models.WellState) bool {
	for _, s := range states {
		if s == nil {
			return true
		}
	}
	return false
}

// Get returns the full view of a session.
func (m *Manager) Get(ctx context.Context, id string) (*Detail, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Detail{
		Session:       *st.session,
		Interventions: append([]models.RawIntervention(nil), st.items...),
		Chronology:    st.chronology(),
		Analyses:      st.orderedAnalyses(),
	}, nil
}

// List returns the in-memory and persisted sessions, newest first.
func (m *Manager) List(ctx context.Context) ([]models.AnalysisSession, error) {
	m.mu.RLock()
	out := make([]models.AnalysisSession, 0, len(m.sessions))
	seen := make(map[string]bool, len(m.sessions))
	for id, st := range m.sessions {
		out = append(out, *st.session)
		seen[id] = true
	}
	m.mu.RUnlock()

	if m.store != nil {
		stored, err := m.store.ListSessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		for _, s := range stored {
			if !seen[s.ID] {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Chronology returns the analysis order of a session.
func (m *Manager) Chronology(ctx context.Context, id string) (models.Chronology, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return models.Chronology{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return st.chronology(), nil
}

// Analysis returns the stored analysis of one intervention.
func (m *Manager) Analysis(ctx context.Context, id string, index int) (*models.InterventionAnalysis, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := st.item(index); !ok {
		return nil, fmt.Errorf("%w: %d", ErrInterventionNotFound, index)
	}
	a, ok := st.analyses[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotAnalyzed, index)
	}
	out := *a
	return &out, nil
}

// State returns the current well state of a session.
func (m *Manager) State(ctx context.Context, id string) (*models.WellState, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return st.current().Clone(), nil
}

// History returns the well state after the first step folds.
func (m *Manager) History(ctx context.Context, id string, step int) (*models.WellState, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if step < 0 || step >= len(st.history) {
		return nil, fmt.Errorf("%w: %d (0..%d)", ErrStepOutOfRange, step, st.step())
	}
	return st.history[step].Clone(), nil
}

// Analyze extracts the facts of the next eligible intervention and folds
// them into the session state. Extraction runs without holding the lock;
// a failed extraction commits nothing.
func (m *Manager) Analyze(ctx context.Context, id string, index int) (*Outcome, error) {
	st, item, err := m.claim(ctx, id, index, claimNext)
	if err != nil {
		return nil, err
	}
	defer m.release(st)

	log.Infof("[Session %s] Analyzing intervention %d (%s)", shortID(id), index, item.FechaTexto)
	res, err := m.extract(ctx, item)
	if err != nil {
		m.recordFailure(ctx, st, index, err)
		return nil, err
	}
	return m.commit(ctx, st, index, *res, events.InterventionApplied)
}

// Reanalyze extracts an already analyzed intervention again and recomputes
// every later snapshot from the stored payloads.
func (m *Manager) Reanalyze(ctx context.Context, id string, index int) (*Outcome, error) {
	st, item, err := m.claim(ctx, id, index, claimAnalyzed)
	if err != nil {
		return nil, err
	}
	defer m.release(st)

	log.Infof("[Session %s] Reanalyzing intervention %d", shortID(id), index)
	res, err := m.extract(ctx, item)
	if err != nil {
		m.recordFailure(ctx, st, index, err)
		return nil, err
	}
	return m.commit(ctx, st, index, *res, events.InterventionReanalyzed)
}

// Submit folds a payload supplied by the client. An unanalyzed intervention
// must be the next eligible one; an analyzed one is replaced and the later
// snapshots are recomputed.
func (m *Manager) Submit(ctx context.Context, id string, index int, resumen string, payload models.InterventionPayload) (*Outcome, error) {
	st, _, err := m.claim(ctx, id, index, claimAny)
	if err != nil {
		return nil, err
	}
	defer m.release(st)

	res := models.ExtractionResult{
		Resumen: strings.TrimSpace(resumen),
		Mode:    "manual",
		Payload: payload,
	}
	kind := events.InterventionApplied
	m.mu.RLock()
	if st.done(index) {
		kind = events.InterventionReanalyzed
	}
	m.mu.RUnlock()
	return m.commit(ctx, st, index, res, kind)
}

type claimMode int

const (
	claimNext claimMode = iota
	claimAnalyzed
	claimAny
)

// claim checks gating and marks the session busy.
func (m *Manager) claim(ctx context.Context, id string, index int, mode claimMode) (*sessionState, models.RawIntervention, error) {
	st, err := m.lookup(ctx, id)
	if err != nil {
		return nil, models.RawIntervention{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != st {
		return nil, models.RawIntervention{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item, ok := st.item(index)
	if !ok {
		return nil, models.RawIntervention{}, fmt.Errorf("%w: %d", ErrInterventionNotFound, index)
	}
	if st.busy {
		return nil, models.RawIntervention{}, ErrBusy
	}

	done := st.done(index)
	switch {
	case mode == claimAnalyzed && !done:
		return nil, models.RawIntervention{}, fmt.Errorf("%w: %d", ErrNotAnalyzed, index)
	case mode == claimNext && done:
		return nil, models.RawIntervention{}, fmt.Errorf("%w: intervention %d is already analyzed", ErrOutOfOrder, index)
	case !done && !st.seq.CanAnalyze(index, st.done):
		next, _ := st.seq.Next(st.done)
		return nil, models.RawIntervention{}, fmt.Errorf("%w: next is %d, got %d", ErrOutOfOrder, next, index)
	}

	st.busy = true
	st.session.Status = models.SessionStatusAnalyzing
	st.session.UpdatedAt = time.Now()
	st.lastAccessed = time.Now()
	return st, item, nil
}

// release clears the busy flag set by claim.
func (m *Manager) release(st *sessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.busy = false
	if st.session.Status == models.SessionStatusAnalyzing {
		st.settle()
	}
}

func (m *Manager) extract(ctx context.Context, item models.RawIntervention) (*models.ExtractionResult, error) {
	start := time.Now()
	res, err := m.extractor.Extract(ctx, item)
	m.metrics.ObserveExtraction(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("extract intervention %d: empty result", item.Index)
	}
	return res, nil
}

func (m *Manager) recordFailure(ctx context.Context, st *sessionState, index int, cause error) {
	m.mu.Lock()
	st.session.Status = models.SessionStatusError
	st.session.LastError = cause.Error()
	st.session.UpdatedAt = time.Now()
	snapshot := *st.session
	m.mu.Unlock()

	log.Warnf("[Session %s] Intervention %d failed: %v", shortID(snapshot.ID), index, cause)
	m.persistSession(ctx, snapshot)
	e := events.New(events.InterventionFailed, snapshot.ID).WithIndex(index)
	e.Message = cause.Error()
	m.publish(ctx, e)
}

// foldStep is one persisted fold.
type foldStep struct {
	analysis models.InterventionAnalysis
	step     int
	state    *models.WellState
}

// commit folds res into the session. A new intervention is appended to the
// event log; an analyzed one is replaced and every later payload replayed.
func (m *Manager) commit(ctx context.Context, st *sessionState, index int, res models.ExtractionResult, kind events.Type) (*Outcome, error) {
	m.mu.Lock()
	item, _ := st.item(index)
	rank, _ := st.seq.Rank(index)
	analysis := models.InterventionAnalysis{
		Index:      index,
		Rank:       rank,
		Resumen:    res.Resumen,
		Mode:       res.Mode,
		Payload:    withFallbackDate(res.Payload, item),
		Attempts:   res.Attempts,
		AnalyzedAt: time.Now(),
	}

	var changed []foldStep
	if st.done(index) {
		changed = m.replace(st, analysis)
	} else {
		next, report := m.applier.Apply(st.current(), analysis.Payload)
		analysis.Report = report
		st.history = append(st.history, next)
		st.analyses[index] = &analysis
		changed = []foldStep{{analysis: analysis, step: rank + 1, state: next}}
	}
	st.session.LastError = ""
	st.session.UpdatedAt = time.Now()
	st.settle()

	stored := *st.analyses[index]
	out := &Outcome{
		Analysis:   stored,
		Step:       rank + 1,
		State:      st.history[rank+1].Clone(),
		Chronology: st.chronology(),
	}
	snapshot := *st.session
	m.mu.Unlock()

	for _, c := range changed {
		m.metrics.ObserveFold(c.analysis.Report)
	}
	m.persistSteps(ctx, snapshot, changed)

	log.Infof("[Session %s] Intervention %d folded at step %d: %d created, %d closed, %d rejected, %d open perforations",
		shortID(snapshot.ID), index, out.Step, len(stored.Report.Created),
		len(stored.Report.ClosedPerforations), len(stored.Report.Rejected), len(out.State.OpenPerforations()))

	e := events.New(kind, snapshot.ID).WithIndex(index)
	e.Step = out.Step
	e.Report = &stored.Report
	m.publish(ctx, e)
	return out, nil
}

// replace swaps the analysis at its rank and replays the later payloads.
// Caller holds m.mu.
func (m *Manager) replace(st *sessionState, analysis models.InterventionAnalysis) []foldStep {
	rank := analysis.Rank
	payloads := []models.InterventionPayload{analysis.Payload}
	later := make([]*models.InterventionAnalysis, 0)
	for pos := rank + 1; pos < len(st.history)-1; pos++ {
		a := st.analyses[st.seq.At(pos)]
		later = append(later, a)
		payloads = append(payloads, a.Payload)
	}

	snapshots, reports := m.applier.Replay(st.history[rank], payloads...)
	st.history = append(st.history[:rank+1:rank+1], snapshots[1:]...)

	analysis.Report = reports[0]
	st.analyses[analysis.Index] = &analysis
	changed := []foldStep{{analysis: analysis, step: rank + 1, state: st.history[rank+1]}}
	for i, prev := range later {
		a := *prev
		a.Report = reports[i+1]
		st.analyses[a.Index] = &a
		changed = append(changed, foldStep{analysis: a, step: a.Rank + 1, state: st.history[a.Rank+1]})
	}
	return changed
}

func (m *Manager) persistSteps(ctx context.Context, s models.AnalysisSession, steps []foldStep) {
	if m.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, c := range steps {
		if err := m.store.SaveStep(ctx, s.ID, c.analysis, c.step, c.state); err != nil {
			log.Errorf("[Session %s] Failed to persist step %d: %v", shortID(s.ID), c.step, err)
			return
		}
	}
	m.persistSession(ctx, s)
}

func (m *Manager) persistSession(ctx context.Context, s models.AnalysisSession) {
	if m.store == nil {
		return
	}
	if err := m.store.UpdateSession(context.WithoutCancel(ctx), s); err != nil {
		log.Errorf("[Session %s] Failed to persist session: %v", shortID(s.ID), err)
	}
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	if err := m.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warnf("[Session %s] Failed to publish %s: %v", shortID(e.SessionID), e.Type, err)
	}
}

// Delete removes a session from memory and from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	st, inMemory := m.sessions[id]
	if inMemory && st.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if m.store != nil {
		err := m.store.DeleteSession(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			if !inMemory {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
		} else if err != nil {
			return fmt.Errorf("deleting session %s: %w", id, err)
		}
	} else if !inMemory {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	m.metrics.SetActiveSessions(count)
	log.Infof("[Session %s] Deleted", shortID(id))
	m.publish(ctx, events.New(events.SessionDeleted, id))
	return nil
}

// Touch updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	st.lastAccessed = time.Now()
	return true
}

// cleanupOldSessionsIfNeeded unloads the least recently used idle sessions
// when at capacity.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return
	}

	idle := make([]string, 0, len(m.sessions))
	for id, st := range m.sessions {
		if !st.busy {
			idle = append(idle, id)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return m.sessions[idle[i]].lastAccessed.Before(m.sessions[idle[j]].lastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	for i := 0; i < toFree && i < len(idle); i++ {
		delete(m.sessions, idle[i])
		log.Infof("[Manager] Unloaded session %s to stay under capacity", shortID(idle[i]))
	}
	m.metrics.SetActiveSessions(len(m.sessions))
}

// CleanupOldSessions unloads idle sessions not accessed within maxAge, but
// keeps sessions accessed within SessionKeepAliveWindow. Persisted sessions
// are restored on their next access.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := maxAge
	if window < SessionKeepAliveWindow {
		window = SessionKeepAliveWindow
	}
	cutoff := time.Now().Add(-window)

	removed := 0
	for id, st := range m.sessions {
		if st.busy || st.lastAccessed.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
		log.Infof("[Manager] Cleaned up aged session %s (last accessed: %s ago)",
			shortID(id), time.Since(st.lastAccessed).Round(time.Second))
	}
	if removed > 0 {
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	return removed
}

// Count returns the number of sessions in memory.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
