package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/session"
)

func createSession(t *testing.T, ts *testServer) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": historyText})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decode[models.AnalysisSession](t, rec)
	require.Equal(t, 2, sess.InterventionCount)
	return sess.ID
}

func TestSessionWorkflow(t *testing.T) {
	ts := newTestServer(t, true)
	id := createSession(t, ts)
	base := "/api/sessions/" + id

	rec := ts.do(t, http.MethodGet, base+"/chronology", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chrono := decode[models.Chronology](t, rec)
	assert.Equal(t, []int{1, 2}, chrono.Order)
	require.NotNil(t, chrono.Next)
	assert.Equal(t, 1, *chrono.Next)

	// Gated until the earlier intervention is folded.
	rec = ts.do(t, http.MethodPost, base+"/interventions/2/analyze", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OUT_OF_ORDER", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, base+"/interventions/1/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[session.Outcome](t, rec)
	assert.Equal(t, 1, out.Step)
	assert.Equal(t, "Punzado 561/568 m.", out.Analysis.Resumen)
	require.Len(t, out.State.Perforations, 1)
	require.NotNil(t, out.Chronology.Next)
	assert.Equal(t, 2, *out.Chronology.Next)

	rec = ts.do(t, http.MethodGet, base+"/interventions/2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_ANALYZED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, base+"/interventions/2/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, base+"/interventions/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.InterventionAnalysis](t, rec).Rank)

	rec = ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[session.Detail](t, rec)
	assert.Equal(t, models.SessionStatusComplete, detail.Session.Status)
	assert.Len(t, detail.Analyses, 2)
	assert.Nil(t, detail.Chronology.Next)

	rec = ts.do(t, http.MethodGet, base+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[models.WellState](t, rec)
	assert.Len(t, state.Perforations, 1)
	assert.Len(t, state.Tests, 1)

	rec = ts.do(t, http.MethodGet, base+"/history/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.WellState](t, rec).Perforations)

	rec = ts.do(t, http.MethodGet, base+"/history/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	step1 := decode[models.WellState](t, rec)
	assert.Len(t, step1.Perforations, 1)
	assert.Empty(t, step1.Tests)

	rec = ts.do(t, http.MethodGet, base+"/history/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []int{1, 2}, ts.ex.Calls())
}

func TestSessionSubmitPayload(t *testing.T) {
	ts := newTestServer(t, true)
	id := createSession(t, ts)
	base := "/api/sessions/" + id

	for _, idx := range []string{"1", "2"} {
		rec := ts.do(t, http.MethodPost, base+"/interventions/"+idx+"/analyze", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodPut, base+"/interventions/1/payload", map[string]any{
		"resumen": "Punzado corregido.",
		"payload": map[string]any{
			"punzados": []any{map[string]any{"desde": "561,0", "hasta": "570"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[session.Outcome](t, rec)
	assert.Equal(t, "manual", out.Analysis.Mode)
	assert.Equal(t, "Punzado corregido.", out.Analysis.Resumen)

	// The later test is replayed on top of the corrected perforation.
	rec = ts.do(t, http.MethodGet, base+"/state", nil)
	state := decode[models.WellState](t, rec)
	require.Len(t, state.Perforations, 1)
	assert.Equal(t, 570.0, state.Perforations[0].Interval.Hasta)
	assert.Len(t, state.Tests, 1)

	rec = ts.do(t, http.MethodPut, base+"/interventions/2/payload", map[string]any{"resumen": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionReanalyze(t *testing.T) {
	ts := newTestServer(t, true)
	id := createSession(t, ts)
	base := "/api/sessions/" + id

	rec := ts.do(t, http.MethodPost, base+"/interventions/1/reanalyze", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_ANALYZED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, base+"/interventions/1/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/interventions/1/reanalyze", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[session.Outcome](t, rec).Step)
	assert.Equal(t, []int{1, 1}, ts.ex.Calls())
}

func TestSessionStateMsgpack(t *testing.T) {
	ts := newTestServer(t, true)
	id := createSession(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/interventions/1/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/state/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	perforations, ok := decoded["perforations"].([]any)
	require.True(t, ok, "perforations key missing: %v", decoded)
	assert.Len(t, perforations, 1)
	assert.Contains(t, decoded, "version")
}

func TestSessionFromStoredFile(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.upload(t, "/api/files/upload", "pozo.txt", []byte(historyText))
	require.Equal(t, http.StatusCreated, rec.Code)
	info := decode[models.FileInfo](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"fileId": info.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decode[models.AnalysisSession](t, rec)
	assert.Equal(t, info.ID, sess.FileID)
	assert.Equal(t, "pozo.txt", sess.FileName)

	got, err := ts.store.Get(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, "segmented", got.Status)
}

func TestSessionFromInterventions(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"fileName": "manual",
		"interventions": []models.RawIntervention{
			{Index: 1, FechaTexto: "12/05/1982", Text: "Punzado 561/568 m."},
			{Index: 2, Text: "Ensayo."},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"interventions": []models.RawIntervention{{Index: 1}, {Index: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AnalysisSession](t, rec), 1)
}

func TestSessionDeleteAndKeepAlive(t *testing.T) {
	ts := newTestServer(t, true)
	id := createSession(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/keepalive", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/keepalive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionDeletionDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	id := createSession(t, ts)

	rec := ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, ts.sessions.Count())
}

func TestSessionBadParams(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"non-numeric index", http.MethodPost, "/api/sessions/abc/interventions/x/analyze", http.StatusBadRequest},
		{"non-numeric step", http.MethodGet, "/api/sessions/abc/history/last", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/abc/chronology", http.StatusNotFound},
		{"unknown session analyze", http.MethodPost, "/api/sessions/abc/interventions/1/analyze", http.StatusNotFound},
		{"empty create", http.MethodPost, "/api/sessions", http.StatusBadRequest},
	}

	ts := newTestServer(t, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any
			if tt.method == http.MethodPost {
				body = map[string]any{}
			}
			rec := ts.do(t, tt.method, tt.path, body)
			if rec.Code != tt.status {
				t.Errorf("got status %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}
