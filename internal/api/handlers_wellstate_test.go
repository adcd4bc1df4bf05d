package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-timeline/backend/internal/models"
)

func TestApplyToEmptyState(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/wellstate/apply", map[string]any{
		"payload": map[string]any{
			"fecha": "1982-05-12",
			"punzados": []any{
				map[string]any{"desde": "561,0", "hasta": 568},
				map[string]any{"desde": 600},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[applyResponse](t, rec)
	require.Len(t, res.State.Perforations, 1)
	assert.Equal(t, 561.0, res.State.Perforations[0].Interval.Desde)
	assert.Equal(t, 568.0, res.State.Perforations[0].Interval.Hasta)
	assert.Equal(t, models.WellStateVersion, res.State.Version)
	assert.Len(t, res.Report.Created, 1)
	assert.Len(t, res.Report.Rejected, 1)
}

func TestApplyFoldsIntoGivenState(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/wellstate/apply", map[string]any{
		"payload": map[string]any{"punzados": []any{map[string]any{"desde": 561, "hasta": 568}}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[applyResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/wellstate/apply", map[string]any{
		"state": first.State,
		"payload": map[string]any{
			"cementaciones": []any{map[string]any{
				"tipo":      "squeeze",
				"intervalo": map[string]any{"desde": 560, "hasta": 570},
			}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[applyResponse](t, rec)

	require.Len(t, second.State.Perforations, 1)
	assert.False(t, second.State.Perforations[0].IsOpen())
	assert.Len(t, second.State.Squeezes, 1)
	assert.Equal(t, []string{first.State.Perforations[0].ID}, second.Report.ClosedPerforations)
}

func TestApplyValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing payload", map[string]any{}},
		{"null payload", map[string]any{"payload": nil}},
		{"future state version", map[string]any{
			"state":   map[string]any{"version": 7},
			"payload": map[string]any{},
		}},
	}

	ts := newTestServer(t, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/wellstate/apply", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}
