package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/parser"
	"github.com/well-timeline/backend/internal/testutil"
)

type interventionsResponse struct {
	Name          string                   `json:"name"`
	Count         int                      `json:"count"`
	Interventions []models.RawIntervention `json:"interventions"`
}

func TestConvertUploadedText(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.upload(t, "/api/documents/convert", "pozo.txt", []byte(historyText))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[models.Document](t, rec)
	assert.Equal(t, "pozo.txt", doc.Name)
	assert.Equal(t, "text", doc.Format)
	assert.Equal(t, historyText, doc.Text)
}

func TestInterventionsFromText(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/documents/interventions", map[string]string{"text": historyText})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[interventionsResponse](t, rec)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, 1, res.Interventions[0].Index)
	assert.Equal(t, "1982-05-12", res.Interventions[0].FechaISO)
	assert.Equal(t, "1982-06-20", res.Interventions[1].FechaISO)
	assert.Contains(t, res.Interventions[1].Text, "pistoneo")
}

func TestInterventionsFromStoredFile(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.upload(t, "/api/files/upload", "pozo.txt", []byte(historyText))
	require.Equal(t, http.StatusCreated, rec.Code)
	info := decode[models.FileInfo](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/documents/interventions", map[string]string{"fileId": info.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[interventionsResponse](t, rec).Count)

	rec = ts.do(t, http.MethodGet, "/api/files/"+info.ID, nil)
	assert.Equal(t, "segmented", decode[models.FileInfo](t, rec).Status)
}

func TestConvertFailureMarksFile(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.upload(t, "/api/files/upload", "roto.txt", []byte{0xff, 0xfe, 0xfd})
	require.Equal(t, http.StatusCreated, rec.Code)
	info := decode[models.FileInfo](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/documents/convert", map[string]string{"fileId": info.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/files/"+info.ID, nil)
	assert.Equal(t, "error", decode[models.FileInfo](t, rec).Status)
}

func TestDocumentRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"empty body", map[string]string{}, http.StatusBadRequest},
		{"blank text", map[string]string{"text": "   "}, http.StatusBadRequest},
		{"unknown file", map[string]string{"fileId": "missing"}, http.StatusNotFound},
	}

	ts := newTestServer(t, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/documents/convert", tt.body)
			if rec.Code != tt.status {
				t.Errorf("got status %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestDocumentHandlerWithMockStorage(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("file-1", "pozo.html", []byte("<html><body><p>HISTORIAL DEL POZO</p><p>12/05/1982 Punzado 561/568 m.</p></body></html>"))
	h := NewDocumentHandler(store, parser.NewRegistry())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/interventions", strings.NewReader(`{"fileId":"file-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if assert.NoError(t, h.HandleInterventions(e.NewContext(req, rec))) {
		assert.Equal(t, http.StatusOK, rec.Code)
		res := decode[interventionsResponse](t, rec)
		require.Equal(t, 1, res.Count)
		assert.Equal(t, "1982-05-12", res.Interventions[0].FechaISO)
	}

	info, err := store.Get(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "segmented", info.Status)

	req = httptest.NewRequest(http.MethodPost, "/api/documents/convert", strings.NewReader(`{"fileId":"missing"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	err = h.HandleConvert(e.NewContext(req, rec))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, 1, store.GetFileCount())
}
