// handlers_session.go - Analysis session handlers
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/normalize"
	"github.com/well-timeline/backend/internal/parser"
	"github.com/well-timeline/backend/internal/session"
	"github.com/well-timeline/backend/internal/storage"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr    *session.Manager
	store         storage.Store
	registry      *parser.Registry
	normalizer    *normalize.Normalizer
	allowDeletion bool
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessionMgr *session.Manager, store storage.Store, registry *parser.Registry, normalizer *normalize.Normalizer, allowDeletion bool) SessionHandler {
	return &SessionHandlerImpl{
		sessionMgr:    sessionMgr,
		store:         store,
		registry:      registry,
		normalizer:    normalizer,
		allowDeletion: allowDeletion,
	}
}

type createSessionRequest struct {
	FileID        string                   `json:"fileId"`
	FileName      string                   `json:"fileName"`
	Text          string                   `json:"text"`
	Interventions []models.RawIntervention `json:"interventions"`
}

type submitPayloadRequest struct {
	Resumen string          `json:"resumen"`
	Payload json.RawMessage `json:"payload"`
}

// HandleCreateSession starts a session from a stored document, plain text
// or an explicit intervention list
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	in := session.CreateInput{
		FileID:   req.FileID,
		FileName: req.FileName,
		Items:    req.Interventions,
	}
	if len(in.Items) == 0 {
		doc, fileID, err := resolveDocument(c, h.store, h.registry, req.FileID, req.Text)
		if err != nil {
			return err
		}
		in.Text = doc.Text
		if fileID != "" && in.FileName == "" {
			if info, err := h.store.Get(c.Request().Context(), fileID); err == nil {
				in.FileName = info.Name
			}
		}
	}

	sess, err := h.sessionMgr.Create(c.Request().Context(), in)
	if err != nil {
		return FromError(err)
	}
	if req.FileID != "" && h.store != nil {
		_ = h.store.SetStatus(c.Request().Context(), req.FileID, storage.StatusSegmented)
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleListSessions returns all known sessions, newest first
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	list, err := h.sessionMgr.List(c.Request().Context())
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleGetSession returns a session with its interventions and chronology
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	detail, err := h.sessionMgr.Get(c.Request().Context(), id)
	if err != nil {
		return FromError(err)
	}
	h.sessionMgr.Touch(id)
	return c.JSON(http.StatusOK, detail)
}

// HandleDeleteSession removes a session
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	if !h.allowDeletion {
		return NewForbiddenError("session deletion is disabled")
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.sessionMgr.Delete(c.Request().Context(), id); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleChronology returns the analysis order and the next eligible
// intervention
func (h *SessionHandlerImpl) HandleChronology(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	chrono, err := h.sessionMgr.Chronology(c.Request().Context(), id)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, chrono)
}

// HandleAnalyze extracts and folds the next eligible intervention
func (h *SessionHandlerImpl) HandleAnalyze(c echo.Context) error {
	id, index, err := interventionParams(c)
	if err != nil {
		return err
	}
	out, err := h.sessionMgr.Analyze(c.Request().Context(), id, index)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// HandleReanalyze extracts an analyzed intervention again and recomputes
// the later snapshots
func (h *SessionHandlerImpl) HandleReanalyze(c echo.Context) error {
	id, index, err := interventionParams(c)
	if err != nil {
		return err
	}
	out, err := h.sessionMgr.Reanalyze(c.Request().Context(), id, index)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// HandleSubmitPayload folds a payload edited by the user
func (h *SessionHandlerImpl) HandleSubmitPayload(c echo.Context) error {
	id, index, err := interventionParams(c)
	if err != nil {
		return err
	}

	var req submitPayloadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return NewValidationError("payload")
	}
	res, err := h.normalizer.Decode(req.Payload)
	if err != nil {
		return NewBadRequestError("invalid payload", err)
	}

	resumen := req.Resumen
	if resumen == "" {
		resumen = res.Resumen
	}
	out, err := h.sessionMgr.Submit(c.Request().Context(), id, index, resumen, res.Payload)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// HandleGetAnalysis returns the stored analysis of one intervention
func (h *SessionHandlerImpl) HandleGetAnalysis(c echo.Context) error {
	id, index, err := interventionParams(c)
	if err != nil {
		return err
	}
	a, err := h.sessionMgr.Analysis(c.Request().Context(), id, index)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// HandleGetState returns the current well state
func (h *SessionHandlerImpl) HandleGetState(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	state, err := h.sessionMgr.State(c.Request().Context(), id)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, state)
}

// HandleGetStateMsgpack returns the current well state as MessagePack,
// keyed like the JSON form
func (h *SessionHandlerImpl) HandleGetStateMsgpack(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	state, err := h.sessionMgr.State(c.Request().Context(), id)
	if err != nil {
		return FromError(err)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(state); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", buf.Bytes())
}

// HandleGetHistory returns the well state after the given number of folds
func (h *SessionHandlerImpl) HandleGetHistory(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		return NewValidationError("step")
	}
	state, err := h.sessionMgr.History(c.Request().Context(), id, step)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, state)
}

// HandleSessionKeepAlive keeps a session from being unloaded
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if !h.sessionMgr.Touch(id) {
		if _, err := h.sessionMgr.Restore(c.Request().Context(), id); err != nil {
			return FromError(err)
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func sessionID(c echo.Context) (string, error) {
	id := c.Param("sessionId")
	if id == "" {
		return "", NewValidationError("sessionId")
	}
	return id, nil
}

func interventionParams(c echo.Context) (string, int, error) {
	id, err := sessionID(c)
	if err != nil {
		return "", 0, err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return "", 0, NewValidationError("index")
	}
	return id, index, nil
}
