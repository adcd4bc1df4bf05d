// handlers_wellstate.go - Stateless well state fold
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/normalize"
	"github.com/well-timeline/backend/internal/wellstate"
)

// WellStateHandlerImpl implements the WellStateHandler interface
type WellStateHandlerImpl struct {
	applier    *wellstate.Applier
	normalizer *normalize.Normalizer
}

// NewWellStateHandler creates a new well state handler instance
func NewWellStateHandler(applier *wellstate.Applier, normalizer *normalize.Normalizer) WellStateHandler {
	return &WellStateHandlerImpl{applier: applier, normalizer: normalizer}
}

type applyRequest struct {
	State   *models.WellState `json:"state"`
	Payload json.RawMessage   `json:"payload"`
}

type applyResponse struct {
	State  *models.WellState `json:"state"`
	Report models.FoldReport `json:"report"`
}

// HandleApply folds one payload into the given state, or into an empty
// state when none is sent. The payload goes through the normalizer, so raw
// extraction output is accepted.
func (h *WellStateHandlerImpl) HandleApply(c echo.Context) error {
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return NewValidationError("payload")
	}

	prev := req.State
	if prev == nil {
		prev = models.NewWellState()
	}
	switch prev.Version {
	case 0:
		prev.Version = models.WellStateVersion
	case models.WellStateVersion:
	default:
		return NewBadRequestError(fmt.Sprintf("unsupported state version %d", prev.Version), nil)
	}

	res, err := h.normalizer.Decode(req.Payload)
	if err != nil {
		return NewBadRequestError("invalid payload", err)
	}

	next, report := h.applier.Apply(prev, res.Payload)
	return c.JSON(http.StatusOK, applyResponse{State: next, Report: report})
}
