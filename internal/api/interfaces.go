// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// FileHandler handles uploaded document operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// DocumentHandler handles document conversion and segmentation
type DocumentHandler interface {
	HandleConvert(c echo.Context) error
	HandleInterventions(c echo.Context) error
}

// WellStateHandler handles stateless well state folding
type WellStateHandler interface {
	HandleApply(c echo.Context) error
}

// SessionHandler handles analysis session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleChronology(c echo.Context) error
	HandleAnalyze(c echo.Context) error
	HandleReanalyze(c echo.Context) error
	HandleSubmitPayload(c echo.Context) error
	HandleGetAnalysis(c echo.Context) error
	HandleGetState(c echo.Context) error
	HandleGetStateMsgpack(c echo.Context) error
	HandleGetHistory(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// EventStreamHandler streams session events over WebSocket
type EventStreamHandler interface {
	HandleEventStream(c echo.Context) error
}
