// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/well-timeline/backend/internal/events"
	"github.com/well-timeline/backend/internal/metrics"
	"github.com/well-timeline/backend/internal/normalize"
	"github.com/well-timeline/backend/internal/parser"
	"github.com/well-timeline/backend/internal/session"
	"github.com/well-timeline/backend/internal/storage"
	"github.com/well-timeline/backend/internal/wellstate"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr *session.Manager
	Registry   *parser.Registry
	Applier    *wellstate.Applier
	Normalizer *normalize.Normalizer
	Hub        *events.Hub
	Metrics    *metrics.Metrics

	AllowFileDeletion    bool
	AllowSessionDeletion bool
	AllowedExtensions    []string
	Version              string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Files     FileHandler
	Documents DocumentHandler
	WellState WellStateHandler
	Sessions  SessionHandler
	Events    EventStreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	registry := deps.Registry
	if registry == nil {
		registry = parser.GetGlobalRegistry()
	}
	applier := deps.Applier
	if applier == nil {
		applier = wellstate.NewApplier()
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}

	var sessionCount func() int
	if deps.SessionMgr != nil {
		sessionCount = deps.SessionMgr.Count
	}

	return &Handlers{
		Health:    NewHealthHandler(deps.Version, sessionCount),
		Files:     NewFileHandler(deps.Store, deps.AllowedExtensions, deps.AllowFileDeletion),
		Documents: NewDocumentHandler(deps.Store, registry),
		WellState: NewWellStateHandler(applier, normalizer),
		Sessions:  NewSessionHandler(deps.SessionMgr, deps.Store, registry, normalizer, deps.AllowSessionDeletion),
		Events:    NewEventStreamHandler(deps.Hub, deps.SessionMgr),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Document storage routes
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.GET("/recent", handlers.Files.HandleGetRecentFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	fileGroup.PUT("/:id", handlers.Files.HandleRenameFile)

	// Document conversion routes
	docGroup := e.Group("/api/documents")
	docGroup.POST("/convert", handlers.Documents.HandleConvert)
	docGroup.POST("/interventions", handlers.Documents.HandleInterventions)

	// Stateless fold
	e.POST("/api/wellstate/apply", handlers.WellState.HandleApply)

	// Analysis session routes
	sessionGroup := e.Group("/api/sessions")
	sessionGroup.POST("", handlers.Sessions.HandleCreateSession)
	sessionGroup.GET("", handlers.Sessions.HandleListSessions)
	sessionGroup.GET("/:sessionId", handlers.Sessions.HandleGetSession)
	sessionGroup.DELETE("/:sessionId", handlers.Sessions.HandleDeleteSession)
	sessionGroup.GET("/:sessionId/chronology", handlers.Sessions.HandleChronology)
	sessionGroup.POST("/:sessionId/keepalive", handlers.Sessions.HandleSessionKeepAlive)
	sessionGroup.GET("/:sessionId/state", handlers.Sessions.HandleGetState)
	sessionGroup.GET("/:sessionId/state/msgpack", handlers.Sessions.HandleGetStateMsgpack)
	sessionGroup.GET("/:sessionId/history/:step", handlers.Sessions.HandleGetHistory)
	sessionGroup.GET("/:sessionId/interventions/:index", handlers.Sessions.HandleGetAnalysis)
	sessionGroup.POST("/:sessionId/interventions/:index/analyze", handlers.Sessions.HandleAnalyze)
	sessionGroup.POST("/:sessionId/interventions/:index/reanalyze", handlers.Sessions.HandleReanalyze)
	sessionGroup.PUT("/:sessionId/interventions/:index/payload", handlers.Sessions.HandleSubmitPayload)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/sessions/:sessionId/ws", handlers.Events.HandleEventStream)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, m *metrics.Metrics) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	if m != nil {
		e.Use(m.Middleware())
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}
