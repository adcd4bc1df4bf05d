package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/events"
	"github.com/well-timeline/backend/internal/session"
)

// WebSocket message types for the event stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeEvent     = "event"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSMessage is the envelope of every frame on the event stream
type WSMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Event     *events.Event `json:"event,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// EventStreamHandlerImpl pushes session events to WebSocket clients
type EventStreamHandlerImpl struct {
	hub        *events.Hub
	sessionMgr *session.Manager
	upgrader   websocket.Upgrader
}

// NewEventStreamHandler creates a new event stream handler
func NewEventStreamHandler(hub *events.Hub, sessionMgr *session.Manager) EventStreamHandler {
	return &EventStreamHandlerImpl{
		hub:        hub,
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleEventStream upgrades the connection and forwards the events of one
// session until either side goes away
func (h *EventStreamHandlerImpl) HandleEventStream(c echo.Context) error {
	if h.hub == nil {
		return NewServiceUnavailableError("event stream is not configured")
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if _, err := h.sessionMgr.Get(c.Request().Context(), id); err != nil {
		return FromError(err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	sub, unsubscribe := h.hub.Subscribe(id)
	defer unsubscribe()

	log.Infof("[WebSocket] Client connected to session %s", id)

	// Client frames are read on their own goroutine; all writes stay here.
	pings := make(chan struct{}, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("[WebSocket] Connection error: %v", err)
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
			h.sessionMgr.Touch(id)
		}
	}()

	if err := h.send(ws, WSMessage{Type: MsgTypeConnected, SessionID: id}); err != nil {
		return nil
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			log.Infof("[WebSocket] Client disconnected from session %s", id)
			return nil
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			if err := h.send(ws, WSMessage{Type: MsgTypeEvent, SessionID: id, Event: &e}); err != nil {
				return nil
			}
			if e.Type == events.SessionDeleted {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session deleted"),
					time.Now().Add(wsWriteWait))
				return nil
			}
		case <-pings:
			if err := h.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *EventStreamHandlerImpl) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(msg); err != nil {
		log.Warnf("[WebSocket] Failed to send message: %v", err)
		return err
	}
	return nil
}
