package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-timeline/backend/internal/events"
	"github.com/well-timeline/backend/internal/session"
)

func dialEvents(t *testing.T, srv *httptest.Server, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, true)
	srv := httptest.NewServer(ts.echo)
	defer srv.Close()

	sess, err := ts.sessions.Create(context.Background(), session.CreateInput{Text: historyText})
	require.NoError(t, err)

	ws, _, err := dialEvents(t, srv, sess.ID)
	require.NoError(t, err)
	defer ws.Close()

	msg := readMessage(t, ws)
	assert.Equal(t, MsgTypeConnected, msg.Type)
	assert.Equal(t, sess.ID, msg.SessionID)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, ws).Type)

	_, err = ts.sessions.Analyze(context.Background(), sess.ID, 1)
	require.NoError(t, err)

	msg = readMessage(t, ws)
	require.Equal(t, MsgTypeEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, events.InterventionApplied, msg.Event.Type)
	require.NotNil(t, msg.Event.Index)
	assert.Equal(t, 1, *msg.Event.Index)
	assert.Equal(t, 1, msg.Event.Step)

	require.NoError(t, ts.sessions.Delete(context.Background(), sess.ID))
	msg = readMessage(t, ws)
	assert.Equal(t, events.SessionDeleted, msg.Event.Type)

	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestEventStreamUnknownSession(t *testing.T) {
	ts := newTestServer(t, true)
	srv := httptest.NewServer(ts.echo)
	defer srv.Close()

	_, resp, err := dialEvents(t, srv, "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStreamWithoutHub(t *testing.T) {
	h := NewEventStreamHandler(nil, session.NewManager(session.Options{}))
	ts := newTestServer(t, true)
	ts.echo.GET("/nohub/:sessionId", h.HandleEventStream)

	rec := ts.do(t, http.MethodGet, "/nohub/abc", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
