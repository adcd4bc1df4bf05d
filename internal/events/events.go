// Package events fans session events out to WebSocket clients and, when
// configured, to Kafka.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/models"
)

// Type names a session event.
type Type string

const (
	SessionCreated         Type = "session.created"
	InterventionApplied    Type = "intervention.applied"
	InterventionReanalyzed Type = "intervention.reanalyzed"
	InterventionFailed     Type = "intervention.failed"
	SessionDeleted         Type = "session.deleted"
)

// Event is published after a session changes.
type Event struct {
	Type      Type               `json:"type"`
	SessionID string             `json:"sessionId"`
	Index     *int               `json:"index,omitempty"`
	Step      int                `json:"step,omitempty"`
	Report    *models.FoldReport `json:"report,omitempty"`
	Message   string             `json:"message,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// New returns an event stamped with the current time.
func New(t Type, sessionID string) Event {
	return Event{Type: t, SessionID: sessionID, Timestamp: time.Now().UnixMilli()}
}

// WithIndex sets the intervention index.
func (e Event) WithIndex(i int) Event {
	e.Index = &i
	return e
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 16

// Hub is an in-process publisher with per-session subscribers. A slow
// subscriber misses events rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[int]chan Event), buffer: buffer}
}

// Subscribe registers for a session's events. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int]chan Event)
	}
	h.subs[sessionID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[sessionID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers e to the subscribers of its session.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
			log.Debugf("[Events] Dropped %s for slow subscriber of session %s", e.Type, e.SessionID)
		}
	}
	return nil
}

// Subscribers returns the number of subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
