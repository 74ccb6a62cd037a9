package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInfo    EventType = "info"
	EventWarn    EventType = "warn"
	EventSuccess EventType = "success"
	EventError   EventType = "error"
)

// Event names the frontend subscribes to.
const (
	ChatTurnStarted   = "chat:turn:started"
	ChatMessage       = "chat:message"
	ChatChunk         = "chat:chunk"
	ChatDone          = "chat:done"
	ChatError         = "chat:error"
	ChatCancelled     = "chat:cancelled"
	ChatTitleUpdated  = "chat:title"
	SessionChanged    = "session:changed"
	DocumentIngested  = "document:ingested"
	TurnCompletedNote = "chat:turn:completed"
)

// ChatEvent is the payload pushed to the frontend. SessionID scopes every
// event so a background session's stream can never render against the
// wrong view.
type ChatEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	MessageID string            `json:"messageId,omitempty"`
	Content   string            `json:"content,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type contextKey string

const sessionContextKey contextKey = "wattson/events/session"

// WithSession returns a derived context annotated with the given session id
// so event emitters can automatically scope payloads.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if strings.TrimSpace(sessionID) == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

// SessionFromContext extracts the session id associated with ctx.
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionContextKey).(string); ok {
		return v
	}
	return ""
}

func NewChatEvent(eventType EventType, sessionID, message string) ChatEvent {
	return ChatEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewInfo creates an info ChatEvent.
func NewInfo(sessionID, message string) ChatEvent {
	return NewChatEvent(EventInfo, sessionID, message)
}

// NewWarn creates a warn ChatEvent.
func NewWarn(sessionID, message string) ChatEvent {
	return NewChatEvent(EventWarn, sessionID, message)
}

// NewError creates an error ChatEvent.
func NewError(sessionID, message string) ChatEvent {
	return NewChatEvent(EventError, sessionID, message)
}

// NewSuccess creates a success ChatEvent.
func NewSuccess(sessionID, message string) ChatEvent {
	return NewChatEvent(EventSuccess, sessionID, message)
}
