package models

import "time"

// Role of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment references a file the user attached to a message. The raw
// content travels with the turn request; only the reference is kept here.
type Attachment struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Size     int    `json:"size"`
	Content  string `json:"content,omitempty"`
}

// MessageMeta carries assistant-side metadata for a message. Fields are
// merged as metadata frames arrive; absent fields never clobber values
// merged earlier.
type MessageMeta struct {
	Model            string `json:"model,omitempty"`
	Mode             string `json:"mode,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	Cached           bool   `json:"cached,omitempty"`
	Streaming        bool   `json:"streaming"`
	Error            bool   `json:"error"`
	ErrorText        string `json:"errorText,omitempty"`
}

// MessageVersion is a superseded assistant output kept after regeneration.
type MessageVersion struct {
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	Meta      MessageMeta `json:"meta"`
}

// ChatMessage is one entry in a session's conversation log. The ID is
// generated locally when the message is created optimistically; ServerID is
// reconciled once the backend assigns its own identifier. In-place updates
// during streaming always address the local ID.
type ChatMessage struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ServerID  string `gorm:"size:64;index" json:"serverId,omitempty"`
	SessionID string `gorm:"size:36;not null;index" json:"sessionId"`
	Role      string `gorm:"size:16;not null" json:"role"`
	Content   string `gorm:"type:text" json:"content"`

	Attachments []Attachment `gorm:"serializer:json" json:"attachments,omitempty"`
	Meta        MessageMeta  `gorm:"serializer:json" json:"meta"`

	// Versions only ever grows; SwitchVersion exchanges content with a
	// stored slot but never removes one.
	Versions       []MessageVersion `gorm:"serializer:json" json:"versions,omitempty"`
	CurrentVersion int              `json:"currentVersion"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can hand messages to the UI without
// aliasing the live conversation state.
func (m *ChatMessage) Clone() *ChatMessage {
	out := *m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Versions != nil {
		out.Versions = append([]MessageVersion(nil), m.Versions...)
	}
	return &out
}
