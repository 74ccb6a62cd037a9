package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionKind tags the two structurally different session variants.
type SessionKind string

const (
	// SessionGeneral is an isolated scratch conversation: its memory is
	// never shared outside the session and tools are always available.
	SessionGeneral SessionKind = "general"
	// SessionProject is bound to a project: memory is shared across all
	// sessions of the same project and tool access is gated by Stage.
	SessionProject SessionKind = "project"
)

// ChatSession is a persistent conversation context. The kind determines
// which of the project-only fields are legal; construction goes through
// NewGeneralSession / NewProjectSession so the invariant holds from birth
// rather than by convention.
type ChatSession struct {
	ID      string      `gorm:"primaryKey;size:36" json:"id"`
	Kind    SessionKind `gorm:"size:16;not null;index" json:"kind"`
	OwnerID string      `gorm:"size:64;not null;index" json:"ownerId"`

	Title          string `gorm:"size:255" json:"title"`
	TitleGenerated bool   `gorm:"not null;default:false" json:"titleGenerated"`

	// Isolated is true exactly for general sessions.
	Isolated bool `gorm:"not null" json:"isolated"`

	// Project-only fields; zero-valued for general sessions.
	ProjectID   string `gorm:"size:64;index" json:"projectId,omitempty"`
	ProjectName string `gorm:"size:255" json:"projectName,omitempty"`
	Domain      string `gorm:"size:64" json:"domain,omitempty"`
	Stage       Stage  `gorm:"size:32" json:"stage,omitempty"`

	TurnCount     int `gorm:"not null;default:0" json:"turnCount"`
	DocumentCount int `gorm:"not null;default:0" json:"documentCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewGeneralSession builds an isolated general session.
func NewGeneralSession(ownerID string) (*ChatSession, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	return &ChatSession{
		ID:       uuid.NewString(),
		Kind:     SessionGeneral,
		OwnerID:  ownerID,
		Title:    "New conversation",
		Isolated: true,
	}, nil
}

// NewProjectSession builds a project session. The stage must be valid and
// the project identity must be present; domain is optional.
func NewProjectSession(ownerID, projectID, projectName, domain string, stage Stage) (*ChatSession, error) {
	ownerID = strings.TrimSpace(ownerID)
	projectID = strings.TrimSpace(projectID)
	projectName = strings.TrimSpace(projectName)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if projectID == "" || projectName == "" {
		return nil, fmt.Errorf("project id and name are required")
	}
	if !stage.Valid() {
		return nil, fmt.Errorf("invalid stage %q", stage)
	}
	return &ChatSession{
		ID:          uuid.NewString(),
		Kind:        SessionProject,
		OwnerID:     ownerID,
		Title:       projectName,
		Isolated:    false,
		ProjectID:   projectID,
		ProjectName: projectName,
		Domain:      strings.TrimSpace(domain),
		Stage:       stage,
	}, nil
}

// ToolsAllowed derives the tools flag; it is never stored.
func (s *ChatSession) ToolsAllowed() bool {
	return SessionToolsAllowed(s.Kind, s.Stage)
}
