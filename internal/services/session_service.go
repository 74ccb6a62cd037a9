package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wattson/internal/assistant"
	"wattson/internal/events"
	"wattson/internal/models"
	"wattson/internal/repositories"
)

// SessionView is what the frontend renders after selecting a session: the
// session record plus its full conversation history.
type SessionView struct {
	Session  *models.ChatSession  `json:"session"`
	Messages []models.ChatMessage `json:"messages"`
}

// SessionService owns the session registry and the active-session pointer.
// At most one session is active at a time; turns always run against an
// explicit session id, so switching the active session never reroutes an
// in-flight turn.
type SessionService interface {
	Startup(ctx context.Context)
	CreateGeneralSession() (*models.ChatSession, error)
	CreateProjectSession(projectID, projectName, domain, stage string) (*models.ChatSession, error)
	ListSessions() ([]models.ChatSession, error)
	GetSession(sessionID string) (*models.ChatSession, error)
	SelectSession(sessionID string) (*SessionView, error)
	ActiveSessionID() string
	SetStage(sessionID, stage string) (*models.ChatSession, error)
	ToolsAllowed(sessionID string) (bool, error)
	RenameSession(sessionID, title string) (*models.ChatSession, error)
	DeleteSession(sessionID string) error
}

type sessionService struct {
	ctx context.Context

	sessionRepo repositories.ChatSessionRepository
	messageRepo repositories.ChatMessageRepository
	userService UserService
	backend     *assistant.Client

	mu       sync.RWMutex
	activeID string
}

func NewSessionService(
	sessionRepo repositories.ChatSessionRepository,
	messageRepo repositories.ChatMessageRepository,
	userService UserService,
	backend *assistant.Client,
) SessionService {
	return &sessionService{
		ctx:         context.Background(),
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		userService: userService,
		backend:     backend,
	}
}

func (s *sessionService) Startup(ctx context.Context) {
	s.ctx = ctx
}

func (s *sessionService) CreateGeneralSession() (*models.ChatSession, error) {
	user, err := s.userService.CurrentUser()
	if err != nil {
		return nil, err
	}
	session, err := models.NewGeneralSession(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(s.ctx, session); err != nil {
		return nil, err
	}
	s.setActive(session.ID)
	s.emitSessionChanged(session)
	return session, nil
}

func (s *sessionService) CreateProjectSession(projectID, projectName, domain, stage string) (*models.ChatSession, error) {
	parsed, err := models.ParseStage(stage)
	if err != nil {
		return nil, fmt.Errorf("ERR_STAGE_INVALID:%s", stage)
	}
	user, err := s.userService.CurrentUser()
	if err != nil {
		return nil, err
	}
	session, err := models.NewProjectSession(user.ID, projectID, projectName, domain, parsed)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(s.ctx, session); err != nil {
		return nil, err
	}
	s.setActive(session.ID)
	s.emitSessionChanged(session)
	return session, nil
}

func (s *sessionService) ListSessions() ([]models.ChatSession, error) {
	user, err := s.userService.CurrentUser()
	if err != nil {
		return nil, err
	}
	return s.sessionRepo.List(s.ctx, user.ID)
}

func (s *sessionService) GetSession(sessionID string) (*models.ChatSession, error) {
	session, err := s.sessionRepo.GetByID(s.ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("ERR_SESSION_NOT_FOUND:%s", sessionID)
	}
	return session, nil
}

// SelectSession makes the session active and returns its history. The
// backend copy of the history is fetched eagerly and replaces the local
// cache; when the backend is unreachable the cached copy is served with a
// warning instead of failing the switch.
func (s *sessionService) SelectSession(sessionID string) (*SessionView, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	s.setActive(session.ID)

	if err := s.refreshHistory(session); err != nil {
		events.Emit(s.ctx, events.ChatMessage,
			events.NewWarn(session.ID, "history refresh failed, showing cached copy"))
	}

	messages, err := s.messageRepo.ListBySession(s.ctx, session.ID, 0)
	if err != nil {
		return nil, err
	}
	s.emitSessionChanged(session)
	return &SessionView{Session: session, Messages: messages}, nil
}

func (s *sessionService) ActiveSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetStage moves a project session to a new stage. The backend is told
// first; local state only changes once the backend confirms, so the two
// sides never disagree about tool availability.
func (s *sessionService) SetStage(sessionID, stage string) (*models.ChatSession, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Kind != models.SessionProject {
		return nil, fmt.Errorf("ERR_STAGE_NOT_PROJECT:%s", sessionID)
	}
	parsed, err := models.ParseStage(stage)
	if err != nil {
		return nil, fmt.Errorf("ERR_STAGE_INVALID:%s", stage)
	}
	if !models.CanTransition(session.Stage, parsed) {
		return nil, fmt.Errorf("ERR_STAGE_INVALID:%s", stage)
	}
	if parsed == session.Stage {
		return session, nil
	}

	if _, err := s.backend.UpdateStage(s.ctx, session.ID, string(parsed)); err != nil {
		return nil, fmt.Errorf("update stage on backend: %w", err)
	}

	session.Stage = parsed
	if err := s.sessionRepo.Update(s.ctx, session); err != nil {
		return nil, err
	}
	events.Emit(s.ctx, events.SessionChanged,
		events.NewInfo(session.ID, fmt.Sprintf("stage set to %s", parsed)))
	return session, nil
}

func (s *sessionService) ToolsAllowed(sessionID string) (bool, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return false, err
	}
	return session.ToolsAllowed(), nil
}

// RenameSession applies a user-chosen title. Manual titles are final: the
// generated-title side channel never overwrites them.
func (s *sessionService) RenameSession(sessionID, title string) (*models.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("ERR_TITLE_EMPTY: title must not be empty")
	}
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	session.Title = title
	session.TitleGenerated = true
	if err := s.sessionRepo.Update(s.ctx, session); err != nil {
		return nil, err
	}
	events.Emit(s.ctx, events.ChatTitleUpdated, events.ChatEvent{
		Type:      events.EventInfo,
		SessionID: session.ID,
		Content:   session.Title,
		Timestamp: time.Now(),
	})
	return session, nil
}

func (s *sessionService) DeleteSession(sessionID string) error {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByID(s.ctx, session.ID); err != nil {
		return err
	}
	s.mu.Lock()
	if s.activeID == session.ID {
		s.activeID = ""
	}
	s.mu.Unlock()
	events.Emit(s.ctx, events.SessionChanged, events.NewInfo(session.ID, "session deleted"))
	return nil
}

func (s *sessionService) setActive(sessionID string) {
	s.mu.Lock()
	s.activeID = sessionID
	s.mu.Unlock()
}

// refreshHistory replaces the locally cached messages with the backend's
// copy. Messages the backend never saw (e.g. failed sends) are dropped,
// matching what the assistant will actually condition on.
func (s *sessionService) refreshHistory(session *models.ChatSession) error {
	remote, err := s.backend.History(s.ctx, session.ID, 0)
	if err != nil {
		return err
	}
	msgs := make([]models.ChatMessage, 0, len(remote))
	for _, rm := range remote {
		msg := models.ChatMessage{
			ID:        rm.ID,
			ServerID:  rm.ID,
			SessionID: session.ID,
			Role:      rm.Role,
			Content:   rm.Content,
			CreatedAt: rm.CreatedAt,
		}
		if rm.Metadata != nil {
			mergeMetadata(&msg.Meta, rm.Metadata)
		}
		msgs = append(msgs, msg)
	}
	return s.messageRepo.ReplaceSession(s.ctx, session.ID, msgs)
}

func (s *sessionService) emitSessionChanged(session *models.ChatSession) {
	events.Emit(s.ctx, events.SessionChanged, events.NewInfo(session.ID, string(session.Kind)))
}
