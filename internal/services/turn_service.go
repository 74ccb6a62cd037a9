package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wattson/internal/assistant"
	"wattson/internal/events"
	"wattson/internal/models"
	"wattson/internal/repositories"
)

// TurnService drives the request/response cycle of a conversation: sending
// turns, streaming the assistant's answer into the conversation log,
// cancelling in-flight turns and regenerating past answers.
//
// Turns in different sessions run fully in parallel. Within one session at
// most one turn is in flight; starting a new turn aborts the previous one
// first, so the old turn's effects never land after the new one begins.
type TurnService interface {
	Startup(ctx context.Context)
	SendTurn(sessionID, content string, attachments []models.Attachment) (*models.ChatMessage, error)
	Regenerate(sessionID, messageID string) (*models.ChatMessage, error)
	SwitchVersion(sessionID, messageID string, version int) (*models.ChatMessage, error)
	CancelTurn(sessionID string) bool
	InFlight(sessionID string) bool
	Messages(sessionID string) ([]models.ChatMessage, error)
}

type inflightTurn struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type turnService struct {
	ctx context.Context

	sessionRepo repositories.ChatSessionRepository
	messageRepo repositories.ChatMessageRepository
	prefsRepo   repositories.PreferencesRepository
	backend     *assistant.Client
	userService UserService

	mu       sync.Mutex
	inflight map[string]*inflightTurn // keyed by session id
}

func NewTurnService(
	sessionRepo repositories.ChatSessionRepository,
	messageRepo repositories.ChatMessageRepository,
	prefsRepo repositories.PreferencesRepository,
	backend *assistant.Client,
	userService UserService,
) TurnService {
	return &turnService{
		ctx:         context.Background(),
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		prefsRepo:   prefsRepo,
		backend:     backend,
		userService: userService,
		inflight:    make(map[string]*inflightTurn),
	}
}

func (s *turnService) Startup(ctx context.Context) {
	s.ctx = ctx
}

// SendTurn runs one full turn against the given session. With attachments
// the backend answers in a single response; otherwise the answer streams in
// and the assistant message is assembled chunk by chunk.
//
// The user message is appended optimistically before any network traffic.
// The assistant message is only created once the first content arrives, so a
// turn cancelled before its first chunk leaves no assistant message at all;
// in that case SendTurn returns (nil, nil). Cancellation after content has
// arrived keeps the partial message and is not an error.
func (s *turnService) SendTurn(sessionID, content string, attachments []models.Attachment) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("ERR_TURN_EMPTY: nothing to send")
	}

	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	turnCtx, release, err := s.acquire(session.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	prefs, err := s.prefsRepo.Get(s.ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.userService.CurrentUser()
	if err != nil {
		return nil, err
	}
	history, err := s.history(session.ID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ID:          newMessageID(),
		SessionID:   session.ID,
		Role:        models.RoleUser,
		Content:     content,
		Attachments: attachments,
	}
	if err := s.messageRepo.Create(s.ctx, userMsg); err != nil {
		return nil, err
	}
	events.Emit(turnCtx, events.ChatMessage, events.ChatEvent{
		Type:      events.EventInfo,
		SessionID: session.ID,
		MessageID: userMsg.ID,
		Content:   userMsg.Content,
		Timestamp: time.Now(),
	})
	events.Emit(turnCtx, events.ChatTurnStarted, events.ChatEvent{
		Type:      events.EventInfo,
		SessionID: session.ID,
		Timestamp: time.Now(),
	})

	// The local id is assigned up front and stays stable through every
	// in-place update; only the persisted row is deferred to first content.
	assistantMsg := &models.ChatMessage{
		ID:        newMessageID(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Meta: models.MessageMeta{
			Model:     prefs.DefaultModel,
			Mode:      prefs.Mode,
			Streaming: true,
		},
	}
	persisted := false
	ensure := func() error {
		if persisted {
			return nil
		}
		persisted = true
		return s.messageRepo.Create(s.ctx, assistantMsg)
	}

	req := assistant.TurnRequest{
		SessionID:   session.ID,
		UserID:      user.ID,
		Content:     content,
		UseTools:    session.ToolsAllowed(),
		Model:       prefs.DefaultModel,
		Mode:        prefs.Mode,
		Stage:       string(session.Stage),
		Domain:      session.Domain,
		Attachments: attachments,
		History:     history,
	}

	if len(attachments) > 0 {
		err = s.runBatch(turnCtx, req, assistantMsg, ensure)
	} else {
		err = s.runStream(turnCtx, req, assistantMsg, ensure)
	}

	if !persisted {
		// Cancelled (or failed to even open) before any content existed:
		// the conversation keeps only the user message.
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	assistantMsg.Meta.Streaming = false
	if saveErr := s.messageRepo.Update(s.ctx, assistantMsg); saveErr != nil && err == nil {
		err = saveErr
	}
	if err != nil {
		return nil, err
	}

	if turnCtx.Err() == nil {
		s.finishTurn(session, content, assistantMsg.Content)
	}
	return assistantMsg.Clone(), nil
}

// Regenerate produces a fresh answer for an existing assistant message. The
// source user turn is the nearest user message preceding it; its content and
// attachments are re-issued the same way SendTurn would send them. The current
// answer is pushed onto the version list before the exchange is re-issued;
// on failure or cancellation the previous answer is restored into the live
// fields while the pushed version stays, so history is never lost.
func (s *turnService) Regenerate(sessionID, messageID string) (*models.ChatMessage, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	msg, msgs, err := s.locateMessage(session.ID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != models.RoleAssistant {
		return nil, fmt.Errorf("ERR_NOT_ASSISTANT_MESSAGE:%s", messageID)
	}

	source, history := resolveRegenerateSource(msgs, messageID)
	if source == nil {
		return nil, fmt.Errorf("ERR_NO_SOURCE_TURN:%s", messageID)
	}

	turnCtx, release, err := s.acquire(session.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	prefs, err := s.prefsRepo.Get(s.ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.userService.CurrentUser()
	if err != nil {
		return nil, err
	}

	events.Emit(turnCtx, events.ChatTurnStarted, events.ChatEvent{
		Type:      events.EventInfo,
		SessionID: session.ID,
		MessageID: msg.ID,
		Timestamp: time.Now(),
	})

	// Push the live answer onto the version list first. The list only ever
	// grows; even a failed regeneration leaves this snapshot in place.
	slot := len(msg.Versions)
	msg.Versions = append(msg.Versions, models.MessageVersion{
		Content:   msg.Content,
		CreatedAt: msg.UpdatedAt,
		Meta:      msg.Meta,
	})
	msg.CurrentVersion = slot
	msg.Content = ""
	msg.Meta = models.MessageMeta{
		Model:     prefs.DefaultModel,
		Mode:      prefs.Mode,
		Streaming: true,
	}
	if err := s.messageRepo.Update(s.ctx, msg); err != nil {
		return nil, err
	}

	req := assistant.TurnRequest{
		SessionID:   session.ID,
		UserID:      user.ID,
		Content:     source.Content,
		UseTools:    session.ToolsAllowed(),
		Model:       prefs.DefaultModel,
		Mode:        prefs.Mode,
		Stage:       string(session.Stage),
		Domain:      session.Domain,
		Attachments: source.Attachments,
		History:     history,
	}
	var streamErr error
	if len(source.Attachments) > 0 {
		streamErr = s.runBatch(turnCtx, req, msg, nil)
	} else {
		streamErr = s.runStream(turnCtx, req, msg, nil)
	}

	cancelled := turnCtx.Err() != nil && streamErr == nil
	if streamErr != nil || cancelled {
		previous := msg.Versions[slot]
		msg.Content = previous.Content
		msg.Meta = previous.Meta
		msg.Meta.Streaming = false
		if streamErr != nil {
			msg.Meta.Error = true
			msg.Meta.ErrorText = streamErr.Error()
		}
		if saveErr := s.messageRepo.Update(s.ctx, msg); saveErr != nil && streamErr == nil {
			streamErr = saveErr
		}
		if streamErr != nil {
			return nil, streamErr
		}
		return msg.Clone(), nil
	}

	msg.Meta.Streaming = false
	if err := s.messageRepo.Update(s.ctx, msg); err != nil {
		return nil, err
	}
	// A regeneration replaces an exchange rather than adding one, so the
	// session counters stay put.
	s.announceTurn(session.ID, msg.Content)
	return msg.Clone(), nil
}

// SwitchVersion exchanges the live answer with the stored version at the
// given index: the previously live content moves into that slot. The swap is
// symmetric and lossless; no version is ever removed.
func (s *turnService) SwitchVersion(sessionID, messageID string, version int) (*models.ChatMessage, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	msg, _, err := s.locateMessage(session.ID, messageID)
	if err != nil {
		return nil, err
	}
	if version < 0 || version >= len(msg.Versions) {
		return nil, fmt.Errorf("ERR_VERSION_OUT_OF_RANGE:%d", version)
	}

	stored := msg.Versions[version]
	msg.Versions[version] = models.MessageVersion{
		Content:   msg.Content,
		CreatedAt: msg.UpdatedAt,
		Meta:      msg.Meta,
	}
	msg.Content = stored.Content
	msg.Meta = stored.Meta
	msg.CurrentVersion = version
	if err := s.messageRepo.Update(s.ctx, msg); err != nil {
		return nil, err
	}
	events.Emit(s.ctx, events.ChatMessage, events.ChatEvent{
		Type:      events.EventInfo,
		SessionID: session.ID,
		MessageID: msg.ID,
		Content:   msg.Content,
		Timestamp: time.Now(),
	})
	return msg.Clone(), nil
}

// CancelTurn aborts the in-flight turn of a session, if any. Reports whether
// something was actually cancelled.
func (s *turnService) CancelTurn(sessionID string) bool {
	s.mu.Lock()
	turn, ok := s.inflight[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	turn.cancel()
	return true
}

func (s *turnService) InFlight(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[sessionID]
	return ok
}

func (s *turnService) Messages(sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.getSession(sessionID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySession(s.ctx, sessionID, 0)
}

func (s *turnService) getSession(sessionID string) (*models.ChatSession, error) {
	session, err := s.sessionRepo.GetByID(s.ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("ERR_SESSION_NOT_FOUND:%s", sessionID)
	}
	return session, nil
}

// acquire registers the in-flight turn for a session. A turn already in
// flight is cancelled and waited out first. The returned release must be
// called exactly once.
func (s *turnService) acquire(sessionID string) (context.Context, func(), error) {
	for {
		s.mu.Lock()
		current, busy := s.inflight[sessionID]
		if !busy {
			turnCtx, cancel := context.WithCancel(events.WithSession(s.ctx, sessionID))
			entry := &inflightTurn{cancel: cancel, done: make(chan struct{})}
			s.inflight[sessionID] = entry
			s.mu.Unlock()
			release := func() {
				s.mu.Lock()
				delete(s.inflight, sessionID)
				s.mu.Unlock()
				cancel()
				close(entry.done)
			}
			return turnCtx, release, nil
		}
		s.mu.Unlock()

		current.cancel()
		select {
		case <-current.done:
		case <-time.After(30 * time.Second):
			return nil, nil, fmt.Errorf("ERR_TURN_IN_FLIGHT:%s", sessionID)
		}
	}
}

func (s *turnService) runBatch(ctx context.Context, req assistant.TurnRequest, msg *models.ChatMessage, ensure func() error) error {
	resp, err := s.backend.SendTurn(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			s.emitCancelled(ctx, msg)
			return nil
		}
		return s.failTurn(ctx, msg, ensure, err)
	}
	if ensure != nil {
		if err := ensure(); err != nil {
			return err
		}
	}
	msg.Content = resp.Response
	msg.ServerID = resp.MessageID
	mergeMetadata(&msg.Meta, resp.Metadata)
	s.emitDone(ctx, msg)
	return nil
}

// runStream consumes the frame stream into msg, calling ensure before the
// first mutation that needs a persisted row. A context cancellation is not
// an error: accumulated content is kept and a cancelled event goes out. A
// stream that dies without a done frame but with accumulated content is
// finalized from what arrived.
func (s *turnService) runStream(ctx context.Context, req assistant.TurnRequest, msg *models.ChatMessage, ensure func() error) error {
	stream, err := s.backend.OpenStream(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			s.emitCancelled(ctx, msg)
			return nil
		}
		return s.failTurn(ctx, msg, ensure, err)
	}
	defer stream.Close()

	var builder strings.Builder
	sawDone := false
	for {
		frame, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break
			}
			msg.Content = builder.String()
			if errors.Is(ctx.Err(), context.Canceled) {
				s.emitCancelled(ctx, msg)
				return nil
			}
			if errors.Is(recvErr, assistant.ErrStreamTruncated) && msg.Content != "" {
				// No done frame, but real content arrived: finalize from it.
				s.emitDone(ctx, msg)
				return nil
			}
			return s.failTurn(ctx, msg, ensure, recvErr)
		}

		switch frame.Type {
		case assistant.FrameChunk:
			if ensure != nil {
				if err := ensure(); err != nil {
					return err
				}
			}
			builder.WriteString(frame.Text)
			msg.Content = builder.String()
			events.Emit(ctx, events.ChatChunk, events.ChatEvent{
				Type:      events.EventInfo,
				SessionID: msg.SessionID,
				MessageID: msg.ID,
				Content:   frame.Text,
				Timestamp: time.Now(),
			})
		case assistant.FrameMetadata:
			mergeMetadata(&msg.Meta, frame.Metadata)
		case assistant.FrameError:
			msg.Content = builder.String()
			frameErr := fmt.Errorf("ERR_ASSISTANT:%s: %s", frame.Code, frame.Message)
			return s.failTurn(ctx, msg, ensure, frameErr)
		case assistant.FrameDone:
			sawDone = true
			msg.Content = builder.String()
			if frame.Done != nil {
				if frame.Done.MessageID != "" {
					msg.ServerID = frame.Done.MessageID
				}
				if msg.Content == "" && frame.Done.Response != "" {
					msg.Content = frame.Done.Response
				}
				mergeMetadata(&msg.Meta, frame.Done.Metadata)
			}
			if msg.Content != "" && ensure != nil {
				if err := ensure(); err != nil {
					return err
				}
			}
			s.emitDone(ctx, msg)
		}
	}
	if !sawDone {
		msg.Content = builder.String()
	}
	return nil
}

// failTurn converts a turn-level failure into a terminal error message so
// the conversation log keeps a complete record, including failures.
func (s *turnService) failTurn(ctx context.Context, msg *models.ChatMessage, ensure func() error, cause error) error {
	if ensure != nil {
		if err := ensure(); err != nil {
			return err
		}
	}
	msg.Meta.Error = true
	msg.Meta.ErrorText = cause.Error()
	events.Emit(ctx, events.ChatError, events.ChatEvent{
		Type:      events.EventError,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Message:   cause.Error(),
		Timestamp: time.Now(),
	})
	return cause
}

// finishTurn bumps the session counters, announces the completed turn with a
// short preview and, on the first exchange, kicks off title generation in
// the background off the turn context.
func (s *turnService) finishTurn(session *models.ChatSession, firstContent, responseContent string) {
	session.TurnCount++
	if err := s.sessionRepo.UpdateByID(s.ctx, session.ID, map[string]interface{}{
		"turn_count": session.TurnCount,
		"updated_at": time.Now(),
	}); err != nil {
		events.Emit(s.ctx, events.ChatMessage, events.NewWarn(session.ID, "failed to update session counters"))
	}

	s.announceTurn(session.ID, responseContent)

	if session.TurnCount == 1 && !session.TitleGenerated && firstContent != "" {
		go s.generateTitle(session.ID, firstContent)
	}
}

func (s *turnService) announceTurn(sessionID, responseContent string) {
	events.Emit(s.ctx, events.TurnCompletedNote, events.ChatEvent{
		Type:      events.EventSuccess,
		SessionID: sessionID,
		Content:   preview(responseContent),
		Timestamp: time.Now(),
	})
}

func (s *turnService) generateTitle(sessionID, content string) {
	title, err := s.backend.GenerateTitle(s.ctx, content)
	if err != nil || title == "" {
		return
	}
	session, err := s.sessionRepo.GetByID(s.ctx, sessionID)
	if err != nil || session == nil || session.TitleGenerated {
		return
	}
	if err := s.sessionRepo.UpdateByID(s.ctx, sessionID, map[string]interface{}{
		"title":           title,
		"title_generated": true,
	}); err != nil {
		return
	}
	events.Emit(s.ctx, events.ChatTitleUpdated, events.ChatEvent{
		Type:      events.EventInfo,
		SessionID: sessionID,
		Content:   title,
		Timestamp: time.Now(),
	})
}

func (s *turnService) history(sessionID string) ([]assistant.TurnMessage, error) {
	msgs, err := s.messageRepo.ListBySession(s.ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	return toTurnHistory(msgs, ""), nil
}

func (s *turnService) locateMessage(sessionID, messageID string) (*models.ChatMessage, []models.ChatMessage, error) {
	msgs, err := s.messageRepo.ListBySession(s.ctx, sessionID, 0)
	if err != nil {
		return nil, nil, err
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			return &msgs[i], msgs, nil
		}
	}
	return nil, nil, fmt.Errorf("ERR_MESSAGE_NOT_FOUND:%s", messageID)
}

func (s *turnService) emitDone(ctx context.Context, msg *models.ChatMessage) {
	events.Emit(ctx, events.ChatDone, events.ChatEvent{
		Type:      events.EventSuccess,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Content:   msg.Content,
		Timestamp: time.Now(),
	})
}

func (s *turnService) emitCancelled(ctx context.Context, msg *models.ChatMessage) {
	events.Emit(ctx, events.ChatCancelled, events.ChatEvent{
		Type:      events.EventWarn,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Content:   msg.Content,
		Timestamp: time.Now(),
	})
}

func preview(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}
	return string(runes)
}

// resolveRegenerateSource walks backwards from the assistant message to the
// nearest preceding user message and returns it together with the history
// that preceded that user turn.
func resolveRegenerateSource(msgs []models.ChatMessage, assistantID string) (*models.ChatMessage, []assistant.TurnMessage) {
	idx := -1
	for i := range msgs {
		if msgs[i].ID == assistantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}
	for i := idx - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			return &msgs[i], toTurnHistory(msgs[:i], "")
		}
	}
	return nil, nil
}

// toTurnHistory flattens stored messages into the wire history format,
// skipping empty placeholders and, when excludeID is set, that message.
func toTurnHistory(msgs []models.ChatMessage, excludeID string) []assistant.TurnMessage {
	history := make([]assistant.TurnMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == excludeID || strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, assistant.TurnMessage{Role: m.Role, Content: m.Content})
	}
	return history
}

func newMessageID() string {
	return uuid.NewString()
}

func mergeMetadata(meta *models.MessageMeta, f *assistant.MetadataFields) {
	if f == nil {
		return
	}
	if f.Model != nil {
		meta.Model = *f.Model
	}
	if f.Mode != nil {
		meta.Mode = *f.Mode
	}
	if f.PromptTokens != nil {
		meta.PromptTokens = *f.PromptTokens
	}
	if f.CompletionTokens != nil {
		meta.CompletionTokens = *f.CompletionTokens
	}
	if f.Cached != nil {
		meta.Cached = *f.Cached
	}
}
