package unit_tests

import (
	"context"
	"errors"
	"testing"

	"wattson/internal/events"
	"wattson/internal/models"
	"wattson/internal/services"
	"wattson/internal/tests/mocks"
	"wattson/internal/tests/utils"
)

func newSessionService(t *testing.T, backend *fakeBackend, sessions *mocks.ChatSessionRepositoryMock, messages *mocks.ChatMessageRepositoryMock) services.SessionService {
	t.Helper()
	return services.NewSessionService(
		sessions,
		messages,
		services.NewUserService(&mocks.UserRepositoryMock{}),
		backend.start(t),
	)
}

func TestSessionService_CreateGeneralSession(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	store, sessionMock := newSessionStore()
	_, messageMock := newMessageStore()
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	session, err := service.CreateGeneralSession()
	utils.NilError(t, err)
	utils.Equal(t, session.Kind, models.SessionGeneral)
	utils.Equal(t, session.Isolated, true)
	utils.Equal(t, service.ActiveSessionID(), session.ID)
	utils.Equal(t, store.get(session.ID).ID, session.ID)
	utils.Equal(t, rec.countByName(events.SessionChanged), 1)
}

func TestSessionService_CreateProjectSession(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	_, sessionMock := newSessionStore()
	_, messageMock := newMessageStore()
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	session, err := service.CreateProjectSession("proj-1", "Motor Driver", "power", "analysis")
	utils.NilError(t, err)
	utils.Equal(t, session.Kind, models.SessionProject)
	utils.Equal(t, session.Stage, models.StageAnalysis)
	utils.Equal(t, session.Title, "Motor Driver")

	_, err = service.CreateProjectSession("proj-1", "Motor Driver", "power", "shipping")
	utils.ErrorContains(t, err, "ERR_STAGE_INVALID")
}

func TestSessionService_SetStage(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	session := seedProjectSession(t, models.StageAnalysis)
	store, sessionMock := newSessionStore(session)
	_, messageMock := newMessageStore()
	backend := &fakeBackend{}
	service := newSessionService(t, backend, sessionMock, messageMock)

	updated, err := service.SetStage(session.ID, "design")
	utils.NilError(t, err)
	utils.Equal(t, updated.Stage, models.StageDesign)
	utils.Equal(t, store.get(session.ID).Stage, models.StageDesign)

	puts := backend.stageUpdates()
	utils.Equal(t, len(puts), 1)
	utils.Equal(t, puts[0], "design")

	// Tools lock the moment the stage leaves analysis.
	allowed, err := service.ToolsAllowed(session.ID)
	utils.NilError(t, err)
	utils.Equal(t, allowed, false)

	// Any stage is reachable from any other, including straight back.
	updated, err = service.SetStage(session.ID, "analysis")
	utils.NilError(t, err)
	utils.Equal(t, updated.Stage, models.StageAnalysis)
}

func TestSessionService_SetStage_Rejections(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	general := seedGeneralSession(t)
	project := seedProjectSession(t, models.StageReview)
	_, sessionMock := newSessionStore(general, project)
	_, messageMock := newMessageStore()
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	_, err := service.SetStage(general.ID, "design")
	utils.ErrorContains(t, err, "ERR_STAGE_NOT_PROJECT")

	_, err = service.SetStage(project.ID, "shipping")
	utils.ErrorContains(t, err, "ERR_STAGE_INVALID")

	_, err = service.SetStage("ghost", "design")
	utils.ErrorContains(t, err, "ERR_SESSION_NOT_FOUND")
}

func TestSessionService_SetStage_BackendFailureLeavesLocalState(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	session := seedProjectSession(t, models.StageAnalysis)
	store, sessionMock := newSessionStore(session)
	_, messageMock := newMessageStore()
	service := services.NewSessionService(
		sessionMock, messageMock,
		services.NewUserService(&mocks.UserRepositoryMock{}),
		unreachableBackend(t),
	)

	_, err := service.SetStage(session.ID, "design")
	if err == nil {
		t.Fatal("expected backend failure")
	}
	utils.Equal(t, store.get(session.ID).Stage, models.StageAnalysis)
}

func TestSessionService_SelectSession_RefreshesHistory(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	session := seedGeneralSession(t)
	_, sessionMock := newSessionStore(session)
	stale := models.ChatMessage{ID: "old", SessionID: session.ID, Role: models.RoleUser, Content: "stale local copy"}
	msgStore, messageMock := newMessageStore(stale)
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	view, err := service.SelectSession(session.ID)
	utils.NilError(t, err)
	utils.Equal(t, view.Session.ID, session.ID)
	utils.Equal(t, service.ActiveSessionID(), session.ID)

	// The fake backend reports an empty history, so the stale message is
	// replaced away.
	utils.Equal(t, len(view.Messages), 0)
	utils.Equal(t, len(msgStore.bySession(session.ID)), 0)
}

func TestSessionService_SelectSession_BackendDownServesCache(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	session := seedGeneralSession(t)
	_, sessionMock := newSessionStore(session)
	cached := models.ChatMessage{ID: "c1", SessionID: session.ID, Role: models.RoleUser, Content: "cached"}
	_, messageMock := newMessageStore(cached)
	service := services.NewSessionService(
		sessionMock, messageMock,
		services.NewUserService(&mocks.UserRepositoryMock{}),
		unreachableBackend(t),
	)

	view, err := service.SelectSession(session.ID)
	utils.NilError(t, err)
	utils.Equal(t, len(view.Messages), 1)
	utils.Equal(t, view.Messages[0].Content, "cached")
}

func TestSessionService_RenameSession_PinsTitle(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	session := seedGeneralSession(t)
	store, sessionMock := newSessionStore(session)
	_, messageMock := newMessageStore()
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	renamed, err := service.RenameSession(session.ID, "LLC resonant tank notes")
	utils.NilError(t, err)
	utils.Equal(t, renamed.Title, "LLC resonant tank notes")
	utils.Equal(t, renamed.TitleGenerated, true)
	utils.Equal(t, store.get(session.ID).TitleGenerated, true)

	_, err = service.RenameSession(session.ID, "   ")
	utils.ErrorContains(t, err, "ERR_TITLE_EMPTY")
}

func TestSessionService_DeleteSession_ClearsActive(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	session := seedGeneralSession(t)
	_, sessionMock := newSessionStore(session)
	_, messageMock := newMessageStore()
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	_, err := service.SelectSession(session.ID)
	utils.NilError(t, err)
	utils.NilError(t, service.DeleteSession(session.ID))
	utils.Equal(t, service.ActiveSessionID(), "")

	err = service.DeleteSession(session.ID)
	utils.ErrorContains(t, err, "ERR_SESSION_NOT_FOUND")
}

func TestSessionService_ListSessions_PropagatesRepoError(t *testing.T) {
	rec := &eventRecorder{}
	rec.install(t)

	sessionMock := &mocks.ChatSessionRepositoryMock{
		ListFunc: func(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
			return nil, errors.New("disk gone")
		},
	}
	_, messageMock := newMessageStore()
	service := newSessionService(t, &fakeBackend{}, sessionMock, messageMock)

	_, err := service.ListSessions()
	utils.ErrorContains(t, err, "disk gone")
}
