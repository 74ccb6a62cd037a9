package services

import (
	"context"

	"gorm.io/gorm"

	"wattson/internal/assistant"
	"wattson/internal/repositories"
)

// Services bundles the constructed service graph so main wires it in one
// call.
type Services struct {
	Keyring     KeyringService
	User        UserService
	Session     SessionService
	Turn        TurnService
	Document    DocumentService
	Preferences PreferencesService
}

// New builds all services over one database handle and one backend client.
func New(db *gorm.DB, backend *assistant.Client) *Services {
	sessionRepo := repositories.NewChatSessionRepository(db)
	messageRepo := repositories.NewChatMessageRepository(db)
	prefsRepo := repositories.NewPreferencesRepository(db)
	userRepo := repositories.NewUserRepository(db)

	userService := NewUserService(userRepo)
	return &Services{
		Keyring:     NewKeyringService(),
		User:        userService,
		Session:     NewSessionService(sessionRepo, messageRepo, userService, backend),
		Turn:        NewTurnService(sessionRepo, messageRepo, prefsRepo, backend, userService),
		Document:    NewDocumentService(sessionRepo, backend),
		Preferences: NewPreferencesService(prefsRepo),
	}
}

// Startup forwards the runtime context to every service that needs it.
func (s *Services) Startup(ctx context.Context) {
	s.User.Startup(ctx)
	s.Session.Startup(ctx)
	s.Turn.Startup(ctx)
	s.Document.Startup(ctx)
	s.Preferences.Startup(ctx)
}
