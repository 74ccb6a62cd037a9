package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wattson/internal/models"
	"wattson/internal/repositories"
)

var validModes = map[string]bool{"standard": true, "concise": true, "detailed": true}
var validThemes = map[string]bool{"system": true, "light": true, "dark": true}

// PreferencesService owns the app settings. Interested services subscribe
// for change notifications instead of re-reading the row on every turn.
type PreferencesService interface {
	Startup(ctx context.Context)
	Get() (*models.Preferences, error)
	Update(prefs models.Preferences) (*models.Preferences, error)
	Subscribe() (id int, ch <-chan models.Preferences)
	Unsubscribe(id int)
}

type preferencesService struct {
	ctx       context.Context
	prefsRepo repositories.PreferencesRepository

	mu          sync.Mutex
	subscribers map[int]chan models.Preferences
	nextSubID   int
}

func NewPreferencesService(prefsRepo repositories.PreferencesRepository) PreferencesService {
	return &preferencesService{
		ctx:         context.Background(),
		prefsRepo:   prefsRepo,
		subscribers: make(map[int]chan models.Preferences),
	}
}

func (s *preferencesService) Startup(ctx context.Context) {
	s.ctx = ctx
}

func (s *preferencesService) Get() (*models.Preferences, error) {
	return s.prefsRepo.Get(s.ctx)
}

func (s *preferencesService) Update(prefs models.Preferences) (*models.Preferences, error) {
	if !validModes[prefs.Mode] {
		return nil, fmt.Errorf("ERR_PREFS_INVALID: unknown mode %q", prefs.Mode)
	}
	if !validThemes[prefs.Theme] {
		return nil, fmt.Errorf("ERR_PREFS_INVALID: unknown theme %q", prefs.Theme)
	}
	prefs.UpdatedAt = time.Now()
	if err := s.prefsRepo.Update(s.ctx, &prefs); err != nil {
		return nil, err
	}
	s.broadcast(prefs)
	return &prefs, nil
}

// Subscribe registers a change listener. The channel is buffered; a slow
// subscriber misses intermediate updates instead of blocking Update.
func (s *preferencesService) Subscribe() (int, <-chan models.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan models.Preferences, 1)
	s.subscribers[id] = ch
	return id, ch
}

func (s *preferencesService) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *preferencesService) broadcast(prefs models.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- prefs:
		default:
			// Drop the stale update; the subscriber will see the next one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- prefs:
			default:
			}
		}
	}
}
