package unit_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wattson/internal/assistant"
	"wattson/internal/events"
	"wattson/internal/models"
	"wattson/internal/tests/mocks"
)

// recordedEvent pairs an emitted event with the channel name it went out on.
type recordedEvent struct {
	Name  string
	Event events.ChatEvent
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

// install routes the global emitter into the recorder for the duration of
// the test.
func (r *eventRecorder) install(t *testing.T) {
	t.Helper()
	events.SetCustomEmitter(func(ctx context.Context, name string, evt events.ChatEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, recordedEvent{Name: name, Event: evt})
	})
	t.Cleanup(func() { events.SetCustomEmitter(nil) })
}

func (r *eventRecorder) byName(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) countByName(name string) int {
	return len(r.byName(name))
}

// waitFor polls until at least one event with the given name was recorded.
func (r *eventRecorder) waitFor(t *testing.T, name string, timeout time.Duration) recordedEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := r.byName(name); len(got) > 0 {
			return got[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q event within %v", name, timeout)
	return recordedEvent{}
}

// sessionStore is an in-memory ChatSessionRepository backing.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.ChatSession
}

func newSessionStore(seed ...*models.ChatSession) (*sessionStore, *mocks.ChatSessionRepositoryMock) {
	store := &sessionStore{sessions: make(map[string]models.ChatSession)}
	for _, s := range seed {
		store.sessions[s.ID] = *s
	}
	mock := &mocks.ChatSessionRepositoryMock{
		CreateFunc: func(ctx context.Context, s *models.ChatSession) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			store.sessions[s.ID] = *s
			return nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.ChatSession, error) {
			store.mu.Lock()
			defer store.mu.Unlock()
			if s, ok := store.sessions[id]; ok {
				copied := s
				return &copied, nil
			}
			return nil, nil
		},
		UpdateFunc: func(ctx context.Context, s *models.ChatSession) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			store.sessions[s.ID] = *s
			return nil
		},
		UpdateByIDFunc: func(ctx context.Context, id string, updates map[string]interface{}) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			s, ok := store.sessions[id]
			if !ok {
				return nil
			}
			if v, ok := updates["turn_count"].(int); ok {
				s.TurnCount = v
			}
			if v, ok := updates["document_count"].(int); ok {
				s.DocumentCount = v
			}
			if v, ok := updates["title"].(string); ok {
				s.Title = v
			}
			if v, ok := updates["title_generated"].(bool); ok {
				s.TitleGenerated = v
			}
			store.sessions[id] = s
			return nil
		},
		DeleteByIDFunc: func(ctx context.Context, id string) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			delete(store.sessions, id)
			return nil
		},
	}
	return store, mock
}

func (s *sessionStore) get(id string) models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// messageStore is an in-memory ChatMessageRepository backing preserving
// insertion order.
type messageStore struct {
	mu   sync.Mutex
	msgs []models.ChatMessage
}

func newMessageStore(seed ...models.ChatMessage) (*messageStore, *mocks.ChatMessageRepositoryMock) {
	store := &messageStore{msgs: append([]models.ChatMessage(nil), seed...)}
	mock := &mocks.ChatMessageRepositoryMock{
		CreateFunc: func(ctx context.Context, m *models.ChatMessage) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			store.msgs = append(store.msgs, *m)
			return nil
		},
		ListBySessionFunc: func(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
			store.mu.Lock()
			defer store.mu.Unlock()
			var out []models.ChatMessage
			for _, m := range store.msgs {
				if m.SessionID == sessionID {
					out = append(out, m)
				}
			}
			if limit > 0 && len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		},
		UpdateFunc: func(ctx context.Context, m *models.ChatMessage) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			for i := range store.msgs {
				if store.msgs[i].ID == m.ID {
					store.msgs[i] = *m
					return nil
				}
			}
			store.msgs = append(store.msgs, *m)
			return nil
		},
		ReplaceSessionFunc: func(ctx context.Context, sessionID string, msgs []models.ChatMessage) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			var kept []models.ChatMessage
			for _, m := range store.msgs {
				if m.SessionID != sessionID {
					kept = append(kept, m)
				}
			}
			store.msgs = append(kept, msgs...)
			return nil
		},
	}
	return store, mock
}

func (s *messageStore) bySession(sessionID string) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range s.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (s *messageStore) byID(id string) *models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == id {
			copied := m
			return &copied
		}
	}
	return nil
}

// fakeBackend is a scripted assistant backend over httptest.
type fakeBackend struct {
	// Chunks streamed (then a done frame) for /api/turns/stream.
	Chunks []string
	// ServerMessageID reported in the done frame / batch response.
	ServerMessageID string
	// BatchResponse returned by /api/turns.
	BatchResponse string
	// Title returned by /api/titles; empty disables title generation.
	Title string
	// ErrorFrame, when set, is emitted instead of the done frame.
	ErrorFrame *assistant.Frame
	// HoldStream keeps the stream open after the chunks until the client
	// goes away, for cancellation tests. When HoldContent is set only turns
	// with that exact content are held.
	HoldStream  bool
	HoldContent string

	mu         sync.Mutex
	stagePuts  []string
	titleCalls int
	streamReqs []assistant.TurnRequest
	batchReqs  []assistant.TurnRequest
}

func (b *fakeBackend) start(t *testing.T) *assistant.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(server.Close)
	client, err := assistant.New(assistant.Config{
		BaseURL:    server.URL,
		Credential: func() (string, error) { return "test-token", nil },
	})
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return client
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/turns/stream":
		b.handleStream(w, r)
	case r.URL.Path == "/api/turns":
		var req assistant.TurnRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.batchReqs = append(b.batchReqs, req)
		b.mu.Unlock()
		json.NewEncoder(w).Encode(assistant.TurnResponse{
			MessageID: b.ServerMessageID,
			Response:  b.BatchResponse,
		})
	case r.URL.Path == "/api/titles":
		b.mu.Lock()
		b.titleCalls++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"title": b.Title})
	case strings.HasSuffix(r.URL.Path, "/stage"):
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.stagePuts = append(b.stagePuts, body["stage"])
		b.mu.Unlock()
		json.NewEncoder(w).Encode(assistant.StageResponse{Stage: body["stage"]})
	case strings.HasSuffix(r.URL.Path, "/history"):
		json.NewEncoder(w).Encode([]assistant.HistoryMessage{})
	case r.URL.Path == "/api/documents":
		json.NewEncoder(w).Encode(assistant.DocumentResponse{Chunks: 3, Indexed: true})
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) handleStream(w http.ResponseWriter, r *http.Request) {
	var req assistant.TurnRequest
	json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	b.streamReqs = append(b.streamReqs, req)
	b.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, text := range b.Chunks {
		payload, _ := json.Marshal(assistant.Frame{Type: assistant.FrameChunk, Text: text})
		fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", payload)
		flusher.Flush()
	}
	if b.HoldStream && (b.HoldContent == "" || req.Content == b.HoldContent) {
		<-r.Context().Done()
		return
	}
	if b.ErrorFrame != nil {
		payload, _ := json.Marshal(*b.ErrorFrame)
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}
	payload, _ := json.Marshal(assistant.Frame{
		Type: assistant.FrameDone,
		Done: &assistant.DoneFields{MessageID: b.ServerMessageID},
	})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}

func (b *fakeBackend) stageUpdates() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.stagePuts...)
}

func (b *fakeBackend) streamRequests() []assistant.TurnRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]assistant.TurnRequest(nil), b.streamReqs...)
}

func (b *fakeBackend) batchRequests() []assistant.TurnRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]assistant.TurnRequest(nil), b.batchReqs...)
}

// unreachableBackend returns a client whose server is already gone, so every
// call fails at the transport.
func unreachableBackend(t *testing.T) *assistant.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()
	client, err := assistant.New(assistant.Config{
		BaseURL:    url,
		Credential: func() (string, error) { return "test-token", nil },
	})
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return client
}

func seedProjectSession(t *testing.T, stage models.Stage) *models.ChatSession {
	t.Helper()
	session, err := models.NewProjectSession("user-1", "proj-1", "LLC Converter", "power", stage)
	if err != nil {
		t.Fatalf("seed project session: %v", err)
	}
	return session
}

func seedGeneralSession(t *testing.T) *models.ChatSession {
	t.Helper()
	session, err := models.NewGeneralSession("user-1")
	if err != nil {
		t.Fatalf("seed general session: %v", err)
	}
	return session
}
