package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"wattson/internal/assistant"
	"wattson/internal/events"
	"wattson/internal/repositories"
	"wattson/internal/utils"
)

const maxDocumentBytes = 4 << 20 // 4 MiB per document

// DocumentService pushes reference material (datasheets, standards excerpts,
// design notes) into a session's knowledge scope so later turns can draw on
// it. For general sessions the scope is the session itself; for project
// sessions the backend shares it across the project.
type DocumentService interface {
	Startup(ctx context.Context)
	UploadDocument(sessionID, filename, category, content string) (*assistant.DocumentResponse, error)
	UploadDocumentFromPath(sessionID, path, category string) (*assistant.DocumentResponse, error)
	UploadDirectory(sessionID, dir, category string) (int, error)
}

type documentService struct {
	ctx context.Context

	sessionRepo repositories.ChatSessionRepository
	backend     *assistant.Client
}

func NewDocumentService(sessionRepo repositories.ChatSessionRepository, backend *assistant.Client) DocumentService {
	return &documentService{
		ctx:         context.Background(),
		sessionRepo: sessionRepo,
		backend:     backend,
	}
}

func (s *documentService) Startup(ctx context.Context) {
	s.ctx = ctx
}

func (s *documentService) UploadDocument(sessionID, filename, category, content string) (*assistant.DocumentResponse, error) {
	session, err := s.sessionRepo.GetByID(s.ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("ERR_SESSION_NOT_FOUND:%s", sessionID)
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("ERR_DOCUMENT_INVALID: filename is required")
	}
	if len(utils.NonEmptyLines(content)) == 0 {
		return nil, fmt.Errorf("ERR_DOCUMENT_INVALID: document %s has no content", filename)
	}

	resp, err := s.backend.UploadDocument(s.ctx, assistant.DocumentRequest{
		SessionID: session.ID,
		Filename:  filename,
		Category:  category,
		Content:   content,
	})
	if err != nil {
		events.Emit(s.ctx, events.ChatError, events.NewError(session.ID,
			fmt.Sprintf("document %s failed to index", filename)))
		return nil, err
	}

	session.DocumentCount++
	if err := s.sessionRepo.UpdateByID(s.ctx, session.ID, map[string]interface{}{
		"document_count": session.DocumentCount,
	}); err != nil {
		return nil, err
	}

	evt := events.NewSuccess(session.ID, fmt.Sprintf("document %s indexed", filename))
	evt.Metadata = map[string]string{
		"filename": filename,
		"chunks":   strconv.Itoa(resp.Chunks),
	}
	events.Emit(s.ctx, events.DocumentIngested, evt)
	return resp, nil
}

func (s *documentService) UploadDocumentFromPath(sessionID, path, category string) (*assistant.DocumentResponse, error) {
	if !utils.FileExists(path) {
		return nil, fmt.Errorf("ERR_DOCUMENT_INVALID: no such file %s", path)
	}
	content, err := utils.ReadTextFile(path, maxDocumentBytes)
	if err != nil {
		return nil, fmt.Errorf("ERR_DOCUMENT_INVALID: %w", err)
	}
	return s.UploadDocument(sessionID, filepath.Base(path), category, content)
}

// UploadDirectory ingests every regular file directly inside dir, in name
// order. It stops at the first failure and reports how many made it in.
func (s *documentService) UploadDirectory(sessionID, dir, category string) (int, error) {
	if !utils.DirectoryExists(dir) {
		return 0, fmt.Errorf("ERR_DOCUMENT_INVALID: no such directory %s", dir)
	}
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return 0, err
	}
	sort.Strings(entries)

	uploaded := 0
	for _, entry := range entries {
		if !utils.FileExists(entry) {
			continue
		}
		if _, err := s.UploadDocumentFromPath(sessionID, entry, category); err != nil {
			return uploaded, err
		}
		uploaded++
	}
	return uploaded, nil
}
