package mocks

import (
	"context"

	"wattson/internal/models"
)

type ChatMessageRepositoryMock struct {
	CreateFunc          func(ctx context.Context, m *models.ChatMessage) error
	GetByIDFunc         func(ctx context.Context, id string) (*models.ChatMessage, error)
	ListBySessionFunc   func(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	UpdateFunc          func(ctx context.Context, m *models.ChatMessage) error
	ReplaceSessionFunc  func(ctx context.Context, sessionID string, msgs []models.ChatMessage) error
	DeleteBySessionFunc func(ctx context.Context, sessionID string) error
}

func (m *ChatMessageRepositoryMock) Create(ctx context.Context, msg *models.ChatMessage) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, msg)
	}
	return nil
}

func (m *ChatMessageRepositoryMock) GetByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *ChatMessageRepositoryMock) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if m.ListBySessionFunc != nil {
		return m.ListBySessionFunc(ctx, sessionID, limit)
	}
	return []models.ChatMessage{}, nil
}

func (m *ChatMessageRepositoryMock) Update(ctx context.Context, msg *models.ChatMessage) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, msg)
	}
	return nil
}

func (m *ChatMessageRepositoryMock) ReplaceSession(ctx context.Context, sessionID string, msgs []models.ChatMessage) error {
	if m.ReplaceSessionFunc != nil {
		return m.ReplaceSessionFunc(ctx, sessionID, msgs)
	}
	return nil
}

func (m *ChatMessageRepositoryMock) DeleteBySession(ctx context.Context, sessionID string) error {
	if m.DeleteBySessionFunc != nil {
		return m.DeleteBySessionFunc(ctx, sessionID)
	}
	return nil
}
