package mocks

import (
	"context"

	"wattson/internal/models"
)

type ChatSessionRepositoryMock struct {
	CreateFunc     func(ctx context.Context, s *models.ChatSession) error
	GetByIDFunc    func(ctx context.Context, id string) (*models.ChatSession, error)
	ListFunc       func(ctx context.Context, ownerID string) ([]models.ChatSession, error)
	UpdateFunc     func(ctx context.Context, s *models.ChatSession) error
	UpdateByIDFunc func(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteByIDFunc func(ctx context.Context, id string) error
}

func (m *ChatSessionRepositoryMock) Create(ctx context.Context, s *models.ChatSession) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	return nil
}

func (m *ChatSessionRepositoryMock) GetByID(ctx context.Context, id string) (*models.ChatSession, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *ChatSessionRepositoryMock) List(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, ownerID)
	}
	return []models.ChatSession{}, nil
}

func (m *ChatSessionRepositoryMock) Update(ctx context.Context, s *models.ChatSession) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, s)
	}
	return nil
}

func (m *ChatSessionRepositoryMock) UpdateByID(ctx context.Context, id string, updates map[string]interface{}) error {
	if m.UpdateByIDFunc != nil {
		return m.UpdateByIDFunc(ctx, id, updates)
	}
	return nil
}

func (m *ChatSessionRepositoryMock) DeleteByID(ctx context.Context, id string) error {
	if m.DeleteByIDFunc != nil {
		return m.DeleteByIDFunc(ctx, id)
	}
	return nil
}
