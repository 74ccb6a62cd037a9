package mocks

import (
	"context"

	"wattson/internal/models"
)

type UserRepositoryMock struct {
	CreateFunc   func(ctx context.Context, u *models.User) error
	FindByIDFunc func(ctx context.Context, id string) (*models.User, error)
	FirstFunc    func(ctx context.Context) (*models.User, error)
	UpdateFunc   func(ctx context.Context, u *models.User) error
}

func (m *UserRepositoryMock) Create(ctx context.Context, u *models.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, u)
	}
	return nil
}

func (m *UserRepositoryMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *UserRepositoryMock) First(ctx context.Context) (*models.User, error) {
	if m.FirstFunc != nil {
		return m.FirstFunc(ctx)
	}
	return &models.User{ID: "user-1", Name: "Test User"}, nil
}

func (m *UserRepositoryMock) Update(ctx context.Context, u *models.User) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, u)
	}
	return nil
}
