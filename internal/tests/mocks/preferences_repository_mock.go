package mocks

import (
	"context"

	"wattson/internal/models"
)

type PreferencesRepositoryMock struct {
	GetFunc    func(ctx context.Context) (*models.Preferences, error)
	UpdateFunc func(ctx context.Context, p *models.Preferences) error
}

func (m *PreferencesRepositoryMock) Get(ctx context.Context) (*models.Preferences, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	return &models.Preferences{ID: 1, Mode: "standard", Theme: "system"}, nil
}

func (m *PreferencesRepositoryMock) Update(ctx context.Context, p *models.Preferences) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	return nil
}
