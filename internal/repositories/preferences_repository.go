package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"wattson/internal/models"
)

type PreferencesRepository interface {
	Get(ctx context.Context) (*models.Preferences, error)
	Update(ctx context.Context, p *models.Preferences) error
}

type preferencesRepository struct {
	db *gorm.DB
}

func NewPreferencesRepository(db *gorm.DB) PreferencesRepository {
	return &preferencesRepository{db: db}
}

// Get returns the single preferences row, creating the default row on first
// access.
func (r *preferencesRepository) Get(ctx context.Context) (*models.Preferences, error) {
	var prefs models.Preferences
	res := r.db.WithContext(ctx).Take(&prefs, "id = ?", 1)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			prefs = models.Preferences{ID: 1, Mode: "standard", Theme: "system"}
			if err := r.db.WithContext(ctx).Create(&prefs).Error; err != nil {
				return nil, err
			}
			return &prefs, nil
		}
		return nil, res.Error
	}
	return &prefs, nil
}

func (r *preferencesRepository) Update(ctx context.Context, p *models.Preferences) error {
	p.ID = 1
	return r.db.WithContext(ctx).Save(p).Error
}
