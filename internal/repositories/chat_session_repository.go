package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"wattson/internal/models"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, s *models.ChatSession) error
	GetByID(ctx context.Context, id string) (*models.ChatSession, error)
	List(ctx context.Context, ownerID string) ([]models.ChatSession, error)
	Update(ctx context.Context, s *models.ChatSession) error
	UpdateByID(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteByID(ctx context.Context, id string) error
}

type chatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) ChatSessionRepository {
	return &chatSessionRepository{db: db}
}

func (r *chatSessionRepository) Create(ctx context.Context, s *models.ChatSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *chatSessionRepository) GetByID(ctx context.Context, id string) (*models.ChatSession, error) {
	var sess models.ChatSession
	res := r.db.WithContext(ctx).Take(&sess, "id = ?", id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &sess, nil
}

func (r *chatSessionRepository) List(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	q := r.db.WithContext(ctx).Order("updated_at desc")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *chatSessionRepository) Update(ctx context.Context, s *models.ChatSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *chatSessionRepository) UpdateByID(ctx context.Context, id string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.ChatSession{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteByID removes the session and cascades to its message history.
func (r *chatSessionRepository) DeleteByID(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ChatSession{}, "id = ?", id).Error
	})
}
