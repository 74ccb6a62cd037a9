package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"wattson/internal/models"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	GetByID(ctx context.Context, id string) (*models.ChatMessage, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	Update(ctx context.Context, m *models.ChatMessage) error
	ReplaceSession(ctx context.Context, sessionID string, msgs []models.ChatMessage) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type chatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Create(ctx context.Context, m *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *chatMessageRepository) GetByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	res := r.db.WithContext(ctx).Take(&msg, "id = ?", id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &msg, nil
}

func (r *chatMessageRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatMessageRepository) Update(ctx context.Context, m *models.ChatMessage) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// ReplaceSession rewrites a session's stored history in one transaction.
// Used when the eagerly fetched backend history supersedes the local copy.
func (r *chatMessageRepository) ReplaceSession(ctx context.Context, sessionID string, msgs []models.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		return tx.Create(&msgs).Error
	})
}

func (r *chatMessageRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error
}
