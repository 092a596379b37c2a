package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/database/entities"
)

// ConversationRepository persists conversations with GORM.
type ConversationRepository struct {
	db *gorm.DB
}

var _ domain.ConversationRepository = (*ConversationRepository)(nil)

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts the conversation record.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	entity := entities.NewSchemaConversation(conv)
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	conv.ID = entity.ID
	conv.CreatedAt = entity.CreatedAt
	conv.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByPublicID fetches a conversation by its public ID.
func (r *ConversationRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Conversation, error) {
	var entity entities.Conversation
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("fetch conversation %s: %w", publicID, err)
	}
	return entity.EtoD(), nil
}

// FindByThreadID resolves the conversation bound to a forum topic. The
// partial unique index on thread_id keeps this lookup deterministic.
func (r *ConversationRepository) FindByThreadID(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	var entity entities.Conversation
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("fetch conversation by thread %d: %w", threadID, err)
	}
	return entity.EtoD(), nil
}

// FindByFilter fetches conversations matching the filter, most recently
// active first.
func (r *ConversationRepository) FindByFilter(ctx context.Context, filter domain.ConversationFilter) ([]*domain.Conversation, error) {
	query := r.db.WithContext(ctx).Model(&entities.Conversation{})

	if filter.PublicID != nil {
		query = query.Where("public_id = ?", *filter.PublicID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ThreadID != nil {
		query = query.Where("thread_id = ?", *filter.ThreadID)
	}

	var rows []entities.Conversation
	if err := query.Order("COALESCE(last_message_at, created_at) DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}

	result := make([]*domain.Conversation, len(rows))
	for i := range rows {
		result[i] = rows[i].EtoD()
	}
	return result, nil
}

// Update saves the conversation record.
func (r *ConversationRepository) Update(ctx context.Context, conv *domain.Conversation) error {
	entity := entities.NewSchemaConversation(conv)
	result := r.db.WithContext(ctx).Model(&entities.Conversation{}).
		Where("id = ?", entity.ID).
		Updates(map[string]any{
			"status":          entity.Status,
			"thread_id":       entity.ThreadID,
			"metadata":        entity.Metadata,
			"last_message_at": entity.LastMessageAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update conversation %s: %w", conv.PublicID, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// BindThread attaches a forum topic to the conversation. The guarded update
// only succeeds while the conversation has no thread yet, so a concurrent
// bind loses with ErrThreadTaken instead of silently rebinding.
func (r *ConversationRepository) BindThread(ctx context.Context, conversationID uint, threadID int64) error {
	result := r.db.WithContext(ctx).Model(&entities.Conversation{}).
		Where("id = ? AND thread_id IS NULL", conversationID).
		Update("thread_id", threadID)
	if result.Error != nil {
		return fmt.Errorf("bind thread %d: %w", threadID, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&entities.Conversation{}).
			Where("id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("bind thread %d: %w", threadID, err)
		}
		if count == 0 {
			return domain.ErrConversationNotFound
		}
		return domain.ErrThreadTaken
	}
	return nil
}

// CloseResolvedBefore closes resolved conversations whose last update is
// older than the cutoff and returns how many rows changed.
func (r *ConversationRepository) CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.Conversation{}).
		Where("status = ? AND updated_at < ?", domain.ConversationStatusResolved, cutoff).
		Update("status", domain.ConversationStatusClosed)
	if result.Error != nil {
		return 0, fmt.Errorf("close stale conversations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
