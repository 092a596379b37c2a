package support

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/database/entities"
	"jan-server/services/support-api/internal/infrastructure/metrics"
)

// MessageRepository persists messages with GORM.
type MessageRepository struct {
	db *gorm.DB
}

var _ domain.MessageRepository = (*MessageRepository)(nil)

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts the message record.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	entity := entities.NewSchemaMessage(msg)
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	msg.ID = entity.ID
	msg.CreatedAt = entity.CreatedAt
	metrics.RecordMessagePersisted(string(msg.Sender))
	return nil
}

// ListByConversation returns the conversation's messages oldest first.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uint) ([]*domain.Message, error) {
	var rows []entities.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	result := make([]*domain.Message, len(rows))
	for i := range rows {
		result[i] = rows[i].EtoD()
	}
	return result, nil
}

// SetTelegramMessageID records the platform message id on a stored message.
func (r *MessageRepository) SetTelegramMessageID(ctx context.Context, messageID uint, telegramMessageID int64) error {
	result := r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("id = ?", messageID).
		Update("telegram_message_id", telegramMessageID)
	if result.Error != nil {
		return fmt.Errorf("set telegram message id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// MarkSupportMessagesRead flags all unread support replies in the
// conversation as read.
func (r *MessageRepository) MarkSupportMessagesRead(ctx context.Context, conversationID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("conversation_id = ? AND sender = ? AND read = ?", conversationID, domain.SenderSupport, false).
		Updates(map[string]any{"read": true, "read_at": at})
	if result.Error != nil {
		return 0, fmt.Errorf("mark messages read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
