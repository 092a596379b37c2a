package entities

import (
	"time"

	"jan-server/services/support-api/internal/domain/support"
)

// Message represents the database schema for chat messages.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	PublicID          string             `gorm:"type:varchar(50);uniqueIndex;not null"`
	ConversationID    uint               `gorm:"index:idx_message_conversation_created;not null"`
	Sender            support.SenderType `gorm:"type:varchar(20);not null"`
	SenderName        string             `gorm:"type:varchar(255)"`
	SenderTelegramID  *int64
	Content           string `gorm:"type:text;not null;default:''"`
	ImageURL          string `gorm:"type:text"`
	TelegramMessageID *int64 `gorm:"index"`
	Read              bool   `gorm:"not null;default:false"`
	ReadAt            *time.Time
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// EtoD converts the database entity to the domain model.
func (m *Message) EtoD() *support.Message {
	return &support.Message{
		ID:                m.ID,
		PublicID:          m.PublicID,
		ConversationID:    m.ConversationID,
		Sender:            m.Sender,
		SenderName:        m.SenderName,
		SenderTelegramID:  m.SenderTelegramID,
		Content:           m.Content,
		ImageURL:          m.ImageURL,
		TelegramMessageID: m.TelegramMessageID,
		Read:              m.Read,
		ReadAt:            m.ReadAt,
		CreatedAt:         m.CreatedAt,
	}
}

// NewSchemaMessage creates a database entity from the domain model.
func NewSchemaMessage(m *support.Message) *Message {
	return &Message{
		ID:                m.ID,
		PublicID:          m.PublicID,
		ConversationID:    m.ConversationID,
		Sender:            m.Sender,
		SenderName:        m.SenderName,
		SenderTelegramID:  m.SenderTelegramID,
		Content:           m.Content,
		ImageURL:          m.ImageURL,
		TelegramMessageID: m.TelegramMessageID,
		Read:              m.Read,
		ReadAt:            m.ReadAt,
		CreatedAt:         m.CreatedAt,
	}
}
