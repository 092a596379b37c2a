package entities

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"jan-server/services/support-api/internal/domain/support"
)

// Conversation represents the database schema for support conversations.
type Conversation struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID      string                     `gorm:"type:varchar(50);uniqueIndex;not null"`
	UserID        string                     `gorm:"type:varchar(64);index:idx_conversation_user_status;not null"`
	Status        support.ConversationStatus `gorm:"type:varchar(20);index:idx_conversation_user_status;not null;default:'open'"`
	ThreadID      *int64                     `gorm:"uniqueIndex:idx_conversations_thread_id"`
	Metadata      JSONMap                    `gorm:"type:jsonb"`
	LastMessageAt *time.Time

	Messages []Message `gorm:"foreignKey:ConversationID"`
}

// TableName specifies the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// JSONMap is a custom type for map[string]string stored as JSON.
type JSONMap map[string]string

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// EtoD converts the database entity to the domain model.
func (c *Conversation) EtoD() *support.Conversation {
	return &support.Conversation{
		ID:            c.ID,
		PublicID:      c.PublicID,
		UserID:        c.UserID,
		Status:        c.Status,
		ThreadID:      c.ThreadID,
		Metadata:      c.Metadata,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// NewSchemaConversation creates a database entity from the domain model.
func NewSchemaConversation(c *support.Conversation) *Conversation {
	return &Conversation{
		ID:            c.ID,
		PublicID:      c.PublicID,
		UserID:        c.UserID,
		Status:        c.Status,
		ThreadID:      c.ThreadID,
		Metadata:      c.Metadata,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
