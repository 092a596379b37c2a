package support

import (
	"context"
	"strings"
	"time"
)

type SenderType string

const (
	SenderUser    SenderType = "user"
	SenderSupport SenderType = "support"
)

// Valid reports whether the sender is one of the known values.
func (s SenderType) Valid() bool {
	return s == SenderUser || s == SenderSupport
}

// Message is a single chat message inside a conversation. Either Content or
// ImageURL must be set. TelegramMessageID carries the platform message id once
// the message has crossed the bridge in either direction. SenderName and
// SenderTelegramID identify the agent on support replies; both stay empty on
// visitor messages.
type Message struct {
	ID                   uint       `json:"-"`
	PublicID             string     `json:"id"`
	ConversationID       uint       `json:"-"`
	ConversationPublicID string     `json:"conversation_id"`
	Sender               SenderType `json:"sender"`
	SenderName           string     `json:"sender_name,omitempty"`
	SenderTelegramID     *int64     `json:"-"`
	Content              string     `json:"content,omitempty"`
	ImageURL             string     `json:"image_url,omitempty"`
	TelegramMessageID    *int64     `json:"-"`
	Read                 bool       `json:"read"`
	ReadAt               *time.Time `json:"read_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Empty reports whether the message carries neither text nor an image.
func (m *Message) Empty() bool {
	return strings.TrimSpace(m.Content) == "" && strings.TrimSpace(m.ImageURL) == ""
}

type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	// ListByConversation returns the conversation's messages oldest first.
	ListByConversation(ctx context.Context, conversationID uint) ([]*Message, error)
	SetTelegramMessageID(ctx context.Context, messageID uint, telegramMessageID int64) error
	// MarkSupportMessagesRead flags all unread support replies in the
	// conversation as read and returns how many rows changed.
	MarkSupportMessagesRead(ctx context.Context, conversationID uint, at time.Time) (int64, error)
}
