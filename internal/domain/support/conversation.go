package support

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by the support domain.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationClosed   = errors.New("conversation is closed")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInvalidStatus        = errors.New("invalid conversation status")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrEmptyMessage         = errors.New("message needs text content or an image")
	ErrThreadTaken          = errors.New("topic thread is already linked to a conversation")
)

type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusResolved ConversationStatus = "resolved"
	ConversationStatusClosed   ConversationStatus = "closed"
)

// Valid reports whether the status is one of the known values.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusOpen, ConversationStatusResolved, ConversationStatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether a conversation may move from s to next.
// Closed is terminal; resolved conversations reopen on new visitor messages.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case ConversationStatusOpen:
		return next == ConversationStatusResolved || next == ConversationStatusClosed
	case ConversationStatusResolved:
		return next == ConversationStatusOpen || next == ConversationStatusClosed
	case ConversationStatusClosed:
		return false
	}
	return false
}

// Conversation is one visitor's support thread. ThreadID links it to a forum
// topic in the support group once the first message has been relayed.
type Conversation struct {
	ID            uint               `json:"-"`
	PublicID      string             `json:"id"`
	UserID        string             `json:"user_id"`
	Status        ConversationStatus `json:"status"`
	ThreadID      *int64             `json:"thread_id,omitempty"`
	Metadata      map[string]string  `json:"metadata,omitempty"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type ConversationFilter struct {
	PublicID *string
	UserID   *string
	Status   *ConversationStatus
	ThreadID *int64
}

type ConversationRepository interface {
	Create(ctx context.Context, conversation *Conversation) error
	FindByPublicID(ctx context.Context, publicID string) (*Conversation, error)
	FindByThreadID(ctx context.Context, threadID int64) (*Conversation, error)
	FindByFilter(ctx context.Context, filter ConversationFilter) ([]*Conversation, error)
	Update(ctx context.Context, conversation *Conversation) error
	// BindThread attaches a topic thread to the conversation. It fails with
	// ErrThreadTaken when the conversation already carries a thread.
	BindThread(ctx context.Context, conversationID uint, threadID int64) error
	// CloseResolvedBefore closes resolved conversations last updated before
	// the cutoff and returns how many rows changed.
	CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
