// Package widgetclient is the embeddable state store behind the support
// widget. It keeps one visitor's conversations and the active message list
// in sync across four independent write sources: optimistic local sends,
// HTTP responses, realtime insert events, and the device-local cache.
//
// The zero dependency surface is three small interfaces (API, Subscriber,
// Cache); the package ships implementations for all of them: a resty HTTP
// client, an SSE subscriber, and a JSON file cache.
package widgetclient

import "time"

// Conversation statuses as served by the support API.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
)

// Message senders.
const (
	SenderUser    = "user"
	SenderSupport = "support"
)

// DeliveryState tracks an optimistic send through its reconciliation
// lifecycle. Server-authored messages carry no delivery state.
type DeliveryState string

const (
	// DeliveryPending marks a placeholder whose POST has not resolved yet.
	DeliveryPending DeliveryState = "pending"
	// DeliveryConfirmed marks a placeholder the server has persisted but
	// whose realtime copy has not arrived yet.
	DeliveryConfirmed DeliveryState = "confirmed"
)

// Conversation mirrors the conversation payload of the support API.
type Conversation struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastMessageAt *time.Time        `json:"last_message_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Active reports whether the visitor may still write into the conversation.
func (c Conversation) Active() bool {
	return c.Status == StatusOpen
}

// Message mirrors the message payload of the support API. Delivery is
// client-local and only ever set on optimistic placeholders.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Sender         string        `json:"sender"`
	SenderName     string        `json:"sender_name,omitempty"`
	Content        string        `json:"content,omitempty"`
	ImageURL       string        `json:"image_url,omitempty"`
	Read           bool          `json:"read"`
	ReadAt         *time.Time    `json:"read_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Delivery       DeliveryState `json:"delivery,omitempty"`
}

// Placeholder reports whether the message is a local optimistic entry that
// has not been superseded by its server copy yet.
func (m Message) Placeholder() bool {
	return m.Delivery != ""
}
