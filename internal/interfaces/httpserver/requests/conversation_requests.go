package requests

// CreateConversationRequest opens a conversation for a visitor,
// optionally carrying their first message.
type CreateConversationRequest struct {
	UserID   string            `json:"user_id" binding:"required"`
	Message  string            `json:"message"`
	ImageURL string            `json:"image_url"`
	Metadata map[string]string `json:"metadata"`
}

// UpdateConversationRequest moves a conversation through its lifecycle.
type UpdateConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// SendMessageRequest posts a visitor message into a conversation.
// Content and ImageURL may not both be empty.
type SendMessageRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

// MarkReadRequest flags the support replies of a conversation as read.
type MarkReadRequest struct {
	UserID string `json:"user_id" binding:"required"`
}
