package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/support-api/internal/domain/support"
)

// ErrorDetail is the machine readable error body.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse is the error envelope every endpoint answers with.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ConversationEnvelope wraps a single conversation.
type ConversationEnvelope struct {
	Conversation *support.Conversation `json:"conversation"`
}

// ConversationListEnvelope wraps a visitor's conversations.
type ConversationListEnvelope struct {
	Conversations []*support.Conversation `json:"conversations"`
}

// MessageEnvelope wraps a single message.
type MessageEnvelope struct {
	Message *support.Message `json:"message"`
}

// MessageListEnvelope wraps a conversation's messages.
type MessageListEnvelope struct {
	Messages []*support.Message `json:"messages"`
}

// CreateConversationEnvelope bundles a fresh conversation with its
// initial message set so the widget can paint in one round trip.
type CreateConversationEnvelope struct {
	Conversation *support.Conversation `json:"conversation"`
	Messages     []*support.Message    `json:"messages"`
}

// MarkReadEnvelope reports how many messages a read sweep touched.
type MarkReadEnvelope struct {
	Updated int64 `json:"updated"`
}

// UploadEnvelope returns the public URL of a stored image.
type UploadEnvelope struct {
	URL string `json:"url"`
}

// AckEnvelope is the generic success acknowledgment.
type AckEnvelope struct {
	OK bool `json:"ok"`
}

// HandleError maps domain sentinels onto HTTP statuses. Unknown errors
// become 500s with the caller supplied message, never the raw error.
func HandleError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, support.ErrConversationNotFound), errors.Is(err, support.ErrMessageNotFound):
		WriteError(c, http.StatusNotFound, message)
	case errors.Is(err, support.ErrInvalidStatus),
		errors.Is(err, support.ErrInvalidTransition),
		errors.Is(err, support.ErrEmptyMessage):
		WriteError(c, http.StatusBadRequest, message)
	case errors.Is(err, support.ErrConversationClosed), errors.Is(err, support.ErrThreadTaken):
		WriteError(c, http.StatusConflict, message)
	default:
		WriteError(c, http.StatusInternalServerError, message)
	}
}

// WriteError writes the error envelope with the given status.
func WriteError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    statusToErrorType(status),
		},
	})
}

func statusToErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized_error"
	case http.StatusForbidden:
		return "forbidden_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusConflict:
		return "conflict_error"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large_error"
	default:
		return "internal_error"
	}
}
