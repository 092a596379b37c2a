package widgetclient

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 15 * time.Second

// CreateConversationParams mirrors the conversation creation request body.
type CreateConversationParams struct {
	UserID   string            `json:"user_id"`
	Message  string            `json:"message,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client talks to the support API over HTTP. It implements the Store's API
// interface plus the endpoints the widget calls outside the store (image
// upload, read receipts).
type Client struct {
	httpc *resty.Client
	log   zerolog.Logger
}

var _ API = (*Client)(nil)

// NewClient builds a client against the service base URL, e.g.
// "https://support.example.com".
func NewClient(baseURL string, log zerolog.Logger) *Client {
	httpc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		httpc: httpc,
		log:   log.With().Str("component", "support-client").Logger(),
	}
}

// errorEnvelope matches the API's error body.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *errorEnvelope) toError(op string, status int) error {
	if e.Error.Message != "" {
		return fmt.Errorf("%s: %s", op, e.Error.Message)
	}
	return fmt.Errorf("%s: unexpected status %d", op, status)
}

func (c *Client) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/conversations")
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr.toError("list conversations", resp.StatusCode())
	}
	return out.Conversations, nil
}

func (c *Client) CreateConversation(ctx context.Context, params CreateConversationParams) (*Conversation, []Message, error) {
	var out struct {
		Conversation *Conversation `json:"conversation"`
		Messages     []Message     `json:"messages"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetBody(params).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/conversations")
	if err != nil {
		return nil, nil, fmt.Errorf("create conversation: %w", err)
	}
	if resp.IsError() {
		return nil, nil, apiErr.toError("create conversation", resp.StatusCode())
	}
	return out.Conversation, out.Messages, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	var out struct {
		Conversation *Conversation `json:"conversation"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/conversations/" + conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr.toError("get conversation", resp.StatusCode())
	}
	return out.Conversation, nil
}

func (c *Client) UpdateStatus(ctx context.Context, conversationID, userID, status string) (*Conversation, error) {
	var out struct {
		Conversation *Conversation `json:"conversation"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_id": userID, "status": status}).
		SetResult(&out).
		SetError(&apiErr).
		Patch("/v1/conversations/" + conversationID)
	if err != nil {
		return nil, fmt.Errorf("update conversation status: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr.toError("update conversation status", resp.StatusCode())
	}
	return out.Conversation, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID, userID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/conversations/" + conversationID + "/messages")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr.toError("list messages", resp.StatusCode())
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, userID, content, imageURL string) (*Message, error) {
	var out struct {
		Message *Message `json:"message"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_id": userID, "content": content, "image_url": imageURL}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/conversations/" + conversationID + "/messages")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr.toError("send message", resp.StatusCode())
	}
	return out.Message, nil
}

// MarkRead flags the conversation's support replies as read and returns how
// many were updated.
func (c *Client) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_id": userID}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/conversations/" + conversationID + "/read")
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if resp.IsError() {
		return 0, apiErr.toError("mark read", resp.StatusCode())
	}
	return out.Updated, nil
}

// Upload pushes an image attachment and returns its public URL for use in a
// subsequent SendMessage.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	var apiErr errorEnvelope

	resp, err := c.httpc.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/uploads")
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if resp.IsError() {
		return "", apiErr.toError("upload image", resp.StatusCode())
	}
	return out.URL, nil
}
