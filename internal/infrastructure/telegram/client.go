package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/infrastructure/metrics"
)

// Client talks to the Telegram Bot API on behalf of the support bridge.
// When the bot token or support group is not configured the client is
// inert: Configured reports false and every call fails fast.
type Client struct {
	httpClient  *resty.Client
	fileBaseURL string
	groupID     int64
	configured  bool
	logger      zerolog.Logger
}

// NewClient constructs the Bot API client from service configuration.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	base := strings.TrimSuffix(cfg.TelegramAPIBaseURL, "/")
	return &Client{
		httpClient: resty.New().
			SetBaseURL(base + "/bot" + cfg.TelegramBotToken).
			SetTimeout(cfg.RemoteFetchTimeout).
			SetHeader("Content-Type", "application/json"),
		fileBaseURL: base + "/file/bot" + cfg.TelegramBotToken,
		groupID:     cfg.SupportGroupID,
		configured:  cfg.TelegramConfigured(),
		logger:      logger.With().Str("component", "telegram").Logger(),
	}
}

// Configured reports whether the bridge has a bot token and group to
// relay through.
func (c *Client) Configured() bool {
	return c.configured
}

// IsSupportChat reports whether chatID is the configured support group.
func (c *Client) IsSupportChat(chatID int64) bool {
	return c.configured && chatID == c.groupID
}

// CreateTopic creates a forum topic in the support group and returns
// its thread ID.
func (c *Client) CreateTopic(ctx context.Context, name string) (int64, error) {
	payload := map[string]interface{}{
		"chat_id": c.groupID,
		"name":    name,
	}

	var result struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := c.call(ctx, "createForumTopic", payload, &result); err != nil {
		return 0, err
	}
	if result.MessageThreadID == 0 {
		return 0, fmt.Errorf("createForumTopic returned no thread id")
	}
	return result.MessageThreadID, nil
}

// SendMessageToTopic posts an HTML formatted message into the given
// forum topic and returns the Telegram message ID. The text must
// already be HTML escaped; senderLabel, when non-empty, is prefixed as
// a bold attribution line.
func (c *Client) SendMessageToTopic(ctx context.Context, threadID int64, html, senderLabel string) (int64, error) {
	text := html
	if senderLabel != "" {
		text = "<b>" + senderLabel + ":</b>\n" + html
	}
	payload := map[string]interface{}{
		"chat_id":           c.groupID,
		"message_thread_id": threadID,
		"text":              text,
		"parse_mode":        "HTML",
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		metrics.RecordRelayFailure()
		return 0, err
	}
	return result.MessageID, nil
}

// GetFilePath resolves a file_id into the server side path needed to
// download the file contents.
func (c *Client) GetFilePath(ctx context.Context, fileID string) (string, error) {
	payload := map[string]interface{}{
		"file_id": fileID,
	}

	var result struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", payload, &result); err != nil {
		return "", err
	}
	if result.FilePath == "" {
		return "", fmt.Errorf("getFile returned no file path")
	}
	return result.FilePath, nil
}

// DownloadFile fetches the raw bytes of a file previously resolved via
// GetFilePath.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.fileBaseURL + "/" + strings.TrimPrefix(filePath, "/"))
	if err != nil {
		return nil, fmt.Errorf("telegram download %s: %w", filePath, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("telegram download %s: status %s", filePath, resp.Status())
	}
	return resp.Body(), nil
}

// call performs a Bot API method call and decodes the result envelope.
func (c *Client) call(ctx context.Context, method string, payload, out interface{}) error {
	if !c.configured {
		return fmt.Errorf("telegram %s: bridge is not configured", method)
	}

	var envelope apiResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&envelope).
		SetError(&envelope).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !envelope.OK {
		if envelope.Description != "" {
			c.logger.Warn().
				Str("method", method).
				Int("error_code", envelope.ErrorCode).
				Str("description", envelope.Description).
				Msg("bot api call rejected")
			return fmt.Errorf("telegram %s: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
		}
		return fmt.Errorf("telegram %s: status %s", method, resp.Status())
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// apiResponse is the Bot API response envelope shared by every method.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}
