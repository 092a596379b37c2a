// Package webhook turns inbound Telegram updates into persisted support
// replies. The platform redelivers updates it considers failed, so after
// authentication and parsing every path answers success toward Telegram
// and failures stay in our logs and metrics.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/metrics"
	"jan-server/services/support-api/internal/infrastructure/telegram"
)

// unlinkedTopicNotice is posted back into a topic no conversation is
// bound to, so agents learn their reply went nowhere.
const unlinkedTopicNotice = "No conversation is linked to this topic. Replies here will not reach a visitor."

var (
	// ErrSecretNotConfigured rejects every delivery until the shared
	// secret is set server-side.
	ErrSecretNotConfigured = errors.New("telegram webhook secret is not configured")
	// ErrBadSecret rejects deliveries whose secret header does not match.
	ErrBadSecret = errors.New("webhook secret mismatch")
	// ErrBadUpdate rejects payloads that do not parse as an update.
	ErrBadUpdate = errors.New("malformed update payload")
)

// Outcome classifies how an inbound update was handled.
type Outcome string

const (
	// OutcomeDelivered means a support reply was persisted and published.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeIgnored covers updates the bridge deliberately skips:
	// non-message updates, foreign chats, topicless and bot messages.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnlinked means the topic has no conversation bound to it.
	OutcomeUnlinked Outcome = "unlinked"
	// OutcomeEmpty means the message carried neither text nor image.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed means processing failed after the update was accepted.
	OutcomeFailed Outcome = "failed"
	// OutcomeRejected covers authentication and parse failures.
	OutcomeRejected Outcome = "rejected"
)

// ConversationStore is the slice of the support domain the processor
// writes through.
type ConversationStore interface {
	GetConversationByThreadID(ctx context.Context, threadID int64) (*support.Conversation, error)
	CreateSupportMessage(ctx context.Context, conv *support.Conversation, params support.SupportMessageParams) (*support.Message, error)
	SetMessageTelegramID(ctx context.Context, messageID uint, telegramMessageID int64) error
	PublishMessage(conversationPublicID string, msg *support.Message)
}

// BotGateway covers the Bot API surface the processor touches.
type BotGateway interface {
	IsSupportChat(chatID int64) bool
	SendMessageToTopic(ctx context.Context, threadID int64, html, senderLabel string) (int64, error)
	GetFilePath(ctx context.Context, fileID string) (string, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
}

// ImageStore re-hosts downloaded attachment bytes on our storage.
type ImageStore interface {
	Store(ctx context.Context, data []byte) (string, error)
}

// Processor handles one inbound update per call.
type Processor struct {
	secret string
	store  ConversationStore
	bot    BotGateway
	images ImageStore
	log    zerolog.Logger
}

// NewProcessor constructs the inbound update processor.
func NewProcessor(
	cfg *config.Config,
	store ConversationStore,
	bot BotGateway,
	images ImageStore,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		secret: cfg.WebhookSecret,
		store:  store,
		bot:    bot,
		images: images,
		log:    log.With().Str("component", "webhook-processor").Logger(),
	}
}

// Process authenticates, parses, and applies one Telegram update.
// Rejection errors (ErrSecretNotConfigured, ErrBadSecret, ErrBadUpdate)
// are the only ones the HTTP handler may translate into error statuses;
// everything later is reported through the outcome and still acked.
func (p *Processor) Process(ctx context.Context, secretToken string, body []byte) (Outcome, error) {
	if p.secret == "" {
		return OutcomeRejected, ErrSecretNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(secretToken), []byte(p.secret)) != 1 {
		return OutcomeRejected, ErrBadSecret
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrBadUpdate, err)
	}

	msg := update.Message
	switch {
	case msg == nil:
		return OutcomeIgnored, nil
	case !p.bot.IsSupportChat(msg.Chat.ID):
		p.log.Debug().Int64("chat_id", msg.Chat.ID).Msg("update from foreign chat ignored")
		return OutcomeIgnored, nil
	case msg.MessageThreadID == nil:
		// General-topic chatter in the support group.
		return OutcomeIgnored, nil
	case msg.From == nil || msg.From.IsBot:
		// Skipping bot-authored messages keeps our own relays from
		// echoing back into conversations.
		return OutcomeIgnored, nil
	}
	threadID := *msg.MessageThreadID

	conv, err := p.store.GetConversationByThreadID(ctx, threadID)
	if err != nil {
		if errors.Is(err, support.ErrConversationNotFound) {
			p.log.Warn().
				Int64("thread_id", threadID).
				Int64("update_id", update.UpdateID).
				Msg("no conversation linked to topic")
			p.notifyUnlinked(ctx, threadID)
			return OutcomeUnlinked, nil
		}
		return OutcomeFailed, fmt.Errorf("resolve conversation for thread %d: %w", threadID, err)
	}

	content := strings.TrimSpace(msg.TextContent())
	imageURL := p.rehostPhoto(ctx, msg)
	if content == "" && imageURL == "" {
		return OutcomeEmpty, nil
	}

	senderID := msg.From.ID
	stored, err := p.store.CreateSupportMessage(ctx, conv, support.SupportMessageParams{
		Content:          content,
		ImageURL:         imageURL,
		SenderName:       msg.From.DisplayName(),
		SenderTelegramID: &senderID,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("persist support message: %w", err)
	}

	if err := p.store.SetMessageTelegramID(ctx, stored.ID, msg.MessageID); err != nil {
		p.log.Warn().Err(err).Str("message_id", stored.PublicID).Msg("failed to attach telegram message id")
	} else {
		tgID := msg.MessageID
		stored.TelegramMessageID = &tgID
	}

	p.store.PublishMessage(conv.PublicID, stored)

	p.log.Info().
		Str("conversation_id", conv.PublicID).
		Str("message_id", stored.PublicID).
		Int64("thread_id", threadID).
		Msg("support reply delivered")
	return OutcomeDelivered, nil
}

// rehostPhoto downloads the largest variant of an attached photo and
// re-uploads it to our storage. Failures degrade to a text-only message.
func (p *Processor) rehostPhoto(ctx context.Context, msg *telegram.IncomingMessage) string {
	photo := msg.LargestPhoto()
	if photo == nil {
		return ""
	}

	start := time.Now()
	url, err := p.fetchAndStore(ctx, photo.FileID)
	if err != nil {
		metrics.RecordImageRehost("failed", time.Since(start).Seconds())
		p.log.Warn().Err(err).Str("file_id", photo.FileID).Msg("failed to re-host photo, continuing without image")
		return ""
	}
	metrics.RecordImageRehost("ok", time.Since(start).Seconds())
	return url
}

func (p *Processor) fetchAndStore(ctx context.Context, fileID string) (string, error) {
	path, err := p.bot.GetFilePath(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file path: %w", err)
	}
	data, err := p.bot.DownloadFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	return p.images.Store(ctx, data)
}

// notifyUnlinked posts the orphan-topic notice back into the thread.
// Best effort: a failed notice is logged and the update stays acked.
func (p *Processor) notifyUnlinked(ctx context.Context, threadID int64) {
	if _, err := p.bot.SendMessageToTopic(ctx, threadID, unlinkedTopicNotice, ""); err != nil {
		p.log.Warn().Err(err).Int64("thread_id", threadID).Msg("failed to post unlinked-topic notice")
	}
}
