package support

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/utils/idgen"
)

// Relay posts visitor messages into the support group on the bot platform.
type Relay interface {
	Configured() bool
	CreateTopic(ctx context.Context, name string) (int64, error)
	// SendMessageToTopic posts HTML-formatted text into the forum topic,
	// prefixed with the sender label when one is given.
	SendMessageToTopic(ctx context.Context, threadID int64, html, senderLabel string) (int64, error)
}

// EventPublisher fans a persisted message out to live widget streams.
type EventPublisher interface {
	PublishMessage(conversationPublicID string, message *Message)
}

// Service implements the support conversation workflows.
type Service struct {
	cfg           *config.Config
	conversations ConversationRepository
	messages      MessageRepository
	relay         Relay
	events        EventPublisher
	log           zerolog.Logger
}

func NewService(
	cfg *config.Config,
	conversations ConversationRepository,
	messages MessageRepository,
	relay Relay,
	events EventPublisher,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:           cfg,
		conversations: conversations,
		messages:      messages,
		relay:         relay,
		events:        events,
		log:           log.With().Str("component", "support-service").Logger(),
	}
}

// CreateConversation opens a new conversation for the visitor.
func (s *Service) CreateConversation(ctx context.Context, userID string, metadata map[string]string) (*Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	publicID, err := idgen.ConversationID()
	if err != nil {
		return nil, fmt.Errorf("generate conversation id: %w", err)
	}

	conv := &Conversation{
		PublicID: publicID,
		UserID:   userID,
		Status:   ConversationStatusOpen,
		Metadata: metadata,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.log.Info().Str("conversation_id", conv.PublicID).Str("user_id", userID).Msg("conversation created")
	return conv, nil
}

// GetConversation fetches one conversation by public ID.
func (s *Service) GetConversation(ctx context.Context, publicID string) (*Conversation, error) {
	return s.conversations.FindByPublicID(ctx, publicID)
}

// GetConversationByThreadID resolves a conversation from its forum topic.
func (s *Service) GetConversationByThreadID(ctx context.Context, threadID int64) (*Conversation, error) {
	return s.conversations.FindByThreadID(ctx, threadID)
}

// ListConversations returns the visitor's conversations, most recently
// active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.conversations.FindByFilter(ctx, ConversationFilter{UserID: &userID})
}

// UpdateStatus moves a conversation through its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, publicID string, status ConversationStatus) (*Conversation, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	conv, err := s.conversations.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if !conv.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, conv.Status, status)
	}
	conv.Status = status
	if err := s.conversations.Update(ctx, conv); err != nil {
		return nil, err
	}
	s.log.Info().Str("conversation_id", conv.PublicID).Str("status", string(status)).Msg("conversation status updated")
	return conv, nil
}

// SendUserMessage persists a visitor message, relays it into the support
// group topic, and publishes it to live streams. The message is stored before
// the relay runs so a Telegram outage never loses visitor input.
func (s *Service) SendUserMessage(ctx context.Context, conversationPublicID, content, imageURL string) (*Message, error) {
	conv, err := s.conversations.FindByPublicID(ctx, conversationPublicID)
	if err != nil {
		return nil, err
	}
	if conv.Status == ConversationStatusClosed {
		return nil, ErrConversationClosed
	}

	msg, err := s.persistMessage(ctx, conv, SenderUser, content, imageURL)
	if err != nil {
		return nil, err
	}

	if conv.Status == ConversationStatusResolved {
		conv.Status = ConversationStatusOpen
	}
	if err := s.touchConversation(ctx, conv, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Msg("failed to bump conversation activity")
	}

	s.relayUserMessage(ctx, conv, msg)

	if s.events != nil {
		s.events.PublishMessage(conv.PublicID, msg)
	}
	return msg, nil
}

// SupportMessageParams carries an inbound agent reply plus the sender
// metadata the platform attached to it.
type SupportMessageParams struct {
	Content          string
	ImageURL         string
	SenderName       string
	SenderTelegramID *int64
}

// CreateSupportMessage persists an agent reply arriving from the bridge.
// Publishing is left to the caller so the platform message id can be
// attached first.
func (s *Service) CreateSupportMessage(ctx context.Context, conv *Conversation, params SupportMessageParams) (*Message, error) {
	msg := &Message{
		ConversationID:       conv.ID,
		ConversationPublicID: conv.PublicID,
		Sender:               SenderSupport,
		SenderName:           strings.TrimSpace(params.SenderName),
		SenderTelegramID:     params.SenderTelegramID,
		Content:              strings.TrimSpace(params.Content),
		ImageURL:             strings.TrimSpace(params.ImageURL),
	}
	if err := s.createMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.touchConversation(ctx, conv, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Msg("failed to bump conversation activity")
	}
	return msg, nil
}

// SetMessageTelegramID records the platform message id on a stored message.
func (s *Service) SetMessageTelegramID(ctx context.Context, messageID uint, telegramMessageID int64) error {
	return s.messages.SetTelegramMessageID(ctx, messageID, telegramMessageID)
}

// PublishMessage forwards a message to live widget streams.
func (s *Service) PublishMessage(conversationPublicID string, msg *Message) {
	if s.events != nil {
		s.events.PublishMessage(conversationPublicID, msg)
	}
}

// ListMessages returns a conversation's messages oldest first.
func (s *Service) ListMessages(ctx context.Context, conversationPublicID string) ([]*Message, error) {
	conv, err := s.conversations.FindByPublicID(ctx, conversationPublicID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		m.ConversationPublicID = conv.PublicID
	}
	return msgs, nil
}

// MarkMessagesRead flags every unread support reply in the conversation as
// read. Called when the visitor opens the widget on the conversation.
func (s *Service) MarkMessagesRead(ctx context.Context, conversationPublicID string) (int64, error) {
	conv, err := s.conversations.FindByPublicID(ctx, conversationPublicID)
	if err != nil {
		return 0, err
	}
	return s.messages.MarkSupportMessagesRead(ctx, conv.ID, time.Now().UTC())
}

// CloseStaleResolved closes resolved conversations that have seen no activity
// for the given window. Used by the retention sweeper.
func (s *Service) CloseStaleResolved(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	closed, err := s.conversations.CloseResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.log.Info().Int64("count", closed).Time("cutoff", cutoff).Msg("closed stale resolved conversations")
	}
	return closed, nil
}

func (s *Service) persistMessage(ctx context.Context, conv *Conversation, sender SenderType, content, imageURL string) (*Message, error) {
	msg := &Message{
		ConversationID:       conv.ID,
		ConversationPublicID: conv.PublicID,
		Sender:               sender,
		Content:              strings.TrimSpace(content),
		ImageURL:             strings.TrimSpace(imageURL),
	}
	if err := s.createMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) createMessage(ctx context.Context, msg *Message) error {
	if msg.Empty() {
		return ErrEmptyMessage
	}

	publicID, err := idgen.MessageID()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	msg.PublicID = publicID

	// A visitor has trivially read their own message; support replies start
	// unread until the widget reports them seen.
	if msg.Sender == SenderUser {
		msg.Read = true
		now := time.Now().UTC()
		msg.ReadAt = &now
	}

	return s.messages.Create(ctx, msg)
}

func (s *Service) touchConversation(ctx context.Context, conv *Conversation, at time.Time) error {
	conv.LastMessageAt = &at
	return s.conversations.Update(ctx, conv)
}

// relayUserMessage pushes the visitor message into the support group topic,
// creating and binding the topic on first contact. Relay failures are logged
// and never fail the send.
func (s *Service) relayUserMessage(ctx context.Context, conv *Conversation, msg *Message) {
	if s.relay == nil || !s.relay.Configured() {
		return
	}

	threadID, err := s.ensureThread(ctx, conv)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Msg("failed to resolve support topic, message not relayed")
		return
	}

	text := html.EscapeString(msg.Content)
	if msg.ImageURL != "" {
		if text != "" {
			text += "\n"
		}
		text += html.EscapeString(msg.ImageURL)
	}

	tgID, err := s.relay.SendMessageToTopic(ctx, threadID, text, "Visitor")
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Int64("thread_id", threadID).Msg("failed to relay message to support group")
		return
	}
	if err := s.messages.SetTelegramMessageID(ctx, msg.ID, tgID); err != nil {
		s.log.Warn().Err(err).Str("message_id", msg.PublicID).Msg("failed to attach telegram message id")
		return
	}
	msg.TelegramMessageID = &tgID
}

func (s *Service) ensureThread(ctx context.Context, conv *Conversation) (int64, error) {
	if conv.ThreadID != nil {
		return *conv.ThreadID, nil
	}

	threadID, err := s.relay.CreateTopic(ctx, fmt.Sprintf("Support %s", conv.PublicID))
	if err != nil {
		return 0, fmt.Errorf("create forum topic: %w", err)
	}

	if err := s.conversations.BindThread(ctx, conv.ID, threadID); err != nil {
		// A concurrent send may have bound a topic first; fall back to it.
		fresh, findErr := s.conversations.FindByPublicID(ctx, conv.PublicID)
		if findErr == nil && fresh.ThreadID != nil {
			conv.ThreadID = fresh.ThreadID
			return *fresh.ThreadID, nil
		}
		return 0, err
	}
	conv.ThreadID = &threadID
	return threadID, nil
}
