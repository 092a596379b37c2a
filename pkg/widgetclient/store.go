package widgetclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultGracePeriod is how long a confirmed placeholder waits for its
// realtime copy before being stripped.
const DefaultGracePeriod = 5 * time.Second

// placeholderPrefix namespaces local ids so they can never collide with
// server-issued msg_* ids.
const placeholderPrefix = "tmp_"

var (
	// ErrConversationInactive rejects sends into resolved or closed
	// conversations before any network call is made.
	ErrConversationInactive = errors.New("conversation no longer accepts messages")
	// ErrEmptyMessage rejects sends with neither text nor image.
	ErrEmptyMessage = errors.New("message needs text or an image")

	errClosed = errors.New("widget store is closed")
)

// API is the HTTP surface the store drives. *Client implements it.
type API interface {
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	CreateConversation(ctx context.Context, params CreateConversationParams) (*Conversation, []Message, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*Conversation, error)
	UpdateStatus(ctx context.Context, conversationID, userID, status string) (*Conversation, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]Message, error)
	SendMessage(ctx context.Context, conversationID, userID, content, imageURL string) (*Message, error)
}

// Subscriber opens realtime insert streams. *SSESubscriber implements it.
type Subscriber interface {
	Subscribe(conversationID, userID string, onInsert func(Message)) func()
}

// Cache is the device-local persistence surface. *FileCache implements it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Config assembles a Store.
type Config struct {
	API        API
	Subscriber Subscriber // optional; nil disables realtime
	Cache      Cache
	Logger     zerolog.Logger
	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
}

// pendingSend tracks one optimistic message through reconciliation.
type pendingSend struct {
	localID        string
	conversationID string
	serverID       string
	content        string
	timer          *time.Timer
}

// Store is the widget's single source of truth. All state sits behind one
// mutex; the realtime subscriber and grace timers call in from their own
// goroutines.
type Store struct {
	api   API
	sub   Subscriber
	cache Cache
	log   zerolog.Logger
	grace time.Duration

	// userID is the durable anonymous visitor id, fixed at construction.
	userID string

	mu            sync.Mutex
	open          bool
	unread        int
	loading       bool
	sending       bool
	lastErr       string
	conversations []Conversation
	current       *Conversation
	messages      []Message
	placeholders  map[string]*pendingSend
	seen          map[string]struct{}
	unsubscribe   func()
	closed        bool
}

// NewStore loads (or mints) the visitor identity and returns a ready store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("widgetclient: API is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("widgetclient: Cache is required")
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	s := &Store{
		api:          cfg.API,
		sub:          cfg.Subscriber,
		cache:        cfg.Cache,
		log:          cfg.Logger.With().Str("component", "widget-store").Logger(),
		grace:        grace,
		placeholders: make(map[string]*pendingSend),
		seen:         make(map[string]struct{}),
	}
	s.userID = s.loadIdentity()
	return s, nil
}

// loadIdentity returns the durable anonymous visitor id, minting and
// persisting one on first run.
func (s *Store) loadIdentity() string {
	if raw, ok := s.cache.Get(anonymousIDKey); ok {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if err := s.cache.Set(anonymousIDKey, []byte(id)); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist anonymous id")
	}
	return id
}

// UserID returns the anonymous visitor id.
func (s *Store) UserID() string { return s.userID }

// LastConversationID returns the conversation the visitor had selected in a
// previous session, if any.
func (s *Store) LastConversationID() string {
	raw, ok := s.cache.Get(currentConversationKey)
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// LastError returns the message for the inline error banner, empty when
// there is nothing to show.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = ""
}

// Conversations returns a copy of the conversation list, newest first.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Conversation(nil), s.conversations...)
}

// CurrentConversation returns a copy of the selected conversation, or nil.
func (s *Store) CurrentConversation() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Messages returns a copy of the visible message list, oldest first.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Open shows the widget: the unread badge resets and any stale error is
// dismissed.
func (s *Store) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.unread = 0
	s.lastErr = ""
}

// CloseWidget hides the widget without touching conversation state. Support
// replies arriving while hidden count toward the unread badge.
func (s *Store) CloseWidget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// LoadConversations replaces the conversation list with the server's. On
// failure the previous list stays untouched.
func (s *Store) LoadConversations(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	s.loading = true
	s.mu.Unlock()

	conversations, err := s.api.ListConversations(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		return err
	}
	s.conversations = conversations
	s.lastErr = ""
	return nil
}

// CreateConversation opens a fresh conversation, optionally seeded with a
// first message, adopts it as current and subscribes to its stream. On
// failure no state changes.
func (s *Store) CreateConversation(ctx context.Context, initialText string) (*Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed
	}
	s.mu.Unlock()

	conv, messages, err := s.api.CreateConversation(ctx, CreateConversationParams{
		UserID:  s.userID,
		Message: initialText,
	})
	if err == nil && conv == nil {
		err = fmt.Errorf("create conversation: empty response")
	}
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append([]Conversation{*conv}, s.conversations...)
	s.adoptLocked(*conv, messages)
	s.lastErr = ""
	cp := *conv
	return &cp, nil
}

// SelectConversation makes the conversation current: any previous stream is
// torn down first, cached messages paint immediately, the authoritative
// list is fetched behind them, and the realtime stream is (re)subscribed.
// An empty id deselects and leaves no dangling subscription.
func (s *Store) SelectConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.setSubscriptionLocked(nil)
		s.current = nil
		s.messages = nil
		s.seen = make(map[string]struct{})
		if err := s.cache.Delete(currentConversationKey); err != nil {
			s.log.Warn().Err(err).Msg("failed to drop current conversation key")
		}
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	s.setSubscriptionLocked(nil)
	conv := s.findConversationLocked(conversationID)
	s.mu.Unlock()

	if conv == nil {
		fetched, err := s.api.GetConversation(ctx, conversationID, s.userID)
		if err == nil && fetched == nil {
			err = fmt.Errorf("get conversation: empty response")
		}
		if err != nil {
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()
			return err
		}
		conv = fetched
	}

	s.mu.Lock()
	cur := *conv
	s.current = &cur
	s.messages = nil
	s.seen = make(map[string]struct{})
	if s.open {
		s.unread = 0
	}
	if err := s.cache.Set(currentConversationKey, []byte(cur.ID)); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist current conversation id")
	}
	// Instant paint from the device cache while the fetch runs.
	s.hydrateFromCacheLocked(cur.ID)
	s.mu.Unlock()

	// Authoritative overwrite; on failure the hydrated list stays visible.
	err := s.LoadMessages(ctx)

	s.mu.Lock()
	if !s.closed && s.current != nil && s.current.ID == conversationID {
		s.subscribeLocked(conversationID)
	}
	s.mu.Unlock()
	return err
}

// LoadMessages replaces the current conversation's message list with the
// server's copy. A non-empty result refreshes the device cache; an empty
// result never erases a previously cached list.
func (s *Store) LoadMessages(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.current == nil {
		s.mu.Unlock()
		return nil
	}
	conversationID := s.current.ID
	s.loading = true
	s.mu.Unlock()

	messages, err := s.api.ListMessages(ctx, conversationID, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		return err
	}
	if s.current == nil || s.current.ID != conversationID {
		// Switched away mid-flight; the result is stale.
		return nil
	}

	s.messages = messages
	s.seen = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if !m.Placeholder() {
			s.seen[m.ID] = struct{}{}
		}
	}
	s.lastErr = ""
	if len(messages) > 0 {
		s.cacheMessagesLocked()
	}
	return nil
}

// UpdateStatus PATCHes the current conversation's status and adopts the
// server's returned record. Without a current conversation it is a no-op.
func (s *Store) UpdateStatus(ctx context.Context, status string) error {
	s.mu.Lock()
	if s.closed || s.current == nil {
		s.mu.Unlock()
		s.log.Debug().Str("status", status).Msg("status update without a current conversation, dropping")
		return nil
	}
	conversationID := s.current.ID
	s.mu.Unlock()

	updated, err := s.api.UpdateStatus(ctx, conversationID, s.userID, status)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	if updated == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.ID == updated.ID {
		cp := *updated
		s.current = &cp
	}
	for i := range s.conversations {
		if s.conversations[i].ID == updated.ID {
			s.conversations[i] = *updated
			break
		}
	}
	s.lastErr = ""
	return nil
}

// SendMessage appends an optimistic placeholder, posts to the server, and
// leaves final reconciliation to HandleRealtimeInsert. On failure the
// placeholder rolls back immediately; on success it survives under a
// cancelable grace timer until the realtime copy supersedes it.
func (s *Store) SendMessage(ctx context.Context, content, imageURL string) error {
	content = strings.TrimSpace(content)
	imageURL = strings.TrimSpace(imageURL)

	s.mu.Lock()
	if s.closed || s.current == nil || s.userID == "" {
		s.mu.Unlock()
		s.log.Debug().Msg("send without a current conversation, dropping")
		return nil
	}
	if !s.current.Active() {
		s.lastErr = ErrConversationInactive.Error()
		s.mu.Unlock()
		return ErrConversationInactive
	}
	if content == "" && imageURL == "" {
		s.lastErr = ErrEmptyMessage.Error()
		s.mu.Unlock()
		return ErrEmptyMessage
	}

	conversationID := s.current.ID
	localID := placeholderPrefix + uuid.NewString()
	s.messages = append(s.messages, Message{
		ID:             localID,
		ConversationID: conversationID,
		Sender:         SenderUser,
		Content:        content,
		ImageURL:       imageURL,
		Read:           true,
		CreatedAt:      time.Now().UTC(),
		Delivery:       DeliveryPending,
	})
	s.placeholders[localID] = &pendingSend{
		localID:        localID,
		conversationID: conversationID,
		content:        content,
	}
	s.sending = true
	s.cacheMessagesLocked()
	s.mu.Unlock()

	sent, err := s.api.SendMessage(ctx, conversationID, s.userID, content, imageURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false

	if err != nil {
		// Roll the placeholder back; retry is the visitor's call.
		s.dropPlaceholderLocked(localID)
		s.lastErr = err.Error()
		return err
	}
	s.lastErr = ""
	if sent == nil {
		s.dropPlaceholderLocked(localID)
		return nil
	}

	pending, ok := s.placeholders[localID]
	if !ok {
		// The realtime insert won the race and already replaced it.
		return nil
	}
	pending.serverID = sent.ID
	if i := s.messageIndexLocked(localID); i >= 0 {
		s.messages[i].Delivery = DeliveryConfirmed
	}
	// If the stream never echoes the message back, strip the placeholder
	// after the grace period instead of leaving it dangling.
	pending.timer = time.AfterFunc(s.grace, func() { s.expirePlaceholder(localID) })
	s.cacheMessagesLocked()
	return nil
}

// HandleRealtimeInsert folds one realtime insert into local state. Events
// are deduplicated by server id; an insert matching an in-flight optimistic
// send cancels its grace timer and supersedes the placeholder, with the
// authoritative message appended at the tail regardless of where the
// placeholder sat.
func (s *Store) HandleRealtimeInsert(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || msg.ID == "" {
		return
	}

	if s.current == nil || s.current.ID != msg.ConversationID {
		// Not the visible conversation; only the badge moves.
		if msg.Sender == SenderSupport {
			s.unread++
		}
		return
	}

	if _, dup := s.seen[msg.ID]; dup {
		return
	}

	if pending := s.matchPlaceholderLocked(msg); pending != nil {
		if pending.timer != nil {
			pending.timer.Stop()
		}
		delete(s.placeholders, pending.localID)
		if i := s.messageIndexLocked(pending.localID); i >= 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
	}

	msg.Delivery = ""
	s.messages = append(s.messages, msg)
	s.seen[msg.ID] = struct{}{}

	if msg.Sender == SenderSupport && !s.open {
		s.unread++
	}
	s.cacheMessagesLocked()
}

// Close tears the store down: the subscription is closed, every grace timer
// is canceled, and the visible message list is flushed to the cache.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.setSubscriptionLocked(nil)
	for _, pending := range s.placeholders {
		if pending.timer != nil {
			pending.timer.Stop()
		}
	}
	s.placeholders = make(map[string]*pendingSend)
	if s.current != nil {
		s.cacheMessagesLocked()
	}
}

// setSubscriptionLocked is the only place the subscription slot changes:
// the previous stream always closes before a new one is installed, so at
// most one is live process-wide.
func (s *Store) setSubscriptionLocked(unsubscribe func()) {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.unsubscribe = unsubscribe
}

func (s *Store) subscribeLocked(conversationID string) {
	if s.sub == nil {
		return
	}
	s.setSubscriptionLocked(s.sub.Subscribe(conversationID, s.userID, s.HandleRealtimeInsert))
}

// adoptLocked installs a conversation and its message set as current state.
func (s *Store) adoptLocked(conv Conversation, messages []Message) {
	s.current = &conv
	s.messages = messages
	s.seen = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if !m.Placeholder() {
			s.seen[m.ID] = struct{}{}
		}
	}
	if s.open {
		s.unread = 0
	}
	if err := s.cache.Set(currentConversationKey, []byte(conv.ID)); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist current conversation id")
	}
	if len(messages) > 0 {
		s.cacheMessagesLocked()
	}
	s.subscribeLocked(conv.ID)
}

// hydrateFromCacheLocked paints the cached message list for the
// conversation, when one exists.
func (s *Store) hydrateFromCacheLocked(conversationID string) {
	raw, ok := s.cache.Get(MessagesKey(conversationID))
	if !ok {
		return
	}
	var cached []Message
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("dropping corrupt message cache")
		return
	}
	s.messages = cached
	s.seen = make(map[string]struct{}, len(cached))
	for _, m := range cached {
		if !m.Placeholder() {
			s.seen[m.ID] = struct{}{}
		}
	}
}

// expirePlaceholder removes a placeholder whose realtime copy never
// arrived. Keyed by local id, so firing after the placeholder is gone or
// the conversation switched away is a safe no-op.
func (s *Store) expirePlaceholder(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.placeholders[localID]; !ok {
		return
	}
	delete(s.placeholders, localID)
	if i := s.messageIndexLocked(localID); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		s.cacheMessagesLocked()
	}
}

// dropPlaceholderLocked removes a placeholder and its tracking entry.
func (s *Store) dropPlaceholderLocked(localID string) {
	if pending, ok := s.placeholders[localID]; ok {
		if pending.timer != nil {
			pending.timer.Stop()
		}
		delete(s.placeholders, localID)
	}
	if i := s.messageIndexLocked(localID); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		s.cacheMessagesLocked()
	}
}

// matchPlaceholderLocked correlates an insert with a pending send: by the
// server id once the POST has resolved, otherwise by content for a
// user-authored echo that beat its own HTTP response. Correlation is scoped
// to the insert's conversation.
func (s *Store) matchPlaceholderLocked(msg Message) *pendingSend {
	for _, pending := range s.placeholders {
		if pending.conversationID == msg.ConversationID && pending.serverID == msg.ID {
			return pending
		}
	}
	if msg.Sender != SenderUser {
		return nil
	}
	// Oldest unresolved placeholder with the same content wins.
	var best *pendingSend
	bestIdx := -1
	for _, pending := range s.placeholders {
		if pending.conversationID != msg.ConversationID || pending.serverID != "" || pending.content != msg.Content {
			continue
		}
		if i := s.messageIndexLocked(pending.localID); i >= 0 && (bestIdx == -1 || i < bestIdx) {
			best, bestIdx = pending, i
		}
	}
	return best
}

func (s *Store) messageIndexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findConversationLocked(id string) *Conversation {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			cp := s.conversations[i]
			return &cp
		}
	}
	return nil
}

// cacheMessagesLocked mirrors the in-memory list into the device cache. An
// empty list after a local mutation deletes the entry; server loads never
// reach here with an empty list.
func (s *Store) cacheMessagesLocked() {
	if s.current == nil {
		return
	}
	key := MessagesKey(s.current.ID)
	if len(s.messages) == 0 {
		if err := s.cache.Delete(key); err != nil {
			s.log.Warn().Err(err).Msg("failed to drop message cache")
		}
		return
	}
	data, err := json.Marshal(s.messages)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode message cache")
		return
	}
	if err := s.cache.Set(key, data); err != nil {
		s.log.Warn().Err(err).Msg("failed to write message cache")
	}
}
