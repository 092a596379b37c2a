package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/domain/support"
)

// subscriberBuffer is the per-subscriber channel depth. Slow consumers
// past this depth lose events rather than stalling the publisher.
const subscriberBuffer = 16

// EventTypeMessage announces a newly persisted message.
const EventTypeMessage = "message"

// Event is the payload fanned out to subscribers of a conversation.
type Event struct {
	Type    string           `json:"type"`
	Message *support.Message `json:"message,omitempty"`
}

var _ support.EventPublisher = (*Hub)(nil)

// Hub is an in-process fan-out of conversation events to SSE
// subscribers. Subscriptions are scoped to a single conversation; the
// hub never blocks a publisher on a slow consumer.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	closed bool
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger.With().Str("component", "realtime-hub").Logger(),
	}
}

// Subscribe registers a subscriber for one conversation and returns the
// event channel plus a cancel func. Cancel is idempotent and must be
// called when the consumer goes away; the channel is closed by the hub.
func (h *Hub) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[conversationID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[conversationID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, conversationID)
				}
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// PublishMessage fans a persisted message out to the conversation's
// subscribers.
func (h *Hub) PublishMessage(conversationID string, msg *support.Message) {
	h.Publish(conversationID, Event{Type: EventTypeMessage, Message: msg})
}

// Publish delivers an event to every subscriber of the conversation.
// Events to subscribers with a full buffer are dropped.
func (h *Hub) Publish(conversationID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subs[conversationID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn().
				Str("conversation_id", conversationID).
				Str("event_type", event.Type).
				Msg("dropping event for slow subscriber")
		}
	}
}

// SubscriberCount reports how many subscribers a conversation has.
func (h *Hub) SubscriberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// Close shuts the hub down and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for ch := range set {
			close(ch)
		}
	}
	h.subs = make(map[string]map[chan Event]struct{})
}
