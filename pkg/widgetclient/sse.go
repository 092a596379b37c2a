package widgetclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	ssePrefixEvent   = "event: "
	ssePrefixData    = "data: "
	sseEventMessage  = "message"
	sseInitialBuffer = 16 * 1024
	sseMaxBuffer     = 1 << 20
)

// SSESubscriber consumes the conversation event stream and feeds insert
// events into the store. Each subscription runs its own goroutine that
// reconnects with exponential backoff until canceled.
type SSESubscriber struct {
	httpc          *resty.Client
	log            zerolog.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ Subscriber = (*SSESubscriber)(nil)

// NewSSESubscriber builds a subscriber against the service base URL. The
// underlying client carries no timeout: event streams are long-lived.
func NewSSESubscriber(baseURL string, log zerolog.Logger) *SSESubscriber {
	httpc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetDoNotParseResponse(true)

	return &SSESubscriber{
		httpc:          httpc,
		log:            log.With().Str("component", "support-sse").Logger(),
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
	}
}

// Subscribe starts streaming insert events for one conversation. The
// returned function cancels the subscription; it is safe to call more than
// once.
func (s *SSESubscriber) Subscribe(conversationID, userID string, onInsert func(Message)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go s.run(ctx, conversationID, userID, onInsert)
	return cancel
}

func (s *SSESubscriber) run(ctx context.Context, conversationID, userID string, onInsert func(Message)) {
	backoff := s.initialBackoff
	for {
		start := time.Now()
		err := s.stream(ctx, conversationID, userID, onInsert)
		if ctx.Err() != nil {
			return
		}
		// A connection that survived a while earns a fresh backoff.
		if time.Since(start) > s.maxBackoff {
			backoff = s.initialBackoff
		}

		s.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Dur("retry_in", backoff).
			Msg("event stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// stream holds one connection open and dispatches its frames. It returns
// when the server closes the stream or the context is canceled.
func (s *SSESubscriber) stream(ctx context.Context, conversationID, userID string, onInsert func(Message)) error {
	resp, err := s.httpc.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		Get("/v1/conversations/" + conversationID + "/events")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("subscribe: unexpected status %d", resp.StatusCode())
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, sseInitialBuffer), sseMaxBuffer)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			s.dispatch(event, data, onInsert)
			event, data = "", ""
		case strings.HasPrefix(line, ssePrefixEvent):
			event = strings.TrimSpace(strings.TrimPrefix(line, ssePrefixEvent))
		case strings.HasPrefix(line, ssePrefixData):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimPrefix(line, ssePrefixData)
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment, keepalive only.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}

func (s *SSESubscriber) dispatch(event, data string, onInsert func(Message)) {
	if event != sseEventMessage || data == "" {
		return
	}
	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		s.log.Warn().Err(err).Msg("dropping unparseable message event")
		return
	}
	if msg.ID == "" {
		return
	}
	onInsert(msg)
}
