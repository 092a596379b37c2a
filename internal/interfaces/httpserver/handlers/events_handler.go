package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/metrics"
	"jan-server/services/support-api/internal/infrastructure/realtime"
	"jan-server/services/support-api/internal/interfaces/httpserver/responses"
)

// heartbeatInterval keeps proxies from reaping idle SSE connections.
const heartbeatInterval = 15 * time.Second

// EventsHandler streams conversation insert events to widget clients.
type EventsHandler struct {
	service *support.Service
	hub     *realtime.Hub
	log     zerolog.Logger
}

func NewEventsHandler(service *support.Service, hub *realtime.Hub, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		service: service,
		hub:     hub,
		log:     log.With().Str("component", "events-handler").Logger(),
	}
}

// Stream godoc
// @Summary      Conversation event stream
// @Description  Server-sent events for one conversation: `event: message` frames with the persisted message as JSON data, heartbeat comments every 15s.
// @Tags         events
// @Produce      text/event-stream
// @Param        id       path      string  true  "Conversation id"
// @Param        user_id  query     string  true  "Visitor id"
// @Success      200  {string}  string  "SSE stream"
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/conversations/{id}/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		responses.WriteError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	conv, err := h.service.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "conversation not found")
		return
	}
	if conv.UserID != userID {
		responses.WriteError(c, http.StatusNotFound, "conversation not found")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, cancel := h.hub.Subscribe(conv.PublicID)
	defer cancel()

	metrics.SubscriberConnected()
	defer metrics.SubscriberDisconnected()

	h.log.Debug().Str("conversation_id", conv.PublicID).Msg("event stream opened")
	defer h.log.Debug().Str("conversation_id", conv.PublicID).Msg("event stream closed")

	// Tell the client the stream is live before any message arrives.
	writeSSE(c.Writer, "connected", gin.H{"conversation_id": conv.PublicID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				// Hub shut down.
				return
			}
			if event.Type == realtime.EventTypeMessage && event.Message != nil {
				writeSSE(c.Writer, event.Type, event.Message)
			} else {
				writeSSE(c.Writer, event.Type, event)
			}
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event frame.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
