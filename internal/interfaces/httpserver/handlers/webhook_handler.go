package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/infrastructure/metrics"
	"jan-server/services/support-api/internal/infrastructure/telegram"
	"jan-server/services/support-api/internal/interfaces/httpserver/responses"
	"jan-server/services/support-api/internal/webhook"
)

// maxUpdateBytes caps the webhook request body. Telegram updates are
// small; anything past this is junk.
const maxUpdateBytes = 1 << 20

// WebhookHandler receives Telegram webhook deliveries.
type WebhookHandler struct {
	processor *webhook.Processor
	log       zerolog.Logger
}

func NewWebhookHandler(processor *webhook.Processor, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		log:       log.With().Str("component", "webhook-handler").Logger(),
	}
}

// HandleTelegram godoc
// @Summary      Telegram webhook
// @Description  Processes one Bot API update. Always acknowledges after authentication and parsing so Telegram does not redeliver.
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  responses.AckEnvelope
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      401  {object}  responses.ErrorResponse
// @Failure      500  {object}  responses.ErrorResponse
// @Router       /v1/webhook/telegram [post]
func (h *WebhookHandler) HandleTelegram(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxUpdateBytes))
	if err != nil {
		metrics.RecordWebhookUpdate(string(webhook.OutcomeRejected))
		responses.WriteError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	secret := c.GetHeader(telegram.SecretTokenHeader)
	outcome, err := h.processor.Process(c.Request.Context(), secret, body)
	metrics.RecordWebhookUpdate(string(outcome))

	switch {
	case errors.Is(err, webhook.ErrSecretNotConfigured):
		h.log.Error().Msg("webhook delivery received but no secret is configured")
		responses.WriteError(c, http.StatusInternalServerError, "webhook is not configured")
	case errors.Is(err, webhook.ErrBadSecret):
		responses.WriteError(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, webhook.ErrBadUpdate):
		responses.WriteError(c, http.StatusBadRequest, "malformed update payload")
	default:
		// Authenticated and parseable: always acknowledge, even when
		// processing failed, so the platform does not redeliver.
		if err != nil {
			h.log.Error().Err(err).Str("outcome", string(outcome)).Msg("update processing failed")
		}
		c.JSON(http.StatusOK, responses.AckEnvelope{OK: true})
	}
}
