package handlers

import (
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/realtime"
	"jan-server/services/support-api/internal/webhook"
)

// Provider wires HTTP handlers.
type Provider struct {
	Conversation *ConversationHandler
	Webhook      *WebhookHandler
	Upload       *UploadHandler
	Events       *EventsHandler
}

func NewProvider(
	cfg *config.Config,
	service *support.Service,
	images *support.ImageService,
	storage support.Storage,
	processor *webhook.Processor,
	hub *realtime.Hub,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Conversation: NewConversationHandler(service, log),
		Webhook:      NewWebhookHandler(processor, log),
		Upload:       NewUploadHandler(cfg, images, storage, log),
		Events:       NewEventsHandler(service, hub, log),
	}
}
