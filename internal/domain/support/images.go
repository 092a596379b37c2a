package support

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/utils/imageid"
)

// Storage is the object store the service re-hosts images into.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
	Health(ctx context.Context) error
}

// ImageService stores image bytes and hands back a public URL. Both the
// widget upload endpoint and the inbound bridge re-host through it so every
// image a conversation references lives on our storage.
type ImageService struct {
	cfg     *config.Config
	storage Storage
	log     zerolog.Logger
}

func NewImageService(cfg *config.Config, storage Storage, log zerolog.Logger) *ImageService {
	return &ImageService{
		cfg:     cfg,
		storage: storage,
		log:     log.With().Str("component", "image-service").Logger(),
	}
}

// Store uploads the image and returns its public URL.
func (s *ImageService) Store(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return "", fmt.Errorf("image exceeds the %d byte limit", s.cfg.MaxImageBytes)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("unsupported content type %s", mtype.String())
	}

	key := imageid.Key(mtype.Extension())
	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), mtype.String()); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	s.log.Debug().Str("key", key).Int("bytes", len(data)).Str("mime", mtype.String()).Msg("image stored")
	return s.storage.PublicURL(key), nil
}
