package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/storage"
	"jan-server/services/support-api/internal/interfaces/httpserver/responses"
)

// UploadHandler stores widget image uploads and serves locally hosted
// files back.
type UploadHandler struct {
	cfg    *config.Config
	images *support.ImageService
	store  support.Storage
	log    zerolog.Logger
}

func NewUploadHandler(cfg *config.Config, images *support.ImageService, store support.Storage, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		cfg:    cfg,
		images: images,
		store:  store,
		log:    log.With().Str("component", "upload-handler").Logger(),
	}
}

// Upload godoc
// @Summary      Upload an image
// @Description  Accepts a multipart image, re-hosts it on object storage, and returns the public URL.
// @Tags         uploads
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Image file"
// @Success      201   {object}  responses.UploadEnvelope
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      413   {object}  responses.ErrorResponse
// @Router       /v1/uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		responses.WriteError(c, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxImageBytes {
		responses.WriteError(c, http.StatusRequestEntityTooLarge, "image exceeds the upload size limit")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxImageBytes+1))
	if err != nil {
		responses.WriteError(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(data)) > h.cfg.MaxImageBytes {
		responses.WriteError(c, http.StatusRequestEntityTooLarge, "image exceeds the upload size limit")
		return
	}

	url, err := h.images.Store(c.Request.Context(), data)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", header.Filename).Msg("upload rejected")
		responses.WriteError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, responses.UploadEnvelope{URL: url})
}

// ServeFile answers GET /v1/files/*filepath for the local storage
// backend. With S3 configured the route simply has nothing to serve.
func (h *UploadHandler) ServeFile(c *gin.Context) {
	local, ok := h.store.(*storage.LocalStorage)
	if !ok || local.BasePath() == "" {
		responses.WriteError(c, http.StatusNotFound, "file not found")
		return
	}

	key := strings.TrimPrefix(c.Param("filepath"), "/")
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		responses.WriteError(c, http.StatusNotFound, "file not found")
		return
	}

	c.File(filepath.Join(local.BasePath(), filepath.FromSlash(clean)))
}
