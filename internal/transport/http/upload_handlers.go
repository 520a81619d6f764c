package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/blob"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
)

// UploadHandlers accepts image and video uploads.
type UploadHandlers struct {
	blobs    *blob.DirStore
	maxBytes int64
	log      *zerolog.Logger
}

// NewUploadHandlers creates a new upload handlers instance.
func NewUploadHandlers(blobs *blob.DirStore, maxBytes int64, logger *zerolog.Logger) *UploadHandlers {
	return &UploadHandlers{blobs: blobs, maxBytes: maxBytes, log: logger}
}

// UploadResponse tells the client what to put in file_url and file_type.
type UploadResponse struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Upload stores the multipart field "file".
// POST /api/upload
func (h *UploadHandlers) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, core.ErrCodeValidation, "file too large")
			return
		}
		h.log.Debug().Err(err).Msg("invalid upload request")
		abortWithError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "cannot read file")
		return
	}
	defer file.Close()

	url, kind, err := h.blobs.Save(c.Request.Context(), header.Filename, file)
	if err != nil {
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("file", header.Filename).Msg("failed to store upload")
		}
		abortWithError(c, status, code, messageFor(code, err))
		return
	}

	c.JSON(http.StatusOK, UploadResponse{URL: url, Kind: string(kind)})
}
