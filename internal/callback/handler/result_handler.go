package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/videoauto/mps-callback/internal/callback/domain"
)

// jobResultResponse is the wire shape for a stored job result.
type jobResultResponse struct {
	JobID                 string    `json:"job_id"`
	Status                string    `json:"status"`
	MediaName             string    `json:"media_name,omitempty"`
	OutputURL             string    `json:"output_url,omitempty"`
	SourceSubtitleURL     string    `json:"source_subtitle_url,omitempty"`
	TranslatedSubtitleURL string    `json:"translated_subtitle_url,omitempty"`
	RequestedBy           string    `json:"requested_by,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// GetJobResult handles GET /api/v1/jobs/:job_id.
func (h *CallbackHandler) GetJobResult(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
		return
	}

	result, err := h.store.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job result not found"})
			return
		}
		h.logger.Error("Failed to load job result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job result"})
		return
	}

	c.JSON(http.StatusOK, jobResultResponse{
		JobID:                 result.JobID,
		Status:                string(result.Status),
		MediaName:             result.MediaName,
		OutputURL:             result.OutputURL,
		SourceSubtitleURL:     result.SourceSubtitleURL,
		TranslatedSubtitleURL: result.TranslatedSubtitleURL,
		RequestedBy:           result.RequestedBy,
		CreatedAt:             result.CreatedAt,
		UpdatedAt:             result.UpdatedAt,
	})
}
