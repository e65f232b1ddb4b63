package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/videoauto/mps-callback/internal/callback/dispatch"
	"github.com/videoauto/mps-callback/internal/callback/domain"
	"github.com/videoauto/mps-callback/internal/callback/event"
)

// HandleCallback handles POST /api/v1/mps/callback.
//
// The sender has no safe redelivery semantics, so everything past the
// transport-level JSON decode is acknowledged with 200: unrecognized event
// categories, malformed category payloads, and even a failed initial store
// write are logged and acked rather than bounced back upstream.
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	var note event.Notification
	if err := c.ShouldBindJSON(&note); err != nil {
		h.logger.Error("Invalid callback body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.normalizer.Normalize(&note)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			h.logger.Error("Malformed notification acknowledged",
				slog.String("event_type", note.EventType),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
			return
		}
		h.logger.Error("Failed to normalize notification", slog.String("error", err.Error()))
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}
	if result == nil {
		h.logger.Info("Ignored notification", slog.String("event_type", note.EventType))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	// The initial write is the only synchronous store touch on this path.
	// Its failure must not block the acknowledgement.
	if err := h.store.Upsert(c.Request.Context(), result); err != nil {
		h.logger.Error("Failed to store job result",
			slog.String("job_id", result.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged", "job_id": result.JobID})
		return
	}

	if h.events != nil {
		if err := h.events.ResultRecorded(c.Request.Context(), result); err != nil {
			h.logger.Warn("Failed to publish record event",
				slog.String("job_id", result.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Submission happens strictly after the synchronous upsert attempt, so
	// the initial write is ordered before any enrichment patch for this job.
	if result.QualifiesForEnrichment() {
		h.dispatcher.Submit(dispatch.Task{
			JobID:             result.JobID,
			SourceSubtitleURL: result.SourceSubtitleURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed", "job_id": result.JobID})
}
