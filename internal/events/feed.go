// Package events publishes job outcome notifications to a message exchange so
// downstream systems can react without polling the result store. The feed is
// optional; when disabled the service runs exactly the same minus the
// notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/videoauto/mps-callback/internal/callback/domain"
)

// Routing keys for the outcome exchange.
const (
	RoutingKeyResultRecorded      = "result.recorded"
	RoutingKeyEnrichmentCompleted = "enrichment.completed"
	RoutingKeyEnrichmentAbandoned = "enrichment.abandoned"
)

// Publisher sends a message to the exchange with the given routing key.
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte) error
}

// Feed emits outcome events for recorded results and finished enrichments.
type Feed struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewFeed creates a Feed.
func NewFeed(publisher Publisher, logger *slog.Logger) *Feed {
	return &Feed{publisher: publisher, logger: logger}
}

type resultRecordedMessage struct {
	JobID             string    `json:"job_id"`
	Status            string    `json:"status"`
	MediaName         string    `json:"media_name,omitempty"`
	OutputURL         string    `json:"output_url,omitempty"`
	SourceSubtitleURL string    `json:"source_subtitle_url,omitempty"`
	RecordedAt        time.Time `json:"recorded_at"`
}

type enrichmentOutcomeMessage struct {
	JobID      string    `json:"job_id"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ResultRecorded publishes a notification that a job result was written.
func (f *Feed) ResultRecorded(ctx context.Context, result *domain.JobResult) error {
	msg := resultRecordedMessage{
		JobID:             result.JobID,
		Status:            string(result.Status),
		MediaName:         result.MediaName,
		OutputURL:         result.OutputURL,
		SourceSubtitleURL: result.SourceSubtitleURL,
		RecordedAt:        time.Now().UTC(),
	}
	return f.publish(ctx, RoutingKeyResultRecorded, msg)
}

// EnrichmentCompleted publishes a notification that a job's subtitle was
// translated and attached.
func (f *Feed) EnrichmentCompleted(ctx context.Context, jobID string) error {
	msg := enrichmentOutcomeMessage{
		JobID:      jobID,
		Outcome:    "completed",
		OccurredAt: time.Now().UTC(),
	}
	return f.publish(ctx, RoutingKeyEnrichmentCompleted, msg)
}

// EnrichmentAbandoned publishes a notification that enrichment gave up on a
// job, with the final error for manual replay.
func (f *Feed) EnrichmentAbandoned(ctx context.Context, jobID string, reason error) error {
	msg := enrichmentOutcomeMessage{
		JobID:      jobID,
		Outcome:    "abandoned",
		OccurredAt: time.Now().UTC(),
	}
	if reason != nil {
		msg.Reason = reason.Error()
	}
	return f.publish(ctx, RoutingKeyEnrichmentAbandoned, msg)
}

func (f *Feed) publish(ctx context.Context, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := f.publisher.PublishWithRetry(ctx, routingKey, body); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}

	f.logger.Debug("Outcome event published",
		slog.String("routing_key", routingKey),
	)
	return nil
}
