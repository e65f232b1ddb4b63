package handler

import (
	"context"
	"log/slog"

	"github.com/videoauto/mps-callback/internal/callback/dispatch"
	"github.com/videoauto/mps-callback/internal/callback/domain"
	"github.com/videoauto/mps-callback/internal/callback/event"
)

// ResultStore is the slice of the store gateway the endpoints need.
type ResultStore interface {
	Upsert(ctx context.Context, result *domain.JobResult) error
	GetByJobID(ctx context.Context, jobID string) (*domain.JobResult, error)
}

// Submitter accepts enrichment tasks for asynchronous execution.
type Submitter interface {
	Submit(task dispatch.Task)
}

// RecordSink optionally receives an event whenever a job result is recorded.
type RecordSink interface {
	ResultRecorded(ctx context.Context, result *domain.JobResult) error
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger     *slog.Logger
	Normalizer *event.Normalizer
	Store      ResultStore
	Dispatcher Submitter
	Events     RecordSink // optional
}

// CallbackHandler handles pipeline notification requests.
type CallbackHandler struct {
	logger     *slog.Logger
	normalizer *event.Normalizer
	store      ResultStore
	dispatcher Submitter
	events     RecordSink
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(deps *Dependencies) *CallbackHandler {
	return &CallbackHandler{
		logger:     deps.Logger,
		normalizer: deps.Normalizer,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
	}
}
