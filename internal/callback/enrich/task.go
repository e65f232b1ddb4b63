// Package enrich runs the subtitle enrichment pipeline for one job: fetch the
// source subtitle, translate its text spans, publish the translated artifact
// and patch the stored job record with the published URL.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/videoauto/mps-callback/internal/callback/domain"
	"github.com/videoauto/mps-callback/internal/subtitle"
)

// Fetcher downloads the source subtitle artifact.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Translator translates a [LINE_n]-marked subtitle document.
type Translator interface {
	Translate(ctx context.Context, markedText string) (string, error)
}

// Publisher uploads the translated artifact by key and returns its stable
// public URL.
type Publisher interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

// ResultStore patches the stored job record.
type ResultStore interface {
	PatchTranslation(ctx context.Context, jobID, translatedURL string) error
}

// Runner executes enrichment tasks. Each step short-circuits the rest on
// failure; only the final patch touches persisted state, so a failure before
// it leaves the record exactly as the initial upsert wrote it.
type Runner struct {
	fetcher    Fetcher
	translator Translator
	publisher  Publisher
	store      ResultStore
	logger     *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(fetcher Fetcher, translator Translator, publisher Publisher, store ResultStore, logger *slog.Logger) *Runner {
	return &Runner{
		fetcher:    fetcher,
		translator: translator,
		publisher:  publisher,
		store:      store,
		logger:     logger,
	}
}

// Run enriches one job. Running it twice for the same job publishes to the
// same key and patches the same URL, so the final stored state converges.
func (r *Runner) Run(ctx context.Context, jobID, sourceSubtitleURL string) error {
	log := r.logger.With(slog.String("job_id", jobID))
	log.Info("Enrichment started", slog.String("source_subtitle_url", sourceSubtitleURL))

	raw, err := r.fetcher.Fetch(ctx, sourceSubtitleURL)
	if err != nil {
		return wrapStep(domain.ErrFetchFailed, err)
	}

	cues, err := subtitle.Parse(string(raw))
	if err != nil {
		// An unparseable artifact will not parse next time either.
		return domain.NewPermanentError(wrapStep(domain.ErrTranslationFailed, err))
	}

	translated, err := r.translator.Translate(ctx, subtitle.MarkedText(cues))
	if err != nil {
		return wrapStep(domain.ErrTranslationFailed, err)
	}

	translations := subtitle.ParseMarkedText(translated)
	if len(translations) == 0 {
		return domain.NewPermanentError(
			wrapStep(domain.ErrTranslationFailed, fmt.Errorf("no marked lines in translator output")))
	}

	doc := subtitle.Rebuild(cues, translations)
	key := PublishKey(sourceSubtitleURL, jobID)

	publishedURL, err := r.publisher.Put(ctx, key, []byte(doc))
	if err != nil {
		return wrapStep(domain.ErrPublishFailed, err)
	}

	if err := r.store.PatchTranslation(ctx, jobID, publishedURL); err != nil {
		return err
	}

	log.Info("Enrichment completed",
		slog.String("translated_subtitle_url", publishedURL),
		slog.Int("cues", len(cues)),
	)
	return nil
}

// PublishKey derives the deterministic object key for a job's translated
// subtitle: same directory as the source artifact, filename prefixed "en_".
// Repeated runs for the same job therefore overwrite the same destination.
func PublishKey(sourceSubtitleURL, jobID string) string {
	u, err := url.Parse(sourceSubtitleURL)
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return fmt.Sprintf("en_subtitles/%s/en_%s.srt", jobID, jobID)
	}

	p := strings.TrimLeft(u.Path, "/")
	dir, file := path.Split(p)
	return dir + "en_" + file
}

// wrapStep tags a step failure with its taxonomy sentinel while keeping the
// underlying error (and any permanence marker) unwrappable.
func wrapStep(step error, err error) error {
	if domain.IsPermanent(err) {
		return domain.NewPermanentError(fmt.Errorf("%w: %v", step, err))
	}
	return fmt.Errorf("%w: %v", step, err)
}
