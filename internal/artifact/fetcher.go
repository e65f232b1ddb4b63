// Package artifact downloads pipeline-produced artifacts referenced inside
// notification payloads.
package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/videoauto/mps-callback/internal/callback/domain"
)

// DefaultMaxSize caps a downloaded artifact at 50 MiB.
const DefaultMaxSize = 50 * 1024 * 1024

// Config holds fetcher settings.
type Config struct {
	Timeout time.Duration
	MaxSize int64
}

// Fetcher downloads artifacts over HTTP with a bounded read.
type Fetcher struct {
	client  *http.Client
	maxSize int64
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg *Config, logger *slog.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
		logger:  logger,
	}
}

// Fetch downloads the artifact at url. Client-error statuses (missing or
// unauthorized artifact) are permanent; everything else is left retryable for
// the dispatcher's whole-task policy.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewPermanentError(fmt.Errorf("building request for %q: %w", url, err))
	}
	req.Header.Set("Accept", "text/plain,text/vtt,text/srt,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to the body read
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusBadRequest:
		return nil, domain.NewPermanentError(fmt.Errorf("artifact %q returned status %d", url, resp.StatusCode))
	default:
		return nil, fmt.Errorf("artifact %q returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading artifact %q: %w", url, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, domain.NewPermanentError(fmt.Errorf("artifact %q exceeds %d bytes", url, f.maxSize))
	}
	if len(body) == 0 {
		return nil, domain.NewPermanentError(fmt.Errorf("artifact %q is empty", url))
	}

	f.logger.Debug("Artifact fetched",
		slog.String("url", url),
		slog.Int("size", len(body)),
	)
	return body, nil
}
