// Package objectstore uploads artifacts to a bucket-style object store over
// its plain HTTP upload-by-key interface.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/videoauto/mps-callback/internal/callback/domain"
)

// Config holds object store settings. BaseURL is the public bucket endpoint,
// e.g. "https://zh-video.cos.ap-shanghai.myqcloud.com".
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// Client uploads objects by key. Uploading the same key twice overwrites the
// object, which is what makes the enrichment publish step idempotent.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an object store client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// BaseURL returns the public bucket endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Put uploads body at key and returns the object's stable public URL.
func (c *Client) Put(ctx context.Context, key string, body []byte) (string, error) {
	url := c.baseURL + "/" + strings.TrimLeft(key, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return "", domain.NewPermanentError(fmt.Errorf("building upload request for %q: %w", key, err))
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %q: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", domain.NewPermanentError(fmt.Errorf("upload of %q rejected: status %d", key, resp.StatusCode))
	default:
		return "", fmt.Errorf("upload of %q returned status %d", key, resp.StatusCode)
	}

	c.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.Int("size", len(body)),
	)
	return url, nil
}
