// Package translate calls a generative-language translation endpoint that
// streams its answer as server-sent events.
package translate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/videoauto/mps-callback/internal/callback/domain"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com"

// Config holds translation client settings.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	Timeout        time.Duration
	TargetLanguage string
}

// Client translates subtitle documents. The input carries [LINE_n] markers
// and the prompt instructs the model to keep them, so the caller can map the
// output back onto the source cues.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	targetLang string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a translation client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	targetLang := cfg.TargetLanguage
	if targetLang == "" {
		targetLang = "American English"
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		targetLang: targetLang,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Translate sends the marked subtitle text and returns the model's full
// output. Auth and bad-request rejections are permanent; rate limiting and
// server errors stay retryable.
func (c *Client) Translate(ctx context.Context, markedText string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: c.prompt(markedText)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding translation request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s",
		c.endpoint, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("building translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling translation service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return "", domain.NewPermanentError(fmt.Errorf("translation service rejected request: status %d", resp.StatusCode))
	default:
		return "", fmt.Errorf("translation service returned status %d", resp.StatusCode)
	}

	result, err := readSSEText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading translation stream: %w", err)
	}
	if strings.TrimSpace(result) == "" {
		return "", domain.NewPermanentError(fmt.Errorf("translation service returned no content"))
	}

	c.logger.Debug("Translation completed",
		slog.String("model", c.model),
		slog.Int("output_size", len(result)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// prompt wraps the marked subtitle text with the translation instructions.
// The marker rules are strict: the cue mapping breaks if the model merges,
// splits or drops lines.
func (c *Client) prompt(markedText string) string {
	return fmt.Sprintf(`You are a professional subtitle translator. Each input line starts with a [LINE_n] marker. Translate the text after each marker into natural, fluent %s.

Rules:
1. Keep the [LINE_n] marker at the start of every output line, unchanged.
2. Translate every line; never skip, merge or split lines.
3. Keep tense consistent with the surrounding context.
4. Output nothing besides the translated lines.

Subtitles:
%s`, c.targetLang, markedText)
}

// readSSEText accumulates the text parts of every "data:" chunk in the SSE
// stream. Undecodable chunks are skipped rather than failing the whole call.
func readSSEText(r io.Reader) (string, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(line[len("data: "):]), &chunk); err != nil {
			continue
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				b.WriteString(p.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
