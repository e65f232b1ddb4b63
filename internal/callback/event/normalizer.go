package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/videoauto/mps-callback/internal/callback/domain"
)

const (
	analysisTypeDeLogo  = "DeLogo"
	subtitleTypeASRText = "AsrFullTextRecognition"
)

// Normalizer maps heterogeneous pipeline notifications onto the canonical
// JobResult record. De-watermark results carry bucket-relative artifact paths,
// so the normalizer needs the public base URL of the artifact bucket.
type Normalizer struct {
	artifactBaseURL string
}

// NewNormalizer creates a Normalizer. baseURL is the public prefix of the
// artifact bucket, without a trailing slash.
func NewNormalizer(baseURL string) *Normalizer {
	return &Normalizer{artifactBaseURL: strings.TrimRight(baseURL, "/")}
}

// Normalize produces the canonical record for one notification.
//
// A nil result with a nil error means the notification is not applicable
// (unrecognized category, or a recognized category carrying no extractable
// result) and should be acknowledged without further action. A
// domain.ErrMalformedEvent error means the payload matched a category but is
// structurally unusable.
func (n *Normalizer) Normalize(note *Notification) (*domain.JobResult, error) {
	if note.EventType != EventTypeWorkflowTask {
		return nil, nil
	}

	var ev workflowTaskEvent
	if err := json.Unmarshal(note.WorkflowTaskEvent, &ev); err != nil {
		return nil, fmt.Errorf("%w: decoding workflow task event: %v", domain.ErrMalformedEvent, err)
	}
	if ev.TaskID == "" {
		return nil, fmt.Errorf("%w: missing task id", domain.ErrMalformedEvent)
	}

	if len(ev.AiAnalysisResultSet) > 0 {
		return n.normalizeDeLogo(&ev, note.SessionContext)
	}
	return n.normalizeASR(&ev, note.SessionContext)
}

// normalizeDeLogo extracts the de-watermark shape: output video plus origin
// (and possibly already translated) subtitle paths.
func (n *Normalizer) normalizeDeLogo(ev *workflowTaskEvent, requestedBy string) (*domain.JobResult, error) {
	for _, res := range ev.AiAnalysisResultSet {
		if res.Type != analysisTypeDeLogo {
			continue
		}

		out := res.DeLogoTask.Output
		result := &domain.JobResult{
			JobID:                 ev.TaskID,
			Status:                mapStatus(ev.Status),
			OutputURL:             n.absoluteURL(out.Path),
			SourceSubtitleURL:     n.absoluteURL(out.OriginSubtitlePath),
			TranslatedSubtitleURL: n.absoluteURL(out.TranslateSubtitlePath),
			RequestedBy:           requestedBy,
		}
		result.MediaName = deLogoMediaName(out.Path, result.SourceSubtitleURL)
		return result, nil
	}
	return nil, nil
}

// normalizeASR extracts the speech-to-text shape, which carries only a
// subtitle path; the media name comes from the job's input URL.
func (n *Normalizer) normalizeASR(ev *workflowTaskEvent, requestedBy string) (*domain.JobResult, error) {
	for _, res := range ev.SmartSubtitlesTaskResult {
		if res.Type != subtitleTypeASRText {
			continue
		}

		return &domain.JobResult{
			JobID:             ev.TaskID,
			Status:            mapStatus(ev.Status),
			MediaName:         lastTwoSegments(ev.InputInfo.URLInputInfo.URL),
			SourceSubtitleURL: res.AsrFullTextTask.Output.SubtitlePath,
			RequestedBy:       requestedBy,
		}, nil
	}
	return nil, nil
}

// mapStatus folds the pipeline's status vocabulary into the canonical enum.
// Unrecognized values map to Unknown, never to an error.
func mapStatus(s string) domain.Status {
	switch strings.ToUpper(s) {
	case "SUCCESS", "FINISH":
		return domain.StatusSucceeded
	case "FAIL", "FAILED", "PROCESS_FAIL", "ERROR":
		return domain.StatusFailed
	default:
		return domain.StatusUnknown
	}
}

// absoluteURL prefixes a bucket-relative path with the artifact base URL.
// Empty paths stay empty.
func (n *Normalizer) absoluteURL(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return n.artifactBaseURL + path
}

// lastTwoSegments derives a display name from the trailing two path segments
// of a URL, e.g. ".../series/episode1.mp4" -> "series/episode1.mp4".
func lastTwoSegments(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parts := strings.Split(rawURL, "/")
	if len(parts) < 2 {
		return rawURL
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}

// deLogoMediaName derives the display name from the output path, falling back
// to the subtitle URL with the extension swapped to .mp4 when the output is
// absent (failed jobs report a subtitle but no processed video).
func deLogoMediaName(outputPath, subtitleURL string) string {
	if outputPath != "" {
		return lastTwoSegments(outputPath)
	}
	if subtitleURL == "" {
		return ""
	}
	name := lastTwoSegments(subtitleURL)
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + ".mp4"
}
