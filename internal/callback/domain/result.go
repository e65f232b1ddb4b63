package domain

import "time"

// Status is the terminal state reported by the upstream pipeline for a job.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusUnknown   Status = "UNKNOWN"
)

// JobResult is the canonical record derived from one upstream notification.
// job_id is the natural key; a second notification for the same job overwrites
// fields instead of creating a duplicate row.
type JobResult struct {
	JobID                 string    `db:"job_id"`
	Status                Status    `db:"status"`
	MediaName             string    `db:"media_name"`
	OutputURL             string    `db:"output_url"`
	SourceSubtitleURL     string    `db:"source_subtitle_url"`
	TranslatedSubtitleURL string    `db:"translated_subtitle_url"`
	RequestedBy           string    `db:"requested_by"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// QualifiesForEnrichment reports whether the record should be handed to the
// translation pipeline: only succeeded jobs that carry a source subtitle.
func (r *JobResult) QualifiesForEnrichment() bool {
	return r.Status == StatusSucceeded && r.SourceSubtitleURL != ""
}
