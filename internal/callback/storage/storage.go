package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/videoauto/mps-callback/internal/callback/domain"
)

// RetryPolicy bounds the gateway's handling of transient connectivity
// failures. The delay doubles after every failed attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries three times at 1s, 2s and 4s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}

// Storage is the durable gateway for job results. Both operations are
// idempotent: re-applying the same upsert or patch only advances updated_at.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewStorage creates a Storage backed by the given sqlx database handle.
func NewStorage(db *sqlx.DB, logger *slog.Logger, policy RetryPolicy) *Storage {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultRetryPolicy.MaxRetries
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	return &Storage{
		db:     db,
		logger: logger,
		policy: policy,
		sleep:  sleepContext,
	}
}

// Upsert inserts or updates the record keyed by job_id. Empty incoming
// optional fields never blank out previously stored values, so a sparser
// duplicate notification cannot erase an already recorded artifact URL.
func (s *Storage) Upsert(ctx context.Context, result *domain.JobResult) error {
	query := `
		INSERT INTO job_results (
			job_id, status, media_name, output_url,
			source_subtitle_url, translated_subtitle_url, requested_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			media_name = COALESCE(NULLIF(EXCLUDED.media_name, ''), job_results.media_name),
			output_url = COALESCE(NULLIF(EXCLUDED.output_url, ''), job_results.output_url),
			source_subtitle_url = COALESCE(NULLIF(EXCLUDED.source_subtitle_url, ''), job_results.source_subtitle_url),
			translated_subtitle_url = COALESCE(NULLIF(EXCLUDED.translated_subtitle_url, ''), job_results.translated_subtitle_url),
			requested_by = COALESCE(NULLIF(EXCLUDED.requested_by, ''), job_results.requested_by),
			updated_at = NOW()
	`

	err := s.withRetry(ctx, "upsert", result.JobID, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			result.JobID,
			result.Status,
			result.MediaName,
			result.OutputURL,
			result.SourceSubtitleURL,
			result.TranslatedSubtitleURL,
			result.RequestedBy,
		)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Job result stored",
		slog.String("job_id", result.JobID),
		slog.String("status", string(result.Status)),
	)
	return nil
}

// PatchTranslation records the published translated-subtitle URL for a job.
func (s *Storage) PatchTranslation(ctx context.Context, jobID, translatedURL string) error {
	query := `
		UPDATE job_results
		SET translated_subtitle_url = $2,
		    updated_at = NOW()
		WHERE job_id = $1
	`

	err := s.withRetry(ctx, "patch_translation", jobID, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, jobID, translatedURL)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Translated subtitle URL recorded",
		slog.String("job_id", jobID),
		slog.String("translated_subtitle_url", translatedURL),
	)
	return nil
}

// GetByJobID returns the stored record for a job, or domain.ErrResultNotFound
// if no record exists.
func (s *Storage) GetByJobID(ctx context.Context, jobID string) (*domain.JobResult, error) {
	query := `
		SELECT job_id, status, media_name, output_url,
		       source_subtitle_url, translated_subtitle_url, requested_by,
		       created_at, updated_at
		FROM job_results
		WHERE job_id = $1
	`

	var result domain.JobResult
	if err := s.db.GetContext(ctx, &result, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrResultNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}
	return &result, nil
}

// withRetry runs op, retrying transient connectivity failures up to the
// configured bound. Non-transient failures surface immediately. Exhaustion and
// non-transient failures are both wrapped as domain.ErrPersistence.
func (s *Storage) withRetry(ctx context.Context, opName, jobID string, op func(context.Context) error) error {
	delay := s.policy.BaseDelay

	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Store operation succeeded after retry",
					slog.String("op", opName),
					slog.String("job_id", jobID),
					slog.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		if !isTransient(err) {
			s.logger.Error("Store operation failed with non-transient error",
				slog.String("op", opName),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, opName, err)
		}

		if attempt >= s.policy.MaxRetries {
			break
		}

		s.logger.Warn("Store operation failed, retrying",
			slog.String("op", opName),
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_after", delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, opName, sleepErr)
		}
		delay *= 2
	}

	s.logger.Error("Store operation exhausted retries",
		slog.String("op", opName),
		slog.String("job_id", jobID),
		slog.Int("attempts", s.policy.MaxRetries+1),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrPersistence, opName, s.policy.MaxRetries+1, err)
}

// sleepContext waits for d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
