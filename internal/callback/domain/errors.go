package domain

import "errors"

var (
	// ErrMalformedEvent is returned when a notification matches a known
	// category but its payload is structurally unusable. It is logged and
	// acknowledged, never surfaced to the sender.
	ErrMalformedEvent = errors.New("malformed event payload")

	// ErrPersistence is returned by the store gateway after its retry budget
	// is exhausted or on a non-transient database failure.
	ErrPersistence = errors.New("persistence failure")

	// ErrFetchFailed is returned when the source subtitle artifact cannot be
	// downloaded.
	ErrFetchFailed = errors.New("artifact fetch failed")

	// ErrTranslationFailed is returned when the subtitle cannot be parsed or
	// the translation service does not produce usable output.
	ErrTranslationFailed = errors.New("translation failed")

	// ErrPublishFailed is returned when the translated artifact cannot be
	// uploaded to the object store.
	ErrPublishFailed = errors.New("artifact publish failed")

	// ErrResultNotFound is returned when no record exists for a job id.
	ErrResultNotFound = errors.New("job result not found")
)

// PermanentError wraps failures that retrying cannot fix (missing artifact,
// rejected credentials, unparseable input). The dispatcher abandons the task
// immediately instead of burning its retry budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError marks err as not worth retrying.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
