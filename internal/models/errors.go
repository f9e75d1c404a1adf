package models

import "errors"

var (
	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// Conflict errors.
	ErrVersionConflict     = errors.New("version conflict")
	ErrUniquenessViolation = errors.New("uniqueness violation")
	ErrInvalidTransition   = errors.New("invalid draft status transition")
	ErrDraftNotReady       = errors.New("draft is not ready for promotion")

	// Input errors.
	ErrInvalidInput = errors.New("invalid input")

	// Collaborator errors.
	ErrEnrichment = errors.New("enrichment failed")
)

// Error kinds carried across the task queue so the waiting caller can
// rebuild a typed error from a worker's result.
const (
	KindNotFound          = "not_found"
	KindVersionConflict   = "version_conflict"
	KindUniqueness        = "uniqueness_violation"
	KindInvalidTransition = "invalid_transition"
	KindDraftNotReady     = "draft_not_ready"
	KindInvalidInput      = "invalid_input"
	KindEnrichment        = "enrichment"
	KindInternal          = "internal"
)

var kindErrors = []struct {
	kind string
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindVersionConflict, ErrVersionConflict},
	{KindUniqueness, ErrUniquenessViolation},
	{KindInvalidTransition, ErrInvalidTransition},
	{KindDraftNotReady, ErrDraftNotReady},
	{KindInvalidInput, ErrInvalidInput},
	{KindEnrichment, ErrEnrichment},
}

// ErrorKind returns the stable kind string for err.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindInternal
}

// ErrorFromKind rebuilds an error that matches the sentinel for kind
// while keeping the original message.
func ErrorFromKind(kind, message string) error {
	for _, ke := range kindErrors {
		if ke.kind == kind {
			return &remoteError{sentinel: ke.err, message: message}
		}
	}
	return errors.New(message)
}

type remoteError struct {
	sentinel error
	message  string
}

func (e *remoteError) Error() string { return e.message }

func (e *remoteError) Unwrap() error { return e.sentinel }
