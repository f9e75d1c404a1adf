package models

import (
	"fmt"
	"time"
)

// DraftStatus is the lifecycle state of a draft.
type DraftStatus uint8

const (
	DraftPending DraftStatus = iota
	DraftProcessing
	DraftReady
	DraftFailed
)

// Status messages recorded on drafts as they move through processing.
const (
	MessageCreated    = "queued for processing"
	MessageQueued     = "queued"
	MessageProcessing = "fetching metadata"
	MessageReady      = "ready for review"
	MessageFailed     = "failed to enrich"
)

func (s DraftStatus) String() string {
	switch s {
	case DraftPending:
		return "pending"
	case DraftProcessing:
		return "processing"
	case DraftReady:
		return "ready"
	case DraftFailed:
		return "failed"
	}
	return fmt.Sprintf("DraftStatus(%d)", uint8(s))
}

// ParseDraftStatus converts the wire name back to a DraftStatus.
func ParseDraftStatus(s string) (DraftStatus, error) {
	switch s {
	case "pending":
		return DraftPending, nil
	case "processing":
		return DraftProcessing, nil
	case "ready":
		return DraftReady, nil
	case "failed":
		return DraftFailed, nil
	}
	return 0, fmt.Errorf("%w: unknown draft status %q", ErrInvalidInput, s)
}

func (s DraftStatus) MarshalText() ([]byte, error) {
	switch s {
	case DraftPending, DraftProcessing, DraftReady, DraftFailed:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("invalid draft status %d", uint8(s))
}

func (s *DraftStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDraftStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further transition is allowed.
func (s DraftStatus) Terminal() bool {
	switch s {
	case DraftReady, DraftFailed:
		return true
	case DraftPending, DraftProcessing:
		return false
	}
	return true
}

// CanTransitionTo reports whether next is reachable from s. Pending may be
// rewritten in place while a task id is attached.
func (s DraftStatus) CanTransitionTo(next DraftStatus) bool {
	switch s {
	case DraftPending:
		return next == DraftPending || next == DraftProcessing
	case DraftProcessing:
		return next == DraftReady || next == DraftFailed
	case DraftReady, DraftFailed:
		return false
	}
	return false
}

// Draft is an ephemeral staging record that holds enrichment results
// until they are promoted into the catalog.
type Draft struct {
	ID            string      `json:"id"`
	Status        DraftStatus `json:"status"`
	StatusMessage string      `json:"status_message"`
	CourseFields
	TaskID    *string   `json:"task_id"`
	Error     *string   `json:"error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DraftUpdate lists the draft fields to change. Nil fields are left as is.
type DraftUpdate struct {
	Status  *DraftStatus
	Message *string
	TaskID  *string
	Error   *string
	Course  *CoursePatch
}

// IsEmpty reports whether the update carries no field at all.
func (u DraftUpdate) IsEmpty() bool {
	return u.Status == nil && u.Message == nil && u.TaskID == nil && u.Error == nil && u.Course == nil
}

// Status returns a pointer to s, for building updates.
func Status(s DraftStatus) *DraftStatus { return &s }
