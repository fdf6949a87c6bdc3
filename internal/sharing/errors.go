package sharing

import "fmt"

type Error string

func (e Error) Error() string {
	return string(e)
}

var (
	ErrRecordNotFound         = Error("sharing record not found")
	ErrItemNotFound           = Error("sharing item not found")
	ErrRecordNotDraft         = Error("sharing record is no longer a draft")
	ErrRecordNotShared        = Error("sharing record is not in shared status")
	ErrMissingUser            = Error("a user reference is required before sharing")
	ErrUnregisteredPortalUser = Error("user is not registered as a portal user")
	ErrEmptyShare             = Error("at least one file is required before sharing")
	ErrMissingViewLimit       = Error("views allowed must be set for view based sharing")
	ErrMissingExpiration      = Error("expiration date must be set for date based sharing")
)

// RowError ties a validation failure to the offending item row (1-based).
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// DuplicateShareError reports a file URL that is already actively shared with
// the same user for the same owning reference.
type DuplicateShareError struct {
	FileURL string
}

func (e *DuplicateShareError) Error() string {
	return fmt.Sprintf("duplicate entry: the file %s is already shared", e.FileURL)
}

// NotificationError wraps a notification failure after a successful submit.
// The submit itself stands; the caller decides how to surface the failure.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("record shared but notification failed: %v", e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
