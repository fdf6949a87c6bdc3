package models

import (
	"time"
)

// ShareStatus is the lifecycle status of a sharing record or one of its items.
type ShareStatus string

const (
	StatusDraft     ShareStatus = "Draft"
	StatusShared    ShareStatus = "Shared"
	StatusExpired   ShareStatus = "Expired"
	StatusCancelled ShareStatus = "Cancelled"
)

// Terminal reports whether no manual transition may leave the status.
func (s ShareStatus) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// SharingRecord grants a supplier access to a set of files attached to one
// owning entity. Items are owned exclusively by their record and are kept in
// insertion order.
type SharingRecord struct {
	ID                string        `json:"id"`
	FileType          string        `json:"file_type"`
	FileReference     string        `json:"file_reference"`
	FileReferenceName string        `json:"file_reference_name"`
	UserType          string        `json:"user_type"`
	UserReference     string        `json:"user_reference"`
	Email             string        `json:"email"`
	Status            ShareStatus   `json:"status"`
	Notify            bool          `json:"notify"`
	Submitted         bool          `json:"submitted"`
	SubmittedAt       *time.Time    `json:"submitted_at,omitempty"`
	CancelledAt       *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Items             []SharingItem `json:"items"`
}

// SharingItem carries the sharing terms for a single file URL. A zero-flag
// item ("unlimited") never ages out on its own.
type SharingItem struct {
	ID               string      `json:"id"`
	RecordID         string      `json:"record_id"`
	Idx              int         `json:"idx"`
	FileURL          string      `json:"file_url"`
	IsPrivate        bool        `json:"is_private"`
	DateBasedSharing bool        `json:"date_based_sharing"`
	ExpirationDate   *time.Time  `json:"expiration_date,omitempty"`
	ViewBasedSharing bool        `json:"view_based_sharing"`
	ViewsAllowed     int         `json:"views_allowed"`
	ViewsRemaining   int         `json:"views_remaining"`
	Status           ShareStatus `json:"status"`
}

// ViewLogEntry is an append-only audit record of one successful view.
type ViewLogEntry struct {
	ID        string    `json:"id"`
	ViewedBy  string    `json:"viewed_by"`
	RecordID  string    `json:"record_id"`
	ItemID    string    `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachedFile is one sharable file attached to an owning entity.
type AttachedFile struct {
	URL       string `json:"url"`
	IsPrivate bool   `json:"is_private"`
}

type SharingItemInput struct {
	FileURL          string     `json:"file_url" binding:"required"`
	IsPrivate        bool       `json:"is_private"`
	DateBasedSharing bool       `json:"date_based_sharing"`
	ExpirationDate   *time.Time `json:"expiration_date"`
	ViewBasedSharing bool       `json:"view_based_sharing"`
	ViewsAllowed     int        `json:"views_allowed"`
}

type SharingRecordInput struct {
	ID            string             `json:"id"`
	FileType      string             `json:"file_type" binding:"required"`
	FileReference string             `json:"file_reference" binding:"required"`
	UserType      string             `json:"user_type" binding:"required"`
	UserReference string             `json:"user_reference"`
	Notify        bool               `json:"notify"`
	Items         []SharingItemInput `json:"items"`
}
