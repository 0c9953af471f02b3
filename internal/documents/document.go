// Package documents implements the document ledger for Scrivener.
// It provides the document record (the single source of truth for a
// submitted document's processing state), submission and status query
// logic, guarded state transitions, and the record change feed consumed
// by downstream pipeline stages.
package documents

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a document record. Transitions move
// strictly forward: RECEIVED → PROCESSING → {COMPLETED, FAILED}, with
// PROCESSING optional on the fast path.
type Status string

const (
	StatusReceived   Status = "RECEIVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further extraction transitions occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CallbackState tracks delivery of the terminal-status callback.
// It only advances from PENDING once Status is terminal.
type CallbackState string

const (
	CallbackNone           CallbackState = "NONE"
	CallbackPending        CallbackState = "PENDING"
	CallbackDelivered      CallbackState = "DELIVERED"
	CallbackDeliveryFailed CallbackState = "DELIVERY_FAILED"
)

// Error codes recorded on failed documents.
const (
	ErrorCodeUnsupported = "UNSUPPORTED_DOCUMENT"
	ErrorCodeExtraction  = "EXTRACTION_FAILED"
)

// ProcessingError describes why extraction failed.
type ProcessingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Document is the ledger record for a submitted document. Exactly one
// record exists per FileID; it is created at submission, mutated in place
// by the pipeline, and never deleted by it.
type Document struct {
	FileID        uuid.UUID        `json:"file_id"`
	Status        Status           `json:"status"`
	ExtractedText *string          `json:"extracted_text,omitempty"`
	Error         *ProcessingError `json:"error,omitempty"`
	CallbackURL   *string          `json:"callback_url,omitempty"`
	CallbackState CallbackState    `json:"callback_state"`
	ContentType   string           `json:"content_type"`
	SizeBytes     int64            `json:"size_bytes"`
	PageCount     *int             `json:"page_count"`
	StorageKey    string           `json:"storage_key"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SubmitCommand carries a submission: raw document bytes and an optional
// callback URL to notify once processing reaches a terminal status.
type SubmitCommand struct {
	Data        []byte
	CallbackURL *string
}

// StoredEvent announces that a submitted document's bytes are durably
// stored. Delivery is at-least-once; consumers must tolerate duplicates.
type StoredEvent struct {
	FileID uuid.UUID `json:"file_id"`
}
