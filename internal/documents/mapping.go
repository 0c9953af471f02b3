package documents

import (
	"net/url"

	"github.com/JaimeStill/scrivener/pkg/query"
	"github.com/JaimeStill/scrivener/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("file_id", "FileID").
	Project("status", "Status").
	Project("extracted_text", "ExtractedText").
	Project("error_code", "ErrorCode").
	Project("error_message", "ErrorMessage").
	Project("callback_url", "CallbackURL").
	Project("callback_state", "CallbackState").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("storage_key", "StorageKey").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// returning is the unaliased column list for INSERT/UPDATE ... RETURNING,
// in scanDocument order.
const returning = `file_id, status, extracted_text, error_code, error_message, callback_url, callback_state, content_type, size_bytes, page_count, storage_key, created_at, updated_at`

// Filters contains optional filtering criteria for document queries.
// Nil fields are ignored; all filters use exact matching.
type Filters struct {
	Status        *string `json:"status,omitempty"`
	CallbackState *string `json:"callback_state,omitempty"`
	ContentType   *string `json:"content_type,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("CallbackState", f.CallbackState).
		WhereEquals("ContentType", f.ContentType)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if cs := values.Get("callback_state"); cs != "" {
		f.CallbackState = &cs
	}

	if ct := values.Get("content_type"); ct != "" {
		f.ContentType = &ct
	}

	return f
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d            Document
		errorCode    *string
		errorMessage *string
	)

	err := s.Scan(
		&d.FileID,
		&d.Status,
		&d.ExtractedText,
		&errorCode,
		&errorMessage,
		&d.CallbackURL,
		&d.CallbackState,
		&d.ContentType,
		&d.SizeBytes,
		&d.PageCount,
		&d.StorageKey,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}

	if errorCode != nil {
		d.Error = &ProcessingError{Code: *errorCode}
		if errorMessage != nil {
			d.Error.Message = *errorMessage
		}
	}

	return d, nil
}
