package documents

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/scrivener/pkg/events"
	"github.com/JaimeStill/scrivener/pkg/formatting"
	"github.com/JaimeStill/scrivener/pkg/pagination"
	"github.com/JaimeStill/scrivener/pkg/query"
	"github.com/JaimeStill/scrivener/pkg/repository"
	"github.com/JaimeStill/scrivener/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	stored     *events.Queue[StoredEvent]
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a document ledger repository implementing the System interface.
// Submissions publish a StoredEvent to the stored queue once bytes are durable.
func New(
	db *sql.DB,
	store storage.System,
	stored *events.Queue[StoredEvent],
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		stored:     stored,
		logger:     logger.With("system", "documents"),
		pagination: pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

// Submit validates the command, creates the ledger record, then stores the
// bytes. The record must exist before the bytes become visible to the store
// event path, so the order is ledger, blob, event. A blob failure removes
// the just-created record so nothing partially committed stays observable.
func (r *repo) Submit(ctx context.Context, cmd SubmitCommand) (*Document, error) {
	contentType, pageCount, err := inspectDocument(cmd.Data)
	if err != nil {
		return nil, err
	}

	callbackURL, err := validateCallbackURL(cmd.CallbackURL)
	if err != nil {
		return nil, err
	}

	callbackState := CallbackNone
	if callbackURL != nil {
		callbackState = CallbackPending
	}

	id := uuid.New()
	key := buildStorageKey(id)

	q := `
		INSERT INTO documents(file_id, status, callback_url, callback_state, content_type, size_bytes, page_count, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + returning

	insertArgs := []any{
		id,
		StatusReceived,
		callbackURL,
		callbackState,
		contentType,
		int64(len(cmd.Data)),
		pageCount,
		key,
	}

	d, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Document, error) {
		doc, err := repository.QueryOne(ctx, tx, q, insertArgs, scanDocument)
		if err != nil {
			return doc, err
		}
		return doc, appendChange(ctx, tx, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create record: %w", ErrStorageUnavailable, err)
	}

	if err := r.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), contentType); err != nil {
		r.compensate(ctx, id, "")
		return nil, fmt.Errorf("%w: store bytes: %w", ErrStorageUnavailable, err)
	}

	if err := r.stored.Publish(ctx, StoredEvent{FileID: id}); err != nil {
		r.compensate(ctx, id, key)
		return nil, fmt.Errorf("%w: publish stored event: %w", ErrStorageUnavailable, err)
	}

	r.logger.Info(
		"document submitted",
		"file_id", d.FileID,
		"content_type", d.ContentType,
		"size", formatting.FormatBytes(d.SizeBytes, 1),
		"callback", callbackState,
	)
	return &d, nil
}

// compensate removes the partially-submitted record, and the blob when key
// is non-empty, after a later submission step failed. It detaches from the
// caller's cancellation so a cancelled request still cleans up.
func (r *repo) compensate(ctx context.Context, id uuid.UUID, key string) {
	ctx = context.WithoutCancel(ctx)

	if key != "" {
		if err := r.storage.Delete(ctx, key); err != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", err)
		}
	}

	if err := repository.ExecExpectOne(
		ctx, r.db,
		"DELETE FROM documents WHERE file_id = $1",
		id,
	); err != nil {
		r.logger.Warn("compensating record delete failed", "file_id", id, "error", err)
	}
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Document, error) {
	q, args := query.NewBuilder(projection).BuildSingle("FileID", id)

	d, err := repository.QueryOne(ctx, r.db, q, args, scanDocument)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	return &d, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Document], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "ContentType", "StorageKey")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	docs, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	result := pagination.NewPageResult(docs, total, page.Page, page.PageSize)
	return &result, nil
}

// Guarded transition statements. Each WHERE clause encodes the legal
// predecessor states, so a stale or duplicate caller matches no row instead
// of overwriting a later transition.
const (
	markProcessingQuery = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE file_id = $1 AND status = $3
		RETURNING ` + returning

	completeQuery = `
		UPDATE documents
		SET status = $2, extracted_text = $3, error_code = NULL, error_message = NULL, updated_at = now()
		WHERE file_id = $1 AND status IN ($4, $5)
		RETURNING ` + returning

	failQuery = `
		UPDATE documents
		SET status = $2, error_code = $3, error_message = $4, extracted_text = NULL, updated_at = now()
		WHERE file_id = $1 AND status IN ($5, $6)
		RETURNING ` + returning

	markCallbackQuery = `
		UPDATE documents
		SET callback_state = $2, updated_at = now()
		WHERE file_id = $1 AND callback_state = $3 AND status IN ($4, $5)
		RETURNING ` + returning
)

// MarkProcessing advances RECEIVED → PROCESSING.
func (r *repo) MarkProcessing(ctx context.Context, id uuid.UUID) (*Document, bool, error) {
	return r.transition(ctx, id, markProcessingQuery, id, StatusProcessing, StatusReceived)
}

// Complete records extracted text and advances to COMPLETED. The fast path
// RECEIVED → COMPLETED is legal; terminal states never regress.
func (r *repo) Complete(ctx context.Context, id uuid.UUID, text string) (*Document, bool, error) {
	return r.transition(ctx, id, completeQuery, id, StatusCompleted, text, StatusReceived, StatusProcessing)
}

// Fail records the error taxonomy code and advances to FAILED.
func (r *repo) Fail(ctx context.Context, id uuid.UUID, code, message string) (*Document, bool, error) {
	return r.transition(ctx, id, failQuery, id, StatusFailed, code, message, StatusReceived, StatusProcessing)
}

// MarkCallback advances callback_state from PENDING to the given terminal
// delivery state. The status guard keeps callbacks for records that are not
// yet terminal untouched. Returns false when the guard suppresses the write.
func (r *repo) MarkCallback(ctx context.Context, id uuid.UUID, state CallbackState) (bool, error) {
	_, advanced, err := r.transition(ctx, id, markCallbackQuery, id, state, CallbackPending, StatusCompleted, StatusFailed)
	return advanced, err
}

// transition runs a guarded single-row mutation and appends the updated
// record image to the change feed in the same transaction. A mutation whose
// WHERE guard matches no row is resolved against the current record: a
// missing record yields ErrNotFound, an existing one a suppressed no-op.
func (r *repo) transition(
	ctx context.Context,
	id uuid.UUID,
	q string,
	args ...any,
) (*Document, bool, error) {
	d, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Document, error) {
		doc, err := repository.QueryOne(ctx, tx, q, args, scanDocument)
		if err != nil {
			return doc, err
		}
		return doc, appendChange(ctx, tx, &doc)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			current, findErr := r.Find(ctx, id)
			if findErr != nil {
				return nil, false, findErr
			}
			return current, false, nil
		}
		return nil, false, fmt.Errorf("transition document %s: %w", id, err)
	}

	r.logger.Info(
		"document transitioned",
		"file_id", d.FileID,
		"status", d.Status,
		"callback_state", d.CallbackState,
	)
	return &d, true, nil
}

// appendChange inserts the post-update record image into the change feed.
// Committing it with the mutation keeps feed and record consistent.
func appendChange(ctx context.Context, tx *sql.Tx, d *Document) error {
	record, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal change record: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO document_changes(file_id, record) VALUES ($1, $2)",
		d.FileID, record,
	)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

func buildStorageKey(id uuid.UUID) string {
	return fmt.Sprintf("documents/%s", id)
}
