package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/scrivener/internal/documents"
	"github.com/JaimeStill/scrivener/pkg/backoff"
	"github.com/JaimeStill/scrivener/pkg/storage"
)

// Options bound the worker's retry behavior. LookupAttempts covers the
// record-not-yet-visible race at submission; ExtractionAttempts bounds
// transient engine failures; ExtractionTimeout caps a single engine call.
type Options struct {
	LookupAttempts     int
	ExtractionAttempts int
	ExtractionTimeout  time.Duration
	RetryBase          time.Duration
	RetryCap           time.Duration
}

// Worker processes document-stored events: it claims the record, fetches
// the stored bytes, runs the extraction engine, and writes the terminal
// result into the ledger. Events are delivered at-least-once; the record's
// status guard makes duplicate handling a no-op.
type Worker struct {
	documents documents.System
	storage   storage.System
	engine    Engine
	logger    *slog.Logger
	opts      Options
}

// NewWorker creates an extraction worker.
func NewWorker(
	docs documents.System,
	store storage.System,
	engine Engine,
	logger *slog.Logger,
	opts Options,
) *Worker {
	return &Worker{
		documents: docs,
		storage:   store,
		engine:    engine,
		logger:    logger.With("system", "extraction"),
		opts:      opts,
	}
}

// Handle processes one stored event. A nil return acknowledges the event;
// errors are infrastructure failures the queue may redeliver.
func (w *Worker) Handle(ctx context.Context, evt documents.StoredEvent) error {
	doc, err := w.lookup(ctx, evt.FileID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			// Orphan event: the record never became visible. Logged, not fatal.
			w.logger.Warn("orphan store event", "file_id", evt.FileID)
			return nil
		}
		return err
	}

	if doc.Status.Terminal() {
		w.logger.Info("duplicate store event for terminal record", "file_id", doc.FileID, "status", doc.Status)
		return nil
	}

	doc, advanced, err := w.documents.MarkProcessing(ctx, evt.FileID)
	if err != nil {
		return err
	}
	if !advanced && doc.Status.Terminal() {
		return nil
	}

	data, err := w.download(ctx, doc.StorageKey)
	if err != nil {
		return err
	}

	text, err := w.extract(ctx, data, doc.ContentType)
	if err != nil {
		code, message := classify(err)
		if _, _, failErr := w.documents.Fail(ctx, evt.FileID, code, message); failErr != nil {
			return failErr
		}
		w.logger.Warn("extraction failed", "file_id", evt.FileID, "code", code, "error", err)
		return nil
	}

	if _, _, err := w.documents.Complete(ctx, evt.FileID, text); err != nil {
		return err
	}

	w.logger.Info("extraction complete", "file_id", evt.FileID, "chars", len(text))
	return nil
}

// Abandon marks a record FAILED after its store event exhausted the queue's
// delivery budget, so no document is left stranded in a non-terminal status.
// The ledger's status guard makes this a no-op for records that reached a
// terminal status through another path.
func (w *Worker) Abandon(ctx context.Context, evt documents.StoredEvent, cause error) {
	_, advanced, err := w.documents.Fail(
		ctx,
		evt.FileID,
		documents.ErrorCodeExtraction,
		fmt.Sprintf("processing abandoned: %v", cause),
	)
	if err != nil {
		w.logger.Error("abandon failed", "file_id", evt.FileID, "error", err)
		return
	}
	if advanced {
		w.logger.Warn("record abandoned after delivery budget exhausted", "file_id", evt.FileID, "cause", cause)
	}
}

// lookup retries record resolution with backoff to tolerate a store event
// arriving before the submission's ledger write is visible.
func (w *Worker) lookup(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	policy := backoff.Policy{
		MaxAttempts: w.opts.LookupAttempts,
		Base:        w.opts.RetryBase,
		Cap:         w.opts.RetryCap,
	}

	var doc *documents.Document
	err := backoff.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		doc, err = w.documents.Find(ctx, id)
		return err
	}, func(err error) bool { return errors.Is(err, documents.ErrNotFound) })

	return doc, err
}

func (w *Worker) download(ctx context.Context, key string) ([]byte, error) {
	reader, err := w.storage.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// extract runs the engine under a per-attempt timeout, retrying transient
// failures up to the attempt budget. ErrUnreadable short-circuits.
func (w *Worker) extract(ctx context.Context, data []byte, contentType string) (string, error) {
	policy := backoff.Policy{
		MaxAttempts: w.opts.ExtractionAttempts,
		Base:        w.opts.RetryBase,
		Cap:         w.opts.RetryCap,
	}

	var text string
	err := backoff.Retry(ctx, policy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, w.opts.ExtractionTimeout)
		defer cancel()

		var err error
		text, err = w.engine.Extract(attemptCtx, data, contentType)
		return err
	}, func(err error) bool { return !errors.Is(err, ErrUnreadable) })

	return text, err
}

func classify(err error) (code, message string) {
	if errors.Is(err, ErrUnreadable) {
		return documents.ErrorCodeUnsupported, err.Error()
	}
	return documents.ErrorCodeExtraction, err.Error()
}
