// Package notify delivers terminal-status callbacks to caller-supplied
// endpoints, consuming the document ledger's change feed.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/scrivener/internal/documents"
	"github.com/JaimeStill/scrivener/pkg/backoff"
)

// ErrDeliveryFailed marks an attempt rejected by the endpoint (non-2xx)
// or failed in transit. Delivery retries until the attempt budget runs out.
var ErrDeliveryFailed = errors.New("callback delivery failed")

// Payload is the callback body POSTed to the caller's endpoint. Endpoints
// must be idempotent: ambiguous failures can produce redelivery.
type Payload struct {
	FileID        uuid.UUID                  `json:"file_id"`
	Status        documents.Status           `json:"status"`
	ExtractedText *string                    `json:"extracted_text,omitempty"`
	Error         *documents.ProcessingError `json:"error,omitempty"`
}

// Options bound callback delivery: attempts, backoff shape, and the
// per-attempt request timeout.
type Options struct {
	DeliveryAttempts int
	CallbackTimeout  time.Duration
	RetryBase        time.Duration
	RetryCap         time.Duration
}

// Notifier consumes change-feed entries and delivers callbacks for records
// that reached a terminal status with a pending callback. The record's
// callback_state is the idempotence guard: feed delivery is at-least-once
// and may repeat or reorder entries, so eligibility is always re-checked
// against the current record, and the guard advances exactly once.
type Notifier struct {
	documents documents.System
	client    *http.Client
	logger    *slog.Logger
	opts      Options
}

// New creates a Notifier delivering callbacks through the given client.
func New(docs documents.System, client *http.Client, logger *slog.Logger, opts Options) *Notifier {
	return &Notifier{
		documents: docs,
		client:    client,
		logger:    logger.With("system", "notify"),
		opts:      opts,
	}
}

// Handle processes one change-feed entry. Ineligible entries (non-terminal
// status, no callback requested, already handled) are acknowledged without
// side effects. Delivery failures never propagate to the submitter; they
// end in callback_state DELIVERY_FAILED.
func (n *Notifier) Handle(ctx context.Context, img documents.Document) error {
	if !eligible(&img) {
		return nil
	}

	// The feed image may be stale; the current record decides.
	current, err := n.documents.Find(ctx, img.FileID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			n.logger.Warn("change event for unknown record", "file_id", img.FileID)
			return nil
		}
		return err
	}
	if !eligible(current) {
		return nil
	}

	if err := n.deliver(ctx, current); err != nil {
		advanced, markErr := n.documents.MarkCallback(ctx, current.FileID, documents.CallbackDeliveryFailed)
		if markErr != nil {
			return markErr
		}
		if advanced {
			n.logger.Warn("callback delivery abandoned", "file_id", current.FileID, "error", err)
		}
		return nil
	}

	advanced, err := n.documents.MarkCallback(ctx, current.FileID, documents.CallbackDelivered)
	if err != nil {
		return err
	}
	if advanced {
		n.logger.Info("callback delivered", "file_id", current.FileID, "status", current.Status)
	}
	return nil
}

func eligible(d *documents.Document) bool {
	return d.Status.Terminal() &&
		d.CallbackState == documents.CallbackPending &&
		d.CallbackURL != nil
}

func (n *Notifier) deliver(ctx context.Context, d *documents.Document) error {
	body, err := json.Marshal(Payload{
		FileID:        d.FileID,
		Status:        d.Status,
		ExtractedText: d.ExtractedText,
		Error:         d.Error,
	})
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	policy := backoff.Policy{
		MaxAttempts: n.opts.DeliveryAttempts,
		Base:        n.opts.RetryBase,
		Cap:         n.opts.RetryCap,
	}

	return backoff.Retry(ctx, policy, func(ctx context.Context) error {
		return n.post(ctx, *d.CallbackURL, body)
	}, nil)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, n.opts.CallbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: endpoint returned %d", ErrDeliveryFailed, resp.StatusCode)
	}

	return nil
}
