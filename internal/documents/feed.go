package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/scrivener/pkg/events"
	"github.com/JaimeStill/scrivener/pkg/lifecycle"
)

// Feed dispatches committed change-feed rows to the change queue. A single
// polling goroutine publishes record images in seq order and marks each row
// dispatched only after publishing, so delivery is at-least-once and
// per-record order is preserved. Consumers deduplicate via record state,
// never via the feed itself.
type Feed struct {
	db       *sql.DB
	changes  *events.Queue[Document]
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewFeed creates a change feed dispatcher.
func NewFeed(
	db *sql.DB,
	changes *events.Queue[Document],
	interval time.Duration,
	batch int,
	logger *slog.Logger,
) *Feed {
	return &Feed{
		db:       db,
		changes:  changes,
		interval: interval,
		batch:    batch,
		logger:   logger.With("system", "feed"),
	}
}

// Start launches the polling loop and registers its shutdown hook.
func (f *Feed) Start(lc *lifecycle.Coordinator) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				if err := f.dispatch(lc.Context()); err != nil {
					f.logger.Error("feed dispatch failed", "error", err)
				}
			}
		}
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-done
		f.logger.Info("feed dispatcher stopped")
	})

	f.logger.Info("feed dispatcher started", "interval", f.interval, "batch", f.batch)
}

type change struct {
	seq    int64
	record Document
}

func (f *Feed) dispatch(ctx context.Context) error {
	pending, err := f.pending(ctx)
	if err != nil {
		return err
	}

	for _, c := range pending {
		if err := f.changes.Publish(ctx, c.record); err != nil {
			return err
		}

		if _, err := f.db.ExecContext(
			ctx,
			"UPDATE document_changes SET dispatched = true WHERE seq = $1",
			c.seq,
		); err != nil {
			return fmt.Errorf("mark change %d dispatched: %w", c.seq, err)
		}
	}

	return nil
}

func (f *Feed) pending(ctx context.Context) ([]change, error) {
	rows, err := f.db.QueryContext(
		ctx,
		"SELECT seq, record FROM document_changes WHERE dispatched = false ORDER BY seq LIMIT $1",
		f.batch,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending changes: %w", err)
	}
	defer rows.Close()

	changes := make([]change, 0)
	for rows.Next() {
		var (
			c   change
			raw []byte
		)
		if err := rows.Scan(&c.seq, &raw); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if err := json.Unmarshal(raw, &c.record); err != nil {
			return nil, fmt.Errorf("unmarshal change %d: %w", c.seq, err)
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}
