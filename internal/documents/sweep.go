package documents

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/scrivener/pkg/events"
	"github.com/JaimeStill/scrivener/pkg/lifecycle"
)

const sweepQuery = `SELECT file_id FROM documents WHERE status IN ($1, $2)`

// Sweeper requeues records left non-terminal by an earlier process exit.
// Stored events live only in process memory, so a restart loses whatever was
// queued; the ledger is the durable source, and a startup sweep republishes
// an event for every RECEIVED or PROCESSING record. The worker's status
// guards absorb any duplicate this produces.
type Sweeper struct {
	db     *sql.DB
	stored *events.Queue[StoredEvent]
	logger *slog.Logger
}

// NewSweeper creates a startup sweeper over the documents ledger.
func NewSweeper(db *sql.DB, stored *events.Queue[StoredEvent], logger *slog.Logger) *Sweeper {
	return &Sweeper{
		db:     db,
		stored: stored,
		logger: logger.With("system", "sweep"),
	}
}

// Start registers the sweep as a startup hook.
func (s *Sweeper) Start(lc *lifecycle.Coordinator) {
	lc.OnStartup(func() {
		if err := s.sweep(lc.Context()); err != nil {
			s.logger.Error("startup sweep failed", "error", err)
		}
	})
}

func (s *Sweeper) sweep(ctx context.Context) error {
	ids, err := s.stale(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.publish(ctx, ids); err != nil {
		return err
	}

	s.logger.Info("requeued stale records", "count", len(ids))
	return nil
}

func (s *Sweeper) stale(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, sweepQuery, StatusReceived, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("query stale records: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale record: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Sweeper) publish(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if err := s.stored.Publish(ctx, StoredEvent{FileID: id}); err != nil {
			return fmt.Errorf("requeue record %s: %w", id, err)
		}
	}
	return nil
}
