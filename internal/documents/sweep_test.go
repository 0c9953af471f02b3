package documents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/scrivener/pkg/events"
	"github.com/JaimeStill/scrivener/pkg/lifecycle"
)

func TestSweeperRepublishesStaleRecords(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := events.NewQueue[StoredEvent]("document-stored", 16, 1, logger)
	s := NewSweeper(nil, q, logger)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	done := make(chan struct{})

	lc := lifecycle.New()
	q.Start(lc, 1, func(_ context.Context, evt StoredEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen[evt.FileID] = true
		if len(seen) == len(ids) {
			close(done)
		}
		return nil
	})

	if err := s.publish(context.Background(), ids); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for requeued events")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("record %s was never requeued", id)
		}
	}

	lc.Shutdown(time.Second)
}

func TestSweeperPublishCancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := events.NewQueue[StoredEvent]("document-stored", 1, 1, logger)
	s := NewSweeper(nil, q, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Buffer holds one event; the second publish blocks and must observe the
	// cancelled context instead of hanging startup.
	err := s.publish(ctx, []uuid.UUID{uuid.New(), uuid.New()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
