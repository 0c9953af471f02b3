// Package events provides in-process message queues with at-least-once
// delivery semantics. Consumers must be idempotent: a message whose handler
// returns an error is redelivered until its delivery budget is exhausted,
// so the same message can be observed more than once.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/scrivener/pkg/lifecycle"
)

// Handler processes a single message. A non-nil error requeues the message
// for redelivery; exhausting the delivery budget drops it with an error log.
type Handler[T any] func(ctx context.Context, msg T) error

type envelope[T any] struct {
	msg      T
	delivery int
}

// Queue is a buffered in-process message queue consumed by a fixed pool of
// worker goroutines coordinated through the application lifecycle.
type Queue[T any] struct {
	name          string
	ch            chan envelope[T]
	maxDeliveries int
	logger        *slog.Logger
	drop          func(ctx context.Context, msg T, err error)
}

// NewQueue creates a queue with the given buffer size and per-message
// delivery budget.
func NewQueue[T any](name string, size, maxDeliveries int, logger *slog.Logger) *Queue[T] {
	if size < 1 {
		size = 1
	}
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}

	return &Queue[T]{
		name:          name,
		ch:            make(chan envelope[T], size),
		maxDeliveries: maxDeliveries,
		logger:        logger.With("queue", name),
	}
}

// OnDrop registers a callback invoked when a message exhausts its delivery
// budget, carrying the message and the final handler error. Must be set
// before Start.
func (q *Queue[T]) OnDrop(fn func(ctx context.Context, msg T, err error)) {
	q.drop = fn
}

// Name returns the queue name.
func (q *Queue[T]) Name() string {
	return q.name
}

// Publish enqueues a message, blocking while the buffer is full.
// Returns the context error if ctx is cancelled before space is available.
func (q *Queue[T]) Publish(ctx context.Context, msg T) error {
	select {
	case q.ch <- envelope[T]{msg: msg, delivery: 1}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", q.name, ctx.Err())
	}
}

// Start launches workers consumer goroutines that run until the lifecycle
// context is cancelled, and registers a shutdown hook that waits for them
// to finish their in-flight messages.
func (q *Queue[T]) Start(lc *lifecycle.Coordinator, workers int, handler Handler[T]) {
	if workers < 1 {
		workers = 1
	}

	g := &errgroup.Group{}
	for range workers {
		g.Go(func() error {
			q.consume(lc.Context(), handler)
			return nil
		})
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		g.Wait()
		q.logger.Info("queue consumers stopped")
	})

	q.logger.Info("queue consumers started", "workers", workers)
}

func (q *Queue[T]) consume(ctx context.Context, handler Handler[T]) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-q.ch:
			q.deliver(ctx, env, handler)
		}
	}
}

func (q *Queue[T]) deliver(ctx context.Context, env envelope[T], handler Handler[T]) {
	err := handler(ctx, env.msg)
	if err == nil {
		return
	}

	if env.delivery >= q.maxDeliveries {
		q.logger.Error(
			"message dropped after delivery budget exhausted",
			"deliveries", env.delivery,
			"error", err,
		)
		if q.drop != nil {
			q.drop(ctx, env.msg, err)
		}
		return
	}

	q.logger.Warn("handler failed, requeueing message", "delivery", env.delivery, "error", err)

	env.delivery++
	select {
	case q.ch <- env:
	case <-ctx.Done():
	}
}
