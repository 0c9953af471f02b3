package main

import (
	"net/http"

	"github.com/JaimeStill/scrivener/internal/config"
	"github.com/JaimeStill/scrivener/internal/documents"
	"github.com/JaimeStill/scrivener/internal/extraction"
	"github.com/JaimeStill/scrivener/internal/infrastructure"
	"github.com/JaimeStill/scrivener/internal/notify"
	"github.com/JaimeStill/scrivener/pkg/events"
	"github.com/JaimeStill/scrivener/pkg/lifecycle"
	"github.com/JaimeStill/scrivener/pkg/pagination"
)

// Pipeline wires the asynchronous processing stages: submissions publish
// stored events, the extraction worker consumes them, the feed dispatcher
// streams ledger changes, and the notifier consumes those. All stages
// communicate only through the ledger and the blob store.
type Pipeline struct {
	Stored    *events.Queue[documents.StoredEvent]
	Changes   *events.Queue[documents.Document]
	Documents documents.System
	Feed      *documents.Feed
	Worker    *extraction.Worker
	Notifier  *notify.Notifier
	Sweeper   *documents.Sweeper
}

func NewPipeline(
	cfg *config.Config,
	infra *infrastructure.Infrastructure,
	pageCfg pagination.Config,
) *Pipeline {
	stored := events.NewQueue[documents.StoredEvent](
		"document-stored",
		cfg.Pipeline.QueueSize,
		cfg.Pipeline.QueueDeliveries,
		infra.Logger,
	)

	changes := events.NewQueue[documents.Document](
		"record-changed",
		cfg.Pipeline.QueueSize,
		cfg.Pipeline.QueueDeliveries,
		infra.Logger,
	)

	docs := documents.New(
		infra.Database.Connection(),
		infra.Storage,
		stored,
		infra.Logger,
		pageCfg,
	)

	feed := documents.NewFeed(
		infra.Database.Connection(),
		changes,
		cfg.Pipeline.FeedPollIntervalDuration(),
		cfg.Pipeline.FeedBatchSize,
		infra.Logger,
	)

	worker := extraction.NewWorker(
		docs,
		infra.Storage,
		extraction.NewFitzEngine(),
		infra.Logger,
		extraction.Options{
			LookupAttempts:     cfg.Pipeline.LookupAttempts,
			ExtractionAttempts: cfg.Pipeline.ExtractionAttempts,
			ExtractionTimeout:  cfg.Pipeline.ExtractionTimeoutDuration(),
			RetryBase:          cfg.Pipeline.RetryBaseDuration(),
			RetryCap:           cfg.Pipeline.RetryCapDuration(),
		},
	)

	notifier := notify.New(
		docs,
		callbackClient(&cfg.Pipeline),
		infra.Logger,
		notify.Options{
			DeliveryAttempts: cfg.Pipeline.DeliveryAttempts,
			CallbackTimeout:  cfg.Pipeline.CallbackTimeoutDuration(),
			RetryBase:        cfg.Pipeline.RetryBaseDuration(),
			RetryCap:         cfg.Pipeline.RetryCapDuration(),
		},
	)

	sweeper := documents.NewSweeper(
		infra.Database.Connection(),
		stored,
		infra.Logger,
	)

	return &Pipeline{
		Stored:    stored,
		Changes:   changes,
		Documents: docs,
		Feed:      feed,
		Worker:    worker,
		Notifier:  notifier,
		Sweeper:   sweeper,
	}
}

// Start launches the queue consumers, the feed dispatcher, and the startup
// sweep that requeues records left non-terminal by an earlier shutdown.
func (p *Pipeline) Start(lc *lifecycle.Coordinator, cfg *config.PipelineConfig) {
	p.Stored.OnDrop(p.Worker.Abandon)
	p.Stored.Start(lc, cfg.StoreEventWorkers, p.Worker.Handle)
	p.Changes.Start(lc, cfg.NotifyWorkers, p.Notifier.Handle)
	p.Feed.Start(lc)
	p.Sweeper.Start(lc)
}

func callbackClient(cfg *config.PipelineConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.CallbackTimeoutDuration(),
	}
}
