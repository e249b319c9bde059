// Package main is the entry point for the background worker. It relays
// cascade outbox events, moves exhausted ones to the dead letter table and
// keeps the row state cache current through LISTEN.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"softcascade/internal/app"
	"softcascade/internal/config"
	"softcascade/internal/core/entity"
	"softcascade/internal/infrastructure/cache"
	"softcascade/internal/infrastructure/notify"
	"softcascade/internal/infrastructure/storage/postgres"
	"softcascade/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting cascade worker")

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer a.Close()

	states := cache.NewStateCache(a.Pool.Pool, cfg.NotifyChannel, a.Repo.LoadState)
	states.OnInvalidation(func(channel, payload string) {
		log.Debugw("row state invalidated", "channel", channel, "ref", payload)
	})
	if err := states.Start(ctx); err != nil {
		log.Fatalw("failed to start state cache", "error", err)
	}

	worker := NewWorker(a, states, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	states.Stop()
	log.Info("worker stopped")
}

// Worker relays outbox events.
type Worker struct {
	app    *app.App
	states *cache.StateCache
	relay  *postgres.OutboxRelay
	log    *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(a *app.App, states *cache.StateCache, log *logger.Logger) *Worker {
	w := &Worker{
		app:    a,
		states: states,
		log:    log.WithComponent("worker"),
	}
	w.relay = postgres.NewOutboxRelay(a.Pool.Pool, a.Config.OutboxBatchSize, postgres.OutboxHandlerFunc(w.handle))
	return w
}

// Run polls the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.app.Config.OutboxPollInterval)
	defer ticker.Stop()

	maintenance := time.NewTicker(10 * time.Minute)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := w.relay.ProcessBatch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Errorw("outbox batch failed", "error", err)
				}
				continue
			}
			if n > 0 {
				w.log.Debugw("processed outbox batch", "count", n)
			}

		case <-maintenance.C:
			moved, err := w.relay.MoveToDLQ(ctx)
			if err != nil {
				w.log.Errorw("failed to move messages to DLQ", "error", err)
			} else if moved > 0 {
				w.log.Warnw("moved failed outbox messages to DLQ", "count", moved)
			}
			w.app.Pool.LogStats(ctx)
			stats := w.states.GetStats()
			w.log.Infow("state cache stats", "entries", stats.Entries, "hits", stats.Hits, "misses", stats.Misses)
		}
	}
}

// handle delivers one cascade event. Events superseded by a later cascade on
// the same row (deleted, then restored before delivery) are dropped.
func (w *Worker) handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	var payload notify.RecordPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}

	ref := entity.NewRef(payload.Type, entity.Key(payload.Key))
	state, err := w.states.Get(ctx, ref)
	if err != nil {
		return err
	}

	current := state.Deleted()
	if (msg.EventType == notify.EventSoftDeleted) != current {
		w.log.Debugw("dropping superseded event", "event", msg.EventType, "ref", ref.String())
		return nil
	}

	w.log.Infow("cascade event delivered",
		"event", msg.EventType,
		"ref", ref.String(),
		"deleted_at", payload.DeletedAt,
		"previous", payload.Previous,
		"created_at", msg.CreatedAt,
	)
	return nil
}
