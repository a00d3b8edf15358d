package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/journal"
	"github.com/mattjoyce/unitd/internal/storage"
)

// startJournal opens the state database, records the session and starts a
// recorder on hub. The returned stop func drains the recorder and closes
// the database.
func startJournal(ctx context.Context, path string, hub *events.Hub, sessionID, prefix string) (*journal.Store, func(), error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open state: %w", err)
	}
	store := journal.NewStore(db)
	if err := store.BeginSession(ctx, sessionID, prefix, time.Now()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("record session: %w", err)
	}

	recCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	rec := journal.NewRecorder(store, hub)
	go func() {
		defer close(done)
		_ = rec.Run(recCtx)
	}()

	stop := func() {
		cancel()
		<-done
		_ = db.Close()
	}
	return store, stop, nil
}

// openJournal opens the state database read side for query commands.
func openJournal(ctx context.Context, path string) (*journal.Store, func(), error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open state: %w", err)
	}
	return journal.NewStore(db), func() { _ = db.Close() }, nil
}
