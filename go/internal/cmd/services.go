package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/resendio/resend/go/internal/config"
	"github.com/resendio/resend/go/internal/delivery"
	"github.com/resendio/resend/go/internal/session"
)

// setupStore picks the marker store per config. The returned cleanup closes
// whatever the store sits on (nil when nothing to close).
func setupStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (session.Store, func(), error) {
	switch cfg.Storage.Mode {
	case config.StoragePostgres:
		db, err := setupDatabase()
		if err != nil {
			return nil, nil, err
		}
		store := session.NewPostgresStore(db)
		if err := store.Init(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	case config.StorageMemory:
		return session.NewMemoryStore(clock), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
}

// setupWorker picks the delivery worker per config.
func setupWorker(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (delivery.Worker, func(), error) {
	switch cfg.Delivery.Mode {
	case config.DeliveryNATS:
		nc, js, err := delivery.Connect(cfg.Delivery.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		if _, err := delivery.EnsureStream(ctx, js, cfg.Delivery.Stream, cfg.Delivery.SubjectPrefix); err != nil {
			nc.Close()
			return nil, nil, err
		}
		worker := delivery.NewNATSWorker(js, cfg.Delivery.SubjectPrefix, clock)
		return worker, func() { nc.Close() }, nil
	case config.DeliveryLog:
		return delivery.NewLogWorker(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown delivery mode %q", cfg.Delivery.Mode)
	}
}
