package infrastructure

import (
	"context"

	"fable/internal/config"
	"fable/internal/repository"
	"fable/internal/service"
	transportHTTP "fable/internal/transport/http"
	transportNATS "fable/internal/transport/nats"
	"fable/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	store := repository.NewStore(db)
	dedup := repository.NewEventDeduper(rdb)

	// ── Bus wiring (optional) ─────────────────────────────────────────────
	var bus service.MessageBus

	nc, err := connectNats(cfg)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	if nc != nil {
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)
	}

	// ── Services ──────────────────────────────────────────────────────────
	ledger := service.NewLedgerService(store, bus)
	quests := service.NewQuestService(store, bus)
	webhook := service.NewSubscriptionService(store, dedup, []byte(cfg.WebhookSecret))

	// ── Servers ───────────────────────────────────────────────────────────
	var servers []Server
	servers = append(servers, worker.NewExpirySweeper(store, cfg.SweepInterval))

	if nc != nil {
		servers = append(servers, transportNATS.NewHandler(quests, nc))
	}
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, ledger, quests, webhook))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
