package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"cleaning_booking/internal/adapters/backend"
	"cleaning_booking/internal/adapters/observability"
	"cleaning_booking/internal/app"
	"cleaning_booking/internal/shared"
	mysqlrepo "cleaning_booking/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	metricsSrv := observability.Serve(cfg.MetricsAddr, observability.InitRegistry())
	if metricsSrv != nil {
		defer metricsSrv.Close()
	}

	log.Info().
		Str("base", cfg.BackendBase).
		Int("workers", cfg.SyncWorkers).
		Int("batch", cfg.SyncBatch).
		Dur("interval", cfg.SyncInterval).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	client, err := backend.New(cfg.BackendBase, cfg.BackendKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}

	svc := app.NewSyncService(mysqlrepo.New(db), client, cfg.SyncWorkers, nil)
	svc.OnResult = observability.ObserveSync

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		synced, failed, err := svc.SyncOnce(ctx, cfg.SyncBatch)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("kind", observability.LabelErr(err)).Msg("sync run failed")
		} else {
			log.Info().Int("synced", synced).Int("failed", failed).Msg("sync run completed")
		}
		// a zero interval means one pass, e.g. from cron
		if cfg.SyncInterval <= 0 || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.SyncInterval):
		}
	}
}
