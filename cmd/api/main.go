package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "cleaning_booking/internal/adapters/http_server"
	"cleaning_booking/internal/adapters/observability"
	redisad "cleaning_booking/internal/adapters/redis"
	"cleaning_booking/internal/app"
	"cleaning_booking/internal/pricing"
	"cleaning_booking/internal/shared"
	mysqlrepo "cleaning_booking/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	metricsSrv := observability.Serve(cfg.MetricsAddr, reg)

	pcfg, err := pricing.LoadConfig(cfg.PricingFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.PricingFile).Msg("pricing config invalid")
	}
	log.Info().Int("extras", len(pcfg.Extras)).Str("file", cfg.PricingFile).Msg("pricing loaded")

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}

	// deps
	repo := mysqlrepo.New(db)
	q := app.NewQuoteService(pcfg)
	b := app.NewBookingService(pcfg, repo, cache, app.Options{
		DraftTTL:      cfg.DraftTTL,
		SubmitTimeout: cfg.SubmitTimeout,
		SubmitLockTTL: cfg.SubmitLockTTL,
		PhoneRegion:   cfg.PhoneRegion,
		OnUpsell:      observability.ObserveUpsell,
	})

	// http
	srv := server.New(cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, B: b})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(sctx)
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
