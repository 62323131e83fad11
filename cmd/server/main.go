package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jsalverda/tourney-draft-backend/internal/bracket"
	"github.com/jsalverda/tourney-draft-backend/internal/config"
	"github.com/jsalverda/tourney-draft-backend/internal/httpapi"
	"github.com/jsalverda/tourney-draft-backend/internal/metrics"
	"github.com/jsalverda/tourney-draft-backend/internal/registry"
	"github.com/jsalverda/tourney-draft-backend/internal/store"
	"github.com/jsalverda/tourney-draft-backend/internal/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.Dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	var st bracket.Store
	if cfg.DatabaseURL != "" {
		gs, err := store.NewGorm(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
		st = gs
		logger.Info("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Warn("DATABASE_URL unset, using in-memory store")
	}

	progress := bracket.NewEngine(st, logger)
	issuer := token.NewIssuer(nil)

	reg := registry.New(ctx, registry.Config{
		SweepInterval: cfg.SweepInterval,
		MaxSessionAge: cfg.MaxSessionAge,
		Grace:         cfg.DeadlineGrace,
		// Retirement runs exactly once per session, so the gauge stays
		// balanced even when the events channel drops a notification.
		OnRetire: func(matchID string) {
			issuer.DropMatch(matchID)
			metrics.SessionsActive.Dec()
		},
	}, progress, logger)
	defer reg.Close()

	api := &httpapi.API{
		Registry: reg,
		Issuer:   issuer,
		Progress: progress,
		Logger:   logger,
		TokenTTL: cfg.TokenTTL,
		BaseCtx:  ctx,
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.SetupRoutes(api)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// Gauge and terminal-event bookkeeping.
		for {
			select {
			case <-gctx.Done():
				return nil
			case e, ok := <-reg.Events():
				if !ok {
					return nil
				}
				switch e.Type {
				case registry.EventDraftCompleted:
					metrics.DraftsCompleted.Inc()
				case registry.EventMatchVoided:
					metrics.MatchesVoided.Inc()
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
