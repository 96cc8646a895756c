package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	config "github.com/avvvet/ludo-services/configs"
	"github.com/avvvet/ludo-services/internal/gamesvc/app"
	"github.com/avvvet/ludo-services/internal/gamesvc/broker"
	gamecfg "github.com/avvvet/ludo-services/internal/gamesvc/config"
	"github.com/avvvet/ludo-services/internal/gamesvc/handlers"
	"github.com/avvvet/ludo-services/internal/gamesvc/service"
)

const SERVICE_NAME = "game"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
}

func main() {
	cfg := gamecfg.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Fatalf("Failed to open backends: %v", err)
	}
	defer backends.Close()

	lifecycle := backends.Lifecycle(cfg)
	orchestrator := service.NewOrchestrator(service.Deps{
		Tables:      backends.Tables,
		Locker:      backends.Locker,
		Tournaments: backends.Tournaments,
		Results:     backends.Results,
		Wallet:      backends.Wallet,
		Sink:        backends.Queue,
		Lifecycle:   lifecycle,
	}, service.Options{
		Rules:           cfg.Rules,
		NextActionDelay: cfg.NextActionDelay,
		EndGameDelay:    cfg.EndGameDelay,
		LockWait:        cfg.LockWait,
	})
	// timers stop before the deferred Close flushes their events
	defer orchestrator.Stop()

	// tables left by a previous process have lost their timers
	if _, err := orchestrator.Recover(ctx); err != nil {
		log.Errorf("Failed to recover table timers: %v", err)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	h := handlers.NewHandler(handlers.InitAuth(), lifecycle, cfg.HTTPPort)
	h.SetRoutes(r)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	b := broker.NewBroker(backends.Nats.Conn, orchestrator, backends.Wallet, cfg.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx, "gamesvc", cfg.Workers)
	})
	g.Go(func() error {
		log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("%s service stopped with error: %v", SERVICE_NAME, err)
		return
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
