package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pushupChallengeAPI/handlers"
	"pushupChallengeAPI/internal/config"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/store"
	"pushupChallengeAPI/internal/timezone"
	"pushupChallengeAPI/internal/workers"
	"pushupChallengeAPI/middleware"
	"pushupChallengeAPI/services"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	st, err := store.New(initCtx, cfg.Database, log)
	if err != nil {
		cancel()
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Backend, err)
	}
	defer func() {
		log.Info("Closing store...")
		st.Close()
	}()
	log.Infof("Connected to %s store", cfg.Database.Backend)

	persisted, err := st.LoadTimezone(initCtx)
	cancel()
	if err != nil {
		log.Warnf("Could not load persisted timezone: %v", err)
	}
	tz := timezone.ResolveInitial(cfg.Timezone, persisted)
	clock := timezone.NewClock(tz, timezone.WithPersister(st), timezone.WithLogger(log))

	challengeService := services.NewChallengeService(st, clock, log)
	userService := services.NewUserService(st, clock, log)

	restoreCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := challengeService.RestoreTimezone(restoreCtx, cfg.Timezone); err != nil {
		log.Warnf("Could not restore challenge timezone: %v", err)
	}
	cancel()
	log.Infof("Challenge timezone: %s", clock.Timezone())

	middleware.InitPrometheus(prometheus.DefaultRegisterer)

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	go limiter.Cleanup(ctx)

	workers.NewDayTracker(challengeService, time.Minute, log).Start(ctx)

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:     cfg,
		Challenges: challengeService,
		Users:      userService,
		Limiter:    limiter,
		Metrics:    promhttp.Handler(),
		Pprof:      http.DefaultServeMux,
		Log:        log,
	})

	server := http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}
	log.Info("Server shutdown complete")
}
