package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	httpapi "github.com/meshdrop/meshdrop/internal/api/http"
	"github.com/meshdrop/meshdrop/internal/config"
	"github.com/meshdrop/meshdrop/internal/repository"
	"github.com/meshdrop/meshdrop/internal/service"
	"github.com/meshdrop/meshdrop/lib/logger/sl"
	"github.com/meshdrop/meshdrop/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	store := repository.NewInMemoryRoomStore(cfg.Room.TTL)
	signalingService := service.NewSignalingService(store, log)

	signalingController := httpapi.NewSignalingController(signalingService, log)
	relayController := httpapi.NewRelayController(cfg.Relay.Timeout, log)
	presenceController := httpapi.NewPresenceController(time.Minute)

	router := httpapi.SetupRouter(signalingController, relayController, presenceController)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, store, cfg.Room.SweepInterval, log)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", sl.Err(err))
		os.Exit(1)
	}
}

// sweepLoop bounds memory growth from abandoned rooms: lazy expiry on read
// handles the common case, the periodic sweep handles rooms nobody reads.
func sweepLoop(ctx context.Context, store repository.RoomStore, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.Sweep(); removed > 0 {
				log.Info("expired rooms swept", slog.Int("removed", removed))
			}
		}
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
