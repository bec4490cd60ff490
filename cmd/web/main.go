// cmd/web/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"animation-studio/internal/client"
	"animation-studio/internal/config"
	"animation-studio/internal/handler"
	"animation-studio/internal/hub"
	"animation-studio/internal/service"
	"animation-studio/internal/storage"

	"github.com/gorilla/handlers"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadWeb()

	// ── Video store ───────────────────────────────────────────────────────────
	var videos storage.Storage
	if cfg.VideoDir != "" {
		local, err := storage.NewLocalStorage(cfg.VideoDir)
		if err != nil {
			log.Fatal(err)
		}
		videos = local
		log.Println("Keeping videos on disk at", cfg.VideoDir)
	} else {
		videos = storage.NewMemoryStorage()
		log.Println("Keeping videos in memory")
	}

	// Background work (generations, hub, reaper) stops when ctx is cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := hub.NewHub()
	go events.Run(ctx)

	// ── Sessions ──────────────────────────────────────────────────────────────
	sessions := service.NewSessionService(
		client.NewGenerator(cfg.GeneratorURL, cfg.GenerateTimeout),
		videos,
		events,
	)
	sessions.HistoryLimit = cfg.HistoryLimit
	sessions.TTL = cfg.SessionTTL
	go sessions.RunReaper(ctx, 10*time.Minute)

	studio := &handler.StudioHandler{
		Sessions:      sessions,
		Videos:        videos,
		Hub:           events,
		SecureCookies: cfg.SecureCookies,
		BaseCtx:       ctx,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, handler.StudioRoutes(studio))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── Graceful Shutdown ──────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Studio running on :%s (generator %s)", cfg.Port, cfg.GeneratorURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error:", err)
		}
	}()

	<-quit
	log.Println("Shutdown signal received, draining requests...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Forced shutdown:", err)
	}

	// Running generations abort; their sessions settle back to idle.
	cancel()
	sessions.Wait()
	log.Println("Server stopped cleanly")
}
