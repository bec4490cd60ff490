// cmd/api/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"animation-studio/internal/animator"
	"animation-studio/internal/config"
	"animation-studio/internal/handler"
	"animation-studio/internal/service"

	"github.com/gorilla/handlers"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadAPI()

	// ── Generation records ────────────────────────────────────────────────────
	store, closeStore, err := openStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to open generation store: ", err)
	}
	defer closeStore()

	// ── Scene writer & renderer ───────────────────────────────────────────────
	if cfg.ProjectID == "" {
		log.Fatal("GOOGLE_CLOUD_PROJECT is required")
	}

	prompt, err := animator.LoadPrompt(cfg.PromptFile)
	if err != nil {
		log.Fatal("Failed to load prompt: ", err)
	}

	writer, err := animator.NewGeminiWriter(context.Background(), animator.GeminiConfig{
		ProjectID:       cfg.ProjectID,
		Location:        cfg.Location,
		CredentialsFile: cfg.CredentialsFile,
		Model:           cfg.GeminiModel,
	}, prompt)
	if err != nil {
		log.Fatal(err)
	}
	defer writer.Close()

	manim := animator.FindManim(cfg.ManimBin)
	renderer, err := animator.NewManimRenderer(manim, cfg.MediaDir, cfg.RenderQuality, cfg.RenderTimeout)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Using manim command %q, media dir %s", strings.Join(manim, " "), cfg.MediaDir)

	// ── Services & Handlers ───────────────────────────────────────────────────
	generateHandler := &handler.GenerateHandler{
		Service: &service.GenerationService{
			Writer:   writer,
			Renderer: renderer,
			Store:    store,
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.GenerateRate), cfg.GenerateBurst),
	}

	r := handler.APIRoutes(generateHandler)

	// ── CORS: the studio page may call the API straight from the browser ─────
	cors := handlers.CORS(
		handlers.AllowedOrigins(strings.Split(cfg.AllowedOrigins, ",")),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.ExposedHeaders([]string{"Content-Disposition", "X-Generation-ID"}),
	)

	// ── HTTP Server with timeouts ──────────────────────────────────────────────
	// A render may take the full RENDER_TIMEOUT plus the model call, so the
	// write timeout has to cover both.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, cors(r))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RenderTimeout + 2*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// ── Graceful Shutdown ──────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Generation service running on :%s", cfg.Port)
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
		return
	}
	log.Println("Server stopped cleanly")
}

// openStore picks the generation store from DATABASE_URL:
// postgres://… uses lib/pq, sqlite://path uses modernc sqlite, empty keeps
// records in memory.
func openStore(dbURL string) (service.GenerationStore, func(), error) {
	if dbURL == "" {
		log.Println("DATABASE_URL not set, keeping generation records in memory")
		return service.NewMemoryGenerationStore(), func() {}, nil
	}

	driver, dsn, dialect := "postgres", dbURL, service.Postgres
	if strings.HasPrefix(dbURL, "sqlite://") {
		driver, dsn, dialect = "sqlite", strings.TrimPrefix(dbURL, "sqlite://"), service.SQLite
	} else if !strings.HasPrefix(dbURL, "postgres://") && !strings.HasPrefix(dbURL, "postgresql://") {
		return nil, nil, errors.New("DATABASE_URL must start with postgres://, postgresql:// or sqlite://")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}

	// Connection pool. SQLite serialises writers, so one connection there.
	if dialect == service.SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Verify connection at startup so a bad URL fails before serving traffic.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	store := service.NewSQLGenerationStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Printf("Recording generations in %s", driver)
	return store, func() { db.Close() }, nil
}
