// internal/service/generation_store.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"animation-studio/internal/models"

	"github.com/google/uuid"
)

var ErrGenerationNotFound = errors.New("generation not found")

// GenerationStore records every request the generation service handles.
type GenerationStore interface {
	Create(ctx context.Context, description string) (*models.Generation, error)
	Complete(ctx context.Context, id uuid.UUID, videoPath string) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	Get(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	List(ctx context.Context, limit int) ([]models.Generation, error)
	Ping(ctx context.Context) error
}

// Dialect is the SQL flavour behind a SQLGenerationStore.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// SQLGenerationStore keeps generations in the `generations` table of a
// Postgres (lib/pq) or SQLite (modernc) database.
type SQLGenerationStore struct {
	DB      *sql.DB
	Dialect Dialect
	Now     func() time.Time
}

func NewSQLGenerationStore(db *sql.DB, dialect Dialect) *SQLGenerationStore {
	return &SQLGenerationStore{DB: db, Dialect: dialect, Now: time.Now}
}

// ph rewrites $N placeholders for drivers that only take '?'.
func (s *SQLGenerationStore) ph(query string) string {
	if s.Dialect != SQLite {
		return query
	}
	for i := 9; i >= 1; i-- {
		query = strings.ReplaceAll(query, fmt.Sprintf("$%d", i), "?")
	}
	return query
}

// Migrate creates the generations table if it does not exist.
func (s *SQLGenerationStore) Migrate(ctx context.Context) error {
	idType, tsType := "UUID", "TIMESTAMPTZ"
	if s.Dialect == SQLite {
		idType, tsType = "TEXT", "TIMESTAMP"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS generations (
			id          %s PRIMARY KEY,
			description TEXT NOT NULL,
			status      TEXT NOT NULL,
			video_path  TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			created_at  %s NOT NULL,
			updated_at  %s NOT NULL
		)
	`, idType, tsType, tsType)

	if _, err := s.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate generations: %w", err)
	}
	return nil
}

func (s *SQLGenerationStore) Create(ctx context.Context, description string) (*models.Generation, error) {
	now := s.Now().UTC()
	g := &models.Generation{
		ID:          uuid.New(),
		Description: description,
		Status:      models.GenerationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := s.ph(`
		INSERT INTO generations (id, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if _, err := s.DB.ExecContext(ctx, query, g.ID, g.Description, g.Status, g.CreatedAt, g.UpdatedAt); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *SQLGenerationStore) Complete(ctx context.Context, id uuid.UUID, videoPath string) error {
	return s.finish(ctx, id, models.GenerationCompleted, videoPath, "")
}

func (s *SQLGenerationStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, models.GenerationFailed, "", reason)
}

func (s *SQLGenerationStore) finish(ctx context.Context, id uuid.UUID, status, videoPath, reason string) error {
	query := s.ph(`
		UPDATE generations
		SET status     = $1,
		    video_path = $2,
		    error      = $3,
		    updated_at = $4
		WHERE id = $5
	`)

	result, err := s.DB.ExecContext(ctx, query, status, videoPath, reason, s.Now().UTC(), id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrGenerationNotFound
	}
	return nil
}

func (s *SQLGenerationStore) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	query := s.ph(`
		SELECT id, description, status, video_path, error, created_at, updated_at
		FROM generations
		WHERE id = $1
	`)

	g := &models.Generation{}
	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.Description,
		&g.Status,
		&g.VideoPath,
		&g.Error,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// List returns the most recent generations first.
func (s *SQLGenerationStore) List(ctx context.Context, limit int) ([]models.Generation, error) {
	query := s.ph(`
		SELECT id, description, status, video_path, error, created_at, updated_at
		FROM generations
		ORDER BY created_at DESC
		LIMIT $1
	`)

	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.Description, &g.Status, &g.VideoPath, &g.Error, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLGenerationStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// ── Memory store ──────────────────────────────────────────────────────────────

type MemoryGenerationStore struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]models.Generation
	Now         func() time.Time
}

func NewMemoryGenerationStore() *MemoryGenerationStore {
	return &MemoryGenerationStore{generations: make(map[uuid.UUID]models.Generation), Now: time.Now}
}

func (s *MemoryGenerationStore) Create(ctx context.Context, description string) (*models.Generation, error) {
	now := s.Now().UTC()
	g := models.Generation{
		ID:          uuid.New(),
		Description: description,
		Status:      models.GenerationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.generations[g.ID] = g
	s.mu.Unlock()
	return &g, nil
}

func (s *MemoryGenerationStore) Complete(ctx context.Context, id uuid.UUID, videoPath string) error {
	return s.finish(id, models.GenerationCompleted, videoPath, "")
}

func (s *MemoryGenerationStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(id, models.GenerationFailed, "", reason)
}

func (s *MemoryGenerationStore) finish(id uuid.UUID, status, videoPath, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[id]
	if !ok {
		return ErrGenerationNotFound
	}
	g.Status, g.VideoPath, g.Error, g.UpdatedAt = status, videoPath, reason, s.Now().UTC()
	s.generations[id] = g
	return nil
}

func (s *MemoryGenerationStore) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.generations[id]
	if !ok {
		return nil, ErrGenerationNotFound
	}
	return &g, nil
}

func (s *MemoryGenerationStore) List(ctx context.Context, limit int) ([]models.Generation, error) {
	s.mu.RLock()
	out := make([]models.Generation, 0, len(s.generations))
	for _, g := range s.generations {
		out = append(out, g)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryGenerationStore) Ping(ctx context.Context) error { return nil }
