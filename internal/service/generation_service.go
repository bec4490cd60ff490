// internal/service/generation_service.go
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"animation-studio/internal/models"
	"animation-studio/internal/validation"
)

// SceneWriter produces Manim scene code for a description.
type SceneWriter interface {
	WriteScene(ctx context.Context, description string) (string, error)
}

// Renderer turns scene code into a video file and returns its path.
type Renderer interface {
	Render(ctx context.Context, code string) (string, error)
}

// GenerationService is the server side of /api/generate.
type GenerationService struct {
	Writer   SceneWriter
	Renderer Renderer
	Store    GenerationStore
}

// Generate writes and renders a scene for description, recording the
// attempt in the store either way.
func (s *GenerationService) Generate(ctx context.Context, description string) (*models.Generation, error) {
	desc, err := validation.NormalizeDescription(description)
	if err != nil {
		return nil, err
	}

	gen, err := s.Store.Create(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("record generation: %w", err)
	}
	log.Printf("generation %s: %q", gen.ID, desc)

	path, err := s.produce(ctx, desc)
	if err != nil {
		s.record(gen, func(ctx context.Context) error { return s.Store.Fail(ctx, gen.ID, err.Error()) })
		return nil, err
	}

	s.record(gen, func(ctx context.Context) error { return s.Store.Complete(ctx, gen.ID, path) })
	gen.Status = models.GenerationCompleted
	gen.VideoPath = path
	log.Printf("generation %s: video at %s", gen.ID, path)
	return gen, nil
}

func (s *GenerationService) produce(ctx context.Context, desc string) (string, error) {
	code, err := s.Writer.WriteScene(ctx, desc)
	if err != nil {
		return "", fmt.Errorf("scene code: %w", err)
	}

	path, err := s.Renderer.Render(ctx, code)
	if err != nil {
		return "", err
	}
	return path, nil
}

// record writes the final status on a fresh context so a cancelled request
// still leaves its row accurate.
func (s *GenerationService) record(gen *models.Generation, write func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := write(ctx); err != nil {
		log.Printf("generation %s: update status: %v", gen.ID, err)
	}
}

func (s *GenerationService) Recent(ctx context.Context, limit int) ([]models.Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Store.List(ctx, limit)
}
