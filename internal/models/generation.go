package models

import (
	"time"

	"github.com/google/uuid"
)

// Generation statuses recorded by the generation service.
const (
	GenerationPending   = "pending"
	GenerationCompleted = "completed"
	GenerationFailed    = "failed"
)

// Generation is the service-side record of one /api/generate request.
type Generation struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	VideoPath   string    `json:"video_path,omitempty"`
	Error       string    `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
