package models

import (
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is how a submission's creation time is shown in the history list.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// Submission is one successful generation kept in a session's history.
type Submission struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	VideoKey    string    `json:"video_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// Timestamp returns the display-formatted creation time.
func (s Submission) Timestamp() string {
	return s.CreatedAt.Local().Format(TimestampLayout)
}

// SessionView is a point-in-time copy of a session, safe to hand to templates.
type SessionView struct {
	SessionID    uuid.UUID    `json:"session_id"`
	Input        string       `json:"input"`
	Loading      bool         `json:"loading"`
	CurrentVideo string       `json:"current_video,omitempty"`
	Message      string       `json:"message,omitempty"`
	History      []Submission `json:"history"`
}
