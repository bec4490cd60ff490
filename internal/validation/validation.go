package validation

import (
	"errors"
	"html"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxDescriptionLength = 2000
	MaxVideoSize         = 500 * 1024 * 1024 // 500MB
)

var (
	ErrEmptyDescription   = errors.New("description is required")
	ErrDescriptionTooLong = errors.New("description too long - maximum 2000 characters")
	ErrEmptyVideo         = errors.New("received empty video file")
	ErrVideoTooLarge      = errors.New("video too large - maximum 500MB allowed")
)

var strict = bluemonday.StrictPolicy()

// NormalizeDescription trims surrounding whitespace from a user-entered
// description. The text is otherwise sent as typed. A description that is
// empty after trimming yields ErrEmptyDescription.
func NormalizeDescription(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "", ErrEmptyDescription
	}

	if len([]rune(clean)) > MaxDescriptionLength {
		return "", ErrDescriptionTooLong
	}

	return clean, nil
}

// PlainText strips markup from text received from another service before it
// is shown to the user.
func PlainText(s string) string {
	// StrictPolicy escapes what it keeps; callers want plain text.
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

func ValidateVideo(data []byte) error {

	if len(data) == 0 {
		return ErrEmptyVideo
	}

	if len(data) > MaxVideoSize {
		return ErrVideoTooLarge
	}

	return nil
}

var videoTypes = map[string]string{
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"gif":  "image/gif",
}

// VideoContentType guesses the content type of a stored video from its name.
func VideoContentType(filename string) string {

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}

	return "application/octet-stream"
}

// VideoExtension maps a response content type back to a file extension.
// Unknown types are stored as mp4, which is what the generator renders.
func VideoExtension(contentType string) string {

	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for ext, ct := range videoTypes {
		if ct == mediaType {
			return "." + ext
		}
	}

	return ".mp4"
}
