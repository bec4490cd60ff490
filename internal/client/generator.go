// Package client talks to the animation generation service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"animation-studio/internal/validation"
)

const (
	DefaultURL     = "http://localhost:5000/api/generate"
	DefaultTimeout = 300 * time.Second
)

// Messages surfaced to the user, one per failure kind.
const (
	MsgTimeout      = "Request timed out. The animation generation is taking too long."
	MsgFailed       = "Failed to generate animation"
	MsgEmptyPayload = "Received empty video file"
	MsgUnknown      = "Failed to generate animation. Please try again."
)

type Kind int

const (
	Success Kind = iota
	Timeout
	HTTPError
	EmptyPayload
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case HTTPError:
		return "http_error"
	case EmptyPayload:
		return "empty_payload"
	default:
		return "unknown"
	}
}

// Result is the outcome of one generation request. Video and ContentType are
// set only for Success; Message only for the failure kinds.
type Result struct {
	Kind        Kind
	Video       []byte
	ContentType string
	Status      int
	Message     string
	Err         error
}

func (r Result) OK() bool { return r.Kind == Success }

// Generator issues generation requests. Safe for concurrent use.
type Generator struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
}

func NewGenerator(url string, timeout time.Duration) *Generator {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The context deadline is the only timeout; the transport must not cut
	// a long render short on its own.
	return &Generator{URL: url, Timeout: timeout, HTTP: &http.Client{}}
}

type generateRequest struct {
	Description string `json:"description"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Generate posts description to the service and waits for the video, at
// most g.Timeout. It never returns an error; every failure is a Result kind.
func (g *Generator) Generate(ctx context.Context, description string) Result {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	payload, err := json.Marshal(generateRequest{Description: description})
	if err != nil {
		return Result{Kind: Unknown, Message: MsgUnknown, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{Kind: Unknown, Message: MsgUnknown, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return failure(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Kind:    HTTPError,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.Body),
			Err:     fmt.Errorf("generation service returned status %d", resp.StatusCode),
		}
	}

	video, err := io.ReadAll(io.LimitReader(resp.Body, validation.MaxVideoSize+1))
	if err != nil {
		return failure(ctx, err)
	}

	if err := validation.ValidateVideo(video); err != nil {
		if errors.Is(err, validation.ErrEmptyVideo) {
			return Result{Kind: EmptyPayload, Status: resp.StatusCode, Message: MsgEmptyPayload, Err: err}
		}
		return Result{Kind: Unknown, Status: resp.StatusCode, Message: MsgUnknown, Err: err}
	}

	return Result{
		Kind:        Success,
		Video:       video,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
	}
}

// failure classifies a transport error. A deadline hit is a Timeout no matter
// which layer reported it.
func failure(ctx context.Context, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{Kind: Timeout, Message: MsgTimeout, Err: err}
	}
	return Result{Kind: Unknown, Message: MsgUnknown, Err: err}
}

func errorMessage(body io.Reader) string {
	var eb errorBody
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&eb); err != nil {
		return MsgFailed
	}
	if msg := validation.PlainText(eb.Error); msg != "" {
		return msg
	}
	return MsgFailed
}
