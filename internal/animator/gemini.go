package animator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/option"
)

var ErrEmptyScene = errors.New("model returned no scene code")

// CompleteFunc sends one prompt to a model and returns its text reply.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// GeminiWriter asks a Gemini model for Manim scene code.
type GeminiWriter struct {
	Prompt   *Prompt
	Complete CompleteFunc
	MaxTries uint

	client *genai.Client
}

type GeminiConfig struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	Model           string
}

func NewGeminiWriter(ctx context.Context, cfg GeminiConfig, prompt *Prompt) (*GeminiWriter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = prompt.Model
	}
	model := client.GenerativeModel(name)

	complete := func(ctx context.Context, text string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(text))
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", nil
		}

		var out strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				out.WriteString(string(t))
			}
		}
		return out.String(), nil
	}

	return &GeminiWriter{Prompt: prompt, Complete: complete, MaxTries: 3, client: client}, nil
}

// WriteScene returns cleaned scene code for description. Model errors are
// retried with exponential backoff; an empty reply is not.
func (w *GeminiWriter) WriteScene(ctx context.Context, description string) (string, error) {
	text, err := w.Prompt.Render(description)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	operation := func() (string, error) {
		reply, err := w.Complete(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			log.Printf("gemini: %v (retrying)", err)
			return "", err
		}

		code := CleanCode(reply)
		if code == "" {
			return "", backoff.Permanent(ErrEmptyScene)
		}
		return code, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second

	tries := w.MaxTries
	if tries == 0 {
		tries = 1
	}
	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(tries))
}

func (w *GeminiWriter) Close() error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}
