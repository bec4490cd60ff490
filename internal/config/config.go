// Package config reads process settings from the environment.
package config

import (
	"log"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env in dev only; production injects env vars through infra.
func LoadDotEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env: %v", err)
	}
}

// Web configures cmd/web, the studio page.
type Web struct {
	Port            string
	GeneratorURL    string
	GenerateTimeout time.Duration
	HistoryLimit    int
	SessionTTL      time.Duration
	VideoDir        string
	SecureCookies   bool
}

func LoadWeb() Web {
	return Web{
		Port:            env.Str("PORT", "5173"),
		GeneratorURL:    env.Str("GENERATOR_URL", "http://localhost:5000/api/generate"),
		GenerateTimeout: env.Duration("GENERATE_TIMEOUT", 300*time.Second),
		HistoryLimit:    env.Int("HISTORY_LIMIT", 50),
		SessionTTL:      env.Duration("SESSION_TTL", 24*time.Hour),
		VideoDir:        env.Str("VIDEO_DIR", ""),
		SecureCookies:   os.Getenv("APP_ENV") == "production",
	}
}

// API configures cmd/api, the generation service.
type API struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins string
	MediaDir       string
	ManimBin       string
	RenderTimeout  time.Duration
	RenderQuality  string

	ProjectID       string
	Location        string
	CredentialsFile string
	GeminiModel     string
	PromptFile      string

	GenerateRate  float64
	GenerateBurst int
}

func LoadAPI() API {
	project := env.Str("GOOGLE_CLOUD_PROJECT", "")
	if project == "" {
		project = env.Str("PROJECT_ID", "")
	}

	return API{
		Port:           env.Str("PORT", "5000"),
		DatabaseURL:    env.Str("DATABASE_URL", ""),
		AllowedOrigins: env.Str("ALLOWED_ORIGINS", "http://localhost:5173"),
		MediaDir:       env.Str("MEDIA_DIR", "./media"),
		ManimBin:       env.Str("MANIM_BIN", "manim"),
		RenderTimeout:  env.Duration("RENDER_TIMEOUT", 300*time.Second),
		RenderQuality:  env.Str("RENDER_QUALITY", "h"),

		ProjectID:       project,
		Location:        env.Str("GOOGLE_CLOUD_LOCATION", "us-central1"),
		CredentialsFile: env.Str("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GeminiModel:     env.Str("GEMINI_MODEL", ""),
		PromptFile:      env.Str("PROMPT_FILE", ""),

		GenerateRate:  env.Float("GENERATE_RATE", 0.2),
		GenerateBurst: env.Int("GENERATE_BURST", 2),
	}
}
