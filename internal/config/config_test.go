package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadWebDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "GENERATOR_URL", "GENERATE_TIMEOUT", "HISTORY_LIMIT", "SESSION_TTL", "VIDEO_DIR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadWeb()
	assert.Equal(t, "5173", cfg.Port)
	assert.Equal(t, "http://localhost:5000/api/generate", cfg.GeneratorURL)
	assert.Equal(t, 300*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 50, cfg.HistoryLimit)
}

func TestLoadAPIFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	os.Unsetenv("GOOGLE_CLOUD_PROJECT")
	t.Setenv("ALLOWED_ORIGINS", "")
	os.Unsetenv("ALLOWED_ORIGINS")
	t.Setenv("PROJECT_ID", "demo-project")
	t.Setenv("RENDER_TIMEOUT", "90s")
	t.Setenv("GENERATE_BURST", "5")

	cfg := LoadAPI()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "demo-project", cfg.ProjectID)
	assert.Equal(t, 90*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 5, cfg.GenerateBurst)
	assert.Equal(t, "http://localhost:5173", cfg.AllowedOrigins)
}
