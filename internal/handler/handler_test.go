package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"animation-studio/internal/client"
	"animation-studio/internal/hub"
	"animation-studio/internal/models"
	"animation-studio/internal/service"
	"animation-studio/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubWriter struct{ err error }

func (w stubWriter) WriteScene(ctx context.Context, description string) (string, error) {
	return "class A(Scene): pass", w.err
}

type fileRenderer struct{ dir string }

func (r fileRenderer) Render(ctx context.Context, code string) (string, error) {
	path := filepath.Join(r.dir, "animation_test.mp4")
	return path, os.WriteFile(path, []byte("rendered-mp4"), 0644)
}

func newAPI(t *testing.T, writer service.SceneWriter, limiter *rate.Limiter) (*httptest.Server, *service.MemoryGenerationStore) {
	store := service.NewMemoryGenerationStore()
	h := &GenerateHandler{
		Service: &service.GenerationService{Writer: writer, Renderer: fileRenderer{dir: t.TempDir()}, Store: store},
		Limiter: limiter,
	}
	srv := httptest.NewServer(APIRoutes(h))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestAPIGenerate(t *testing.T) {
	srv, store := newAPI(t, stubWriter{}, nil)

	resp, body := postJSON(t, srv.URL+"/api/generate", `{"description":"a blue circle"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "animation_test.mp4")
	assert.Equal(t, "rendered-mp4", string(body))

	list, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.GenerationCompleted, list[0].Status)
}

func TestAPIGenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		writer     service.SceneWriter
		limiter    *rate.Limiter
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "no json", writer: stubWriter{}, body: "not json", wantStatus: http.StatusBadRequest, wantError: "No data received"},
		{name: "no description", writer: stubWriter{}, body: `{}`, wantStatus: http.StatusBadRequest, wantError: "Description is required"},
		{name: "rate limited", writer: stubWriter{}, limiter: rate.NewLimiter(0, 0), body: `{"description":"x"}`, wantStatus: http.StatusTooManyRequests},
		{name: "generation fails", writer: stubWriter{err: errors.New("quota exceeded")}, body: `{"description":"x"}`, wantStatus: http.StatusInternalServerError, wantError: "Internal server error: scene code: quota exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newAPI(t, tt.writer, tt.limiter)

			resp, body := postJSON(t, srv.URL+"/api/generate", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var eb struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(body, &eb))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, eb.Error)
			} else {
				assert.NotEmpty(t, eb.Error)
			}
		})
	}
}

func TestAPIListAndHealth(t *testing.T) {
	srv, _ := newAPI(t, stubWriter{}, nil)
	postJSON(t, srv.URL+"/api/generate", `{"description":"one"}`)

	resp, err := http.Get(srv.URL + "/api/generations?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Generations []models.Generation `json:"generations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Generations, 1)
	assert.Equal(t, "one", out.Generations[0].Description)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

type studio struct {
	srv      *httptest.Server
	sessions *service.SessionService
	videos   *storage.MemoryStorage
}

func newStudio(t *testing.T, generatorURL string) *studio {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub()
	go h.Run(ctx)

	videos := storage.NewMemoryStorage()
	sessions := service.NewSessionService(client.NewGenerator(generatorURL, 5*time.Second), videos, h)

	srv := httptest.NewServer(StudioRoutes(&StudioHandler{
		Sessions: sessions,
		Videos:   videos,
		Hub:      h,
		BaseCtx:  ctx,
	}))
	t.Cleanup(srv.Close)
	return &studio{srv: srv, sessions: sessions, videos: videos}
}

func browser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	// Redirects are not followed so a test controls exactly which request
	// renders (and consumes) a surfaced message.
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, url string) (int, string) {
	resp, err := c.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func submit(t *testing.T, s *studio, c *http.Client, description string) string {
	resp, err := c.PostForm(s.srv.URL+"/generate", url.Values{"description": {description}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	s.sessions.Wait()

	status, page := get(t, c, s.srv.URL+"/")
	require.Equal(t, http.StatusOK, status)
	return page
}

var videoSrc = regexp.MustCompile(`<video src="/videos/([^"]+)"`)

func TestStudioSubmitAndRender(t *testing.T) {
	api, _ := newAPI(t, stubWriter{}, nil)
	s := newStudio(t, api.URL+"/api/generate")
	c := browser(t)

	status, page := get(t, c, s.srv.URL+"/")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, page, `data-state="placeholder"`)

	page = submit(t, s, c, "a blue circle")
	m := videoSrc.FindStringSubmatch(page)
	require.NotNil(t, m, page)
	assert.Contains(t, page, "a blue circle")
	assert.NotContains(t, page, `data-state="loading"`)

	status, video := get(t, c, s.srv.URL+"/videos/"+m[1])
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "rendered-mp4", video)

	// Another browser cannot dereference this session's video.
	status, _ = get(t, browser(t), s.srv.URL+"/videos/"+m[1])
	assert.Equal(t, http.StatusNotFound, status)
}

var (
	disabledInput  = regexp.MustCompile(`<input[^>]*name="description"[^>]*\sdisabled`)
	disabledSubmit = regexp.MustCompile(`<button type="submit" disabled`)
)

func TestStudioRendersLoadingWhileRequestOutstanding(t *testing.T) {
	var requests atomic.Int32
	gate := make(chan struct{})
	seen := make(chan struct{}, 1)
	var release sync.Once
	open := func() { release.Do(func() { close(gate) }) }

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) > 1 {
			seen <- struct{}{}
			<-gate
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4"))
	}))
	t.Cleanup(api.Close)
	t.Cleanup(open)

	s := newStudio(t, api.URL)
	c := browser(t)
	get(t, c, s.srv.URL+"/")

	page := submit(t, s, c, "first")
	require.NotNil(t, videoSrc.FindStringSubmatch(page))
	assert.False(t, disabledInput.MatchString(page))
	assert.False(t, disabledSubmit.MatchString(page))

	resp, err := c.PostForm(s.srv.URL+"/generate", url.Values{"description": {"second"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("generation request not sent")
	}

	status, page := get(t, c, s.srv.URL+"/")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, page, `data-state="loading"`)
	assert.NotContains(t, page, "<video")
	assert.NotContains(t, page, `data-state="placeholder"`)
	assert.True(t, disabledInput.MatchString(page), "description input should be disabled")
	assert.True(t, disabledSubmit.MatchString(page), "submit button should be disabled")
	assert.Contains(t, page, `value="second"`)

	open()
	s.sessions.Wait()

	_, page = get(t, c, s.srv.URL+"/")
	assert.NotContains(t, page, `data-state="loading"`)
	assert.Contains(t, page, "<video")
	assert.False(t, disabledInput.MatchString(page))
	assert.False(t, disabledSubmit.MatchString(page))
}

func TestStudioEmptySubmitIsNoop(t *testing.T) {
	var calls int
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("mp4"))
	}))
	defer api.Close()

	s := newStudio(t, api.URL)
	c := browser(t)
	get(t, c, s.srv.URL+"/")

	page := submit(t, s, c, "   ")
	assert.Equal(t, 0, calls)
	assert.Contains(t, page, `data-state="placeholder"`)
}

func TestStudioSurfacesServiceError(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad description"}`))
	}))
	defer api.Close()

	s := newStudio(t, api.URL)
	c := browser(t)
	get(t, c, s.srv.URL+"/")

	page := submit(t, s, c, "something odd")
	assert.Contains(t, page, "alert(")
	assert.Contains(t, page, "bad description")
	assert.Contains(t, page, `value="something odd"`)
	assert.NotContains(t, page, `data-state="loading"`)

	_, again := get(t, c, s.srv.URL+"/")
	assert.NotContains(t, again, "bad description")
}

func TestStudioSelectHistory(t *testing.T) {
	api, _ := newAPI(t, stubWriter{}, nil)
	s := newStudio(t, api.URL+"/api/generate")
	c := browser(t)
	get(t, c, s.srv.URL+"/")

	submit(t, s, c, "first")
	page := submit(t, s, c, "second")
	latest := videoSrc.FindStringSubmatch(page)
	require.NotNil(t, latest)

	resp, err := c.Get(s.srv.URL + "/api/session")
	require.NoError(t, err)
	var view models.SessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	require.Len(t, view.History, 2)
	first := view.History[1]

	resp, err = c.Post(s.srv.URL+"/history/"+first.ID.String()+"/select", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := get(t, c, s.srv.URL+"/")
	m := videoSrc.FindStringSubmatch(body)
	require.NotNil(t, m)
	assert.Equal(t, first.VideoKey, m[1])
	assert.NotEqual(t, latest[1], m[1])
	assert.Equal(t, 2, strings.Count(body, "/select"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
}
