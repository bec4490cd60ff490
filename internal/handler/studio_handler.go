package handler

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"time"

	"animation-studio/internal/hub"
	"animation-studio/internal/service"
	"animation-studio/internal/storage"
	"animation-studio/internal/validation"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const sessionCookie = "studio_session"

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"truncate": truncate,
}).ParseFS(templateFS, "templates/index.html"))

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StudioHandler serves the studio page and its per-session state.
type StudioHandler struct {
	Sessions      *service.SessionService
	Videos        storage.Storage
	Hub           *hub.Hub
	SecureCookies bool

	// BaseCtx outlives requests; background generations run under it.
	BaseCtx context.Context
}

// session resolves the browser's session from its cookie, creating one and
// setting the cookie on first visit.
func (h *StudioHandler) session(w http.ResponseWriter, r *http.Request) *service.Session {
	var id uuid.UUID
	if c, err := r.Cookie(sessionCookie); err == nil {
		id, _ = uuid.Parse(c.Value)
	}

	sess := h.Sessions.FindOrCreateSession(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID.String(),
			Path:     "/",
			HttpOnly: true,
			Secure:   h.SecureCookies,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		})
	}
	return sess
}

func (h *StudioHandler) Index(w http.ResponseWriter, r *http.Request) {

	sess := h.session(w, r)

	view, err := h.Sessions.View(sess.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, view); err != nil {
		log.Println("Index: render:", err)
	}
}

func (h *StudioHandler) Generate(w http.ResponseWriter, r *http.Request) {

	sess := h.session(w, r)

	_, err := h.Sessions.SubmitAsync(h.BaseCtx, sess.ID, r.FormValue("description"))
	if err != nil && !errors.Is(err, service.ErrSubmissionInFlight) {
		log.Println("Generate ERROR:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *StudioHandler) SelectHistory(w http.ResponseWriter, r *http.Request) {

	sess := h.session(w, r)

	if id, err := uuid.Parse(mux.Vars(r)["id"]); err == nil {
		if err := h.Sessions.Select(sess.ID, id); err != nil {
			log.Println("SelectHistory ERROR:", err)
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Video streams a stored video. Only videos in the caller's own history
// are served.
func (h *StudioHandler) Video(w http.ResponseWriter, r *http.Request) {

	sess := h.session(w, r)
	key := mux.Vars(r)["key"]

	if !h.Sessions.Owns(sess.ID, key) {
		http.NotFound(w, r)
		return
	}

	video, err := h.Videos.Open(r.Context(), key)
	if errors.Is(err, storage.ErrVideoNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer video.Close()

	w.Header().Set("Content-Type", validation.VideoContentType(key))
	http.ServeContent(w, r, key, time.Time{}, video)
}

func (h *StudioHandler) SessionState(w http.ResponseWriter, r *http.Request) {

	sess := h.session(w, r)

	view, err := h.Sessions.Snapshot(sess.ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ServeWS subscribes the page to its session's state events.
func (h *StudioHandler) ServeWS(w http.ResponseWriter, r *http.Request) {

	var id uuid.UUID
	if c, err := r.Cookie(sessionCookie); err == nil {
		id, _ = uuid.Parse(c.Value)
	}
	if _, err := h.Sessions.GetSession(id); err != nil {
		http.Error(w, "unknown session", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWS: upgrade:", err)
		return
	}

	client := &hub.Client{
		Hub:       h.Hub,
		Conn:      conn,
		Send:      make(chan []byte, 16),
		SessionID: id,
	}
	h.Hub.Join(client)

	go client.WritePump()
	go client.ReadPump()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
