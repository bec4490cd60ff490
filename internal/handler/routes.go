package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// StudioRoutes wires the studio page.
func StudioRoutes(h *StudioHandler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/generate", h.Generate).Methods("POST")
	r.HandleFunc("/history/{id}/select", h.SelectHistory).Methods("POST")
	r.HandleFunc("/videos/{key}", h.Video).Methods("GET", "HEAD")
	r.HandleFunc("/api/session", h.SessionState).Methods("GET")
	r.HandleFunc("/ws", h.ServeWS).Methods("GET")

	return r
}

// APIRoutes wires the generation service.
func APIRoutes(h *GenerateHandler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/generate", h.Generate).Methods("POST")
	api.HandleFunc("/generations", h.ListGenerations).Methods("GET")

	return r
}
