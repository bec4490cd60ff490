package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"animation-studio/internal/service"
	"animation-studio/internal/validation"

	"golang.org/x/time/rate"
)

// GenerateHandler serves the generation service API.
type GenerateHandler struct {
	Service *service.GenerationService
	Limiter *rate.Limiter
}

func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {

	var req struct {
		Description string `json:"description"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		log.Println("Generate: no JSON data received:", err)
		writeError(w, "No data received", http.StatusBadRequest)
		return
	}

	if _, err := validation.NormalizeDescription(req.Description); err != nil {
		msg := "Description is required"
		if !errors.Is(err, validation.ErrEmptyDescription) {
			msg = err.Error()
		}
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	if h.Limiter != nil && !h.Limiter.Allow() {
		writeError(w, "Too many generation requests, try again shortly", http.StatusTooManyRequests)
		return
	}

	gen, err := h.Service.Generate(r.Context(), req.Description)
	if err != nil {
		log.Println("Generate ERROR:", err)
		writeError(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(gen.VideoPath)
	if err != nil {
		log.Println("Generate: video file not found:", err)
		writeError(w, "Internal server error: video file was not generated", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	name := filepath.Base(gen.VideoPath)
	w.Header().Set("Content-Type", validation.VideoContentType(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Generation-ID", gen.ID.String())
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *GenerateHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	generations, err := h.Service.Recent(r.Context(), limit)
	if err != nil {
		log.Println("ListGenerations ERROR:", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generations": generations,
	})
}

func (h *GenerateHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
