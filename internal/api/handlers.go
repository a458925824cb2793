package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ivlev/reelcomposer/internal/engine"
	"github.com/ivlev/reelcomposer/internal/project"
)

// maxProjectBytes bounds a submitted project document.
const maxProjectBytes = 4 << 20

type RenderHandler struct {
	jobs *Manager
	// BaseDir anchors relative asset paths in submitted projects.
	BaseDir string
}

func NewRenderHandler(jobs *Manager, baseDir string) *RenderHandler {
	return &RenderHandler{jobs: jobs, BaseDir: baseDir}
}

// Submit accepts a project document (JSON or YAML) and queues a render.
func (h *RenderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxProjectBytes))
	if err != nil {
		jsonError(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	p, err := project.Parse(data, h.BaseDir)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(p.Scenes) == 0 {
		jsonError(w, "project has no scenes", http.StatusBadRequest)
		return
	}
	jsonResponse(w, h.jobs.Submit(p), http.StatusAccepted)
}

func (h *RenderHandler) List(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.jobs.List(), http.StatusOK)
}

func (h *RenderHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonResponse(w, v, http.StatusOK)
}

// Artifact streams the finished MP4.
func (h *RenderHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	v, err := h.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if v.State != engine.Ready {
		jsonError(w, "render is "+v.State.String(), http.StatusConflict)
		return
	}
	if _, err := os.Stat(v.Artifact); err != nil {
		jsonError(w, "artifact is gone", http.StatusGone)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(v.Artifact)+`"`)
	http.ServeFile(w, r, v.Artifact)
}

// Rerender starts a new run of the same project with other caption settings.
// Fields missing from the body keep the parent job's values.
func (h *RenderHandler) Rerender(w http.ResponseWriter, r *http.Request) {
	s, err := h.jobs.Settings(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxProjectBytes)).Decode(&s); err != nil {
		jsonError(w, "invalid caption settings: "+err.Error(), http.StatusBadRequest)
		return
	}
	v, err := h.jobs.Rerender(chi.URLParam(r, "id"), s)
	switch {
	case errors.Is(err, ErrJobNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		jsonResponse(w, v, http.StatusAccepted)
	}
}

func (h *RenderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Cancel(chi.URLParam(r, "id")); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func jsonResponse(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResponse(w, map[string]string{"error": msg}, status)
}
