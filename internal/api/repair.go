package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fluentcoach/internal/repair"
)

// multipartMemory is kept in memory before the form spills to disk.
const multipartMemory = 1 << 20

// RepairHandler serves the voice repair flow.
type RepairHandler struct {
	svc      *repair.Service
	maxBytes int64
}

// NewRepairHandler creates a repair handler accepting uploads up to maxBytes.
func NewRepairHandler(svc *repair.Service, maxBytes int64) *RepairHandler {
	return &RepairHandler{svc: svc, maxBytes: maxBytes}
}

// RegisterRoutes registers repair routes.
func (h *RepairHandler) RegisterRoutes(r chi.Router) {
	r.Post("/repair", h.Repair)
}

// audioWriter defers the audio headers until synthesis produces bytes, so
// a failure before the first byte can still be answered with a JSON error.
type audioWriter struct {
	w       http.ResponseWriter
	started bool
}

func (a *audioWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", "audio/mpeg")
		a.w.Header().Set("Cache-Control", "no-store")
		a.w.WriteHeader(http.StatusOK)
	}
	n, err := a.w.Write(p)
	if f, ok := a.w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

// Repair streams fluentText synthesized in the uploaded voice.
func (h *RepairHandler) Repair(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Configured() {
		slog.Error("Repair requested without voice credentials")
		Error(w, http.StatusInternalServerError, "voice service not configured")
		return
	}

	// Headroom over the sample cap for the other form parts.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusBadRequest, "upload too large")
			return
		}
		Error(w, http.StatusBadRequest, "multipart form with audio and fluentText is required")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Failed to remove multipart temp files", "error", err)
		}
	}()

	text := r.FormValue("fluentText")
	file, header, err := r.FormFile("audio")
	if err != nil || text == "" {
		Error(w, http.StatusBadRequest, "audio and fluentText are required")
		return
	}
	defer file.Close()

	out := &audioWriter{w: w}
	if _, err := h.svc.Repair(r.Context(), file, header.Filename, text, out); err != nil {
		if out.started {
			slog.Error("Repair stream interrupted", "error", err)
			return
		}
		ServiceError(w, err, "repair")
	}
}
