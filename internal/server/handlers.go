package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func (h *handler) location(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	name := chi.URLParam(r, "pdfName")
	location, err := h.opts.CMS.Location(chi.URLParam(r, "path"), name)
	if err != nil {
		h.writeError(w, r, apperr.Internal("failed to resolve document location", err))
		return "", "", false
	}
	return name, location, true
}

func (h *handler) pageCount(w http.ResponseWriter, r *http.Request) {
	_, location, ok := h.location(w, r)
	if !ok {
		return
	}
	pages, err := h.deps.Metadata.PageCount(r.Context(), location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.PageCountResponse{Pages: pages})
}

func (h *handler) metadata(w http.ResponseWriter, r *http.Request) {
	_, location, ok := h.location(w, r)
	if !ok {
		return
	}
	m, err := h.deps.Metadata.Metadata(r.Context(), location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.NewMetadataResponse(m))
}

func (h *handler) prerender(w http.ResponseWriter, r *http.Request) {
	name, location, ok := h.location(w, r)
	if !ok {
		return
	}
	h.log.Info().Str("name", name).Msg("Request to prerender pages")
	if _, err := h.deps.Prerender.Start(r.Context(), name, location); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) page(w http.ResponseWriter, r *http.Request) {
	name, location, ok := h.location(w, r)
	if !ok {
		return
	}
	page, err := parsePage(chi.URLParam(r, "page"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rc, err := h.deps.Pages.GetPage(r.Context(), name, page, location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.streamImage(w, r, rc)
}

func (h *handler) renderPage(w http.ResponseWriter, r *http.Request) {
	if !h.opts.Development {
		http.NotFound(w, r)
		return
	}
	_, location, ok := h.location(w, r)
	if !ok {
		return
	}
	page, err := parsePage(chi.URLParam(r, "page"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rc, err := h.deps.Pages.RenderDirect(r.Context(), page, location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.streamImage(w, r, rc)
}

func (h *handler) streamImage(w http.ResponseWriter, r *http.Request, rc io.ReadCloser) {
	defer rc.Close()
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to stream page image")
	}
}

func (h *handler) validateLocation(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.locationValidationSession(w, r)
		return
	}
	_, location, ok := h.location(w, r)
	if !ok {
		return
	}
	start := time.Now()
	status, err := h.deps.Validation.ValidateLocation(r.Context(), location, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.LocationValidationResponse{
		ValidationStatus: status,
		ProcessingTime:   time.Since(start).Milliseconds(),
	})
}

func (h *handler) postValidate(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Validation.ValidateUpload(r.Context(), r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *handler) validationStatus(w http.ResponseWriter, r *http.Request) {
	status, found, err := h.deps.Validation.Status(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		h.writeError(w, r, apperr.NotFound("no validation found for key", nil))
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// parsePage accepts positive whole numbers only.
func parsePage(raw string) (int, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, apperr.BadRequest("Page must be numeric")
	}
	if strings.Contains(raw, ".") {
		return 0, apperr.BadRequest("Page may not contain a decimal portion")
	}
	if value < 1 {
		return 0, apperr.BadRequest("Page must be a positive value")
	}
	if value > math.MaxInt32 {
		return 0, apperr.BadRequest("Page must be numeric")
	}
	return int(value), nil
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError responds with the error's status and its client-facing message as plain text.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	message := http.StatusText(status)
	if e, ok := apperr.As(err); ok && e.Message != "" {
		message = e.Message
	}

	event := h.log.Debug()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request failed")

	http.Error(w, message, status)
}
