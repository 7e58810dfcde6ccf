package api

import (
	"net/http"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/diary"
)

// GetStats returns the mood and keyword histograms.
func (h *Handler) GetStats(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.journal.Stats())
}

// GetCalendar returns the entries of ?month=YYYY-MM grouped by day.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = h.now().Format("2006-01")
	}
	cal, err := h.journal.Calendar(month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, cal)
}

// GetOverview returns counts, streak and token energy.
func (h *Handler) GetOverview(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.journal.Overview())
}

// GetSettings returns persona, theme and streak settings.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.journal.Settings())
}

type settingsRequest struct {
	PersonaName *string `json:"persona_name"`
	Theme       *string `json:"theme"`
}

// UpdateSettings changes the persona name and/or theme.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PersonaName == nil && req.Theme == nil {
		Error(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.PersonaName != nil {
		if err := h.journal.SetPersonaName(r.Context(), *req.PersonaName); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.Theme != nil {
		if err := h.journal.SetTheme(r.Context(), *req.Theme); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	JSON(w, http.StatusOK, h.journal.Settings())
}

// Export downloads the plain-text backup. An empty journal yields 404
// with the "nothing to export" notice.
func (h *Handler) Export(w http.ResponseWriter, _ *http.Request) {
	text := h.journal.Export()
	if text == diary.NothingToExport {
		Error(w, http.StatusNotFound, text)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+diary.ExportFilename(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		h.logger.Debug("Failed to write export", "error", err)
	}
}
