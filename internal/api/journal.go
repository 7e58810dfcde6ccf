package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/diary"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// RegisterRoutes registers the journaling routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Post("/mood", h.SelectMood)
		r.Post("/chat", h.Chat)
		r.Post("/summary", h.Summary)
		r.Post("/save", h.Save)
		r.Post("/discard", h.Discard)
		r.Post("/navigate", h.Navigate)

		r.Get("/entries", h.ListEntries)
		r.Get("/entries/search", h.SearchEntries)
		r.Post("/entries/trash", h.TrashEntry)
		r.Post("/entries/trash-all", h.TrashAll)

		r.Get("/trash", h.ListTrash)
		r.Post("/trash/restore", h.RestoreEntry)
		r.Post("/trash/delete", h.DeleteTrashed)
		r.Post("/trash/empty", h.EmptyTrash)

		r.Get("/stats", h.GetStats)
		r.Get("/calendar", h.GetCalendar)
		r.Get("/overview", h.GetOverview)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/export", h.Export)
	})
}

// GetState returns the controller snapshot.
func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.journal.Snapshot())
}

type moodRequest struct {
	Mood string `json:"mood"`
}

// SelectMood starts a chat session.
func (h *Handler) SelectMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if !decode(w, r, &req) {
		return
	}
	mood, ok := domain.ParseMood(req.Mood)
	if !ok {
		Error(w, http.StatusBadRequest, diary.ErrInvalidMood.Error())
		return
	}
	if err := h.journal.SelectMood(mood); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.journal.Snapshot())
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat sends one user turn and returns the persona's reply.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.journal.SendMessage(r.Context(), req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Summary moves to the summary step and returns the draft.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	draft, err := h.journal.RequestSummary(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, draft)
}

// Save stores the session with the selected keywords.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var sel diary.KeywordSelection
	if !decode(w, r, &sel) {
		return
	}
	entry, err := h.journal.Save(r.Context(), sel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, entry)
}

// Discard drops the current session.
func (h *Handler) Discard(w http.ResponseWriter, _ *http.Request) {
	h.journal.Discard()
	JSON(w, http.StatusOK, h.journal.Snapshot())
}

type navigateRequest struct {
	State diary.State `json:"state"`
}

// Navigate switches to another view.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.journal.Navigate(r.Context(), req.State); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.journal.Snapshot())
}
