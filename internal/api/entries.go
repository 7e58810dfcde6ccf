package api

import (
	"net/http"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// ListEntries returns every active entry.
func (h *Handler) ListEntries(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.journal.Entries())
}

// SearchEntries filters entries by the q parameter.
func (h *Handler) SearchEntries(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.journal.Search(r.URL.Query().Get("q")))
}

// TrashEntry soft-deletes one entry.
func (h *Handler) TrashEntry(w http.ResponseWriter, r *http.Request) {
	var key domain.EntryKey
	if !decode(w, r, &key) {
		return
	}
	moved, err := h.journal.MoveToTrash(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !moved {
		Error(w, http.StatusNotFound, "entry not found")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"moved": true})
}

// TrashAll soft-deletes every entry.
func (h *Handler) TrashAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.journal.TrashAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"moved": n})
}

// ListTrash purges expired records and lists the rest.
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	trashed, err := h.journal.OpenTrash(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, trashed)
}

// RestoreEntry moves a trashed record back.
func (h *Handler) RestoreEntry(w http.ResponseWriter, r *http.Request) {
	var key domain.TrashKey
	if !decode(w, r, &key) {
		return
	}
	restored, err := h.journal.Restore(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !restored {
		Error(w, http.StatusNotFound, "trashed entry not found")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"restored": true})
}

// DeleteTrashed permanently removes a trashed record.
func (h *Handler) DeleteTrashed(w http.ResponseWriter, r *http.Request) {
	var key domain.TrashKey
	if !decode(w, r, &key) {
		return
	}
	deleted, err := h.journal.PermanentlyDelete(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "trashed entry not found")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// EmptyTrash permanently removes every trashed record.
func (h *Handler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	n, err := h.journal.EmptyTrash(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
