// Package api provides HTTP handlers for the diary API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/diary"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// msgInternal is the generic message shown for storage failures.
const msgInternal = "일시적인 오류가 발생했어요. 잠시 후 다시 시도해주세요."

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Journal is the controller surface the handlers drive.
type Journal interface {
	Snapshot() diary.Snapshot
	SelectMood(mood domain.Mood) error
	SendMessage(ctx context.Context, text string) (diary.SendResult, error)
	RequestSummary(ctx context.Context) (diary.Draft, error)
	Save(ctx context.Context, sel diary.KeywordSelection) (domain.DiaryEntry, error)
	Discard()
	Navigate(ctx context.Context, target diary.State) error

	Entries() []domain.DiaryEntry
	Search(keyword string) []domain.DiaryEntry
	MoveToTrash(ctx context.Context, key domain.EntryKey) (bool, error)
	TrashAll(ctx context.Context) (int, error)
	OpenTrash(ctx context.Context) ([]domain.TrashedEntry, error)
	Restore(ctx context.Context, key domain.TrashKey) (bool, error)
	PermanentlyDelete(ctx context.Context, key domain.TrashKey) (bool, error)
	EmptyTrash(ctx context.Context) (int64, error)

	Stats() diary.EmotionStats
	Calendar(month string) (diary.CalendarMonth, error)
	Overview() diary.Overview
	Settings() domain.Settings
	SetPersonaName(ctx context.Context, name string) error
	SetTheme(ctx context.Context, theme string) error
	Export() string
}

var _ Journal = (*diary.Controller)(nil)

// Handler serves the journaling endpoints.
type Handler struct {
	journal Journal
	now     func() time.Time
	logger  *slog.Logger
}

// NewHandler creates a handler over journal. now supplies the clock for
// export filenames and the default calendar month.
func NewHandler(journal Journal, now func() time.Time, logger *slog.Logger) *Handler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{journal: journal, now: now, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeError maps controller errors to HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var replyErr *diary.ReplyError
	switch {
	case errors.As(err, &replyErr):
		status := http.StatusBadGateway
		if replyErr.Kind == agent.KindQuota || replyErr.Kind == agent.KindRateLimit {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, map[string]string{"error": replyErr.Message, "kind": string(replyErr.Kind)})
	case errors.Is(err, diary.ErrStorage):
		h.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, msgInternal)
	case errors.Is(err, diary.ErrWrongState), errors.Is(err, diary.ErrNoConversation):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, diary.ErrInvalidMood),
		errors.Is(err, diary.ErrInvalidState),
		errors.Is(err, diary.ErrEmptyMessage),
		errors.Is(err, diary.ErrNoKeywords),
		errors.Is(err, diary.ErrInvalidPersona),
		errors.Is(err, diary.ErrInvalidTheme),
		errors.Is(err, diary.ErrInvalidMonth):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Unhandled request error", "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, msgInternal)
	}
}
