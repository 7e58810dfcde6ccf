// Package diary drives the journaling flow: mood selection, chat,
// summarization, keyword selection, save, and trash management.
package diary

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/conversation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/convlog"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/moderation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/store"
)

// Conversation is the language-model side of the flow.
type Conversation interface {
	Reply(ctx context.Context, req conversation.ReplyRequest) conversation.Reply
	Summarize(ctx context.Context, history []domain.ChatMessage) conversation.Summary
	SuggestKeywords(ctx context.Context, history []domain.ChatMessage, mood domain.Mood) []string
	Energy() conversation.Energy
	Exhausted() bool
}

// Moderator classifies user input.
type Moderator interface {
	Classify(ctx context.Context, text string) moderation.Result
}

// Deps are the controller's collaborators.
type Deps struct {
	Store        store.Repository
	Conversation Conversation
	Moderator    Moderator
	ConvLog      convlog.Logger
	Now          func() time.Time
	Logger       *slog.Logger
}

// Controller owns the single journaling session. All methods are safe for
// concurrent use; operations run one at a time.
type Controller struct {
	repo   store.Repository
	conv   Conversation
	gate   Moderator
	clog   convlog.Logger
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	session  session
	view     view
	context  []domain.ContextItem
	settings domain.Settings
}

// NewController loads settings and entries and seeds the conversation
// context from the two most recent entries.
func NewController(ctx context.Context, deps Deps) (*Controller, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ConvLog == nil {
		deps.ConvLog = convlog.Noop()
	}

	c := &Controller{
		repo:   deps.Store,
		conv:   deps.Conversation,
		gate:   deps.Moderator,
		clog:   deps.ConvLog,
		now:    deps.Now,
		logger: deps.Logger,
		state:  StateMoodSelection,
	}

	settings, err := c.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	c.settings = settings

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	entries := c.view.entries
	if len(entries) > conversation.ContextWindow {
		entries = entries[len(entries)-conversation.ContextWindow:]
	}
	for _, e := range entries {
		c.context = append(c.context, domain.ContextItem{Summary: e.Summary, ActionItems: e.ActionItems})
	}

	c.settings.ConsecutiveDays = c.view.streak
	return c, nil
}

func (c *Controller) loadSettings(ctx context.Context) (domain.Settings, error) {
	s := domain.DefaultSettings()
	var err error
	if s.PersonaName, err = c.repo.GetSetting(ctx, domain.SettingPersonaName, s.PersonaName); err != nil {
		return s, fmt.Errorf("%w: load settings: %w", ErrStorage, err)
	}
	if s.Theme, err = c.repo.GetSetting(ctx, domain.SettingTheme, s.Theme); err != nil {
		return s, fmt.Errorf("%w: load settings: %w", ErrStorage, err)
	}
	if s.LastEntryDate, err = c.repo.GetSetting(ctx, domain.SettingLastEntryDate, ""); err != nil {
		return s, fmt.Errorf("%w: load settings: %w", ErrStorage, err)
	}
	days, err := c.repo.GetSetting(ctx, domain.SettingConsecutiveDays, "0")
	if err != nil {
		return s, fmt.Errorf("%w: load settings: %w", ErrStorage, err)
	}
	if n, convErr := strconv.Atoi(days); convErr == nil {
		s.ConsecutiveDays = n
	}
	return s, nil
}

// SelectMood starts a new chat session.
func (c *Controller) SelectMood(mood domain.Mood) error {
	if !mood.Valid() {
		return ErrInvalidMood
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = session{id: uuid.NewString(), mood: mood}
	c.state = StateChat
	c.logger.Info("Chat session started", "session_id", c.session.id, "mood", mood)
	return nil
}

// SendResult is the outcome of a successful chat turn.
type SendResult struct {
	Reply      string            `json:"reply"`
	TokensUsed int               `json:"tokens_used"`
	Moderation moderation.Result `json:"moderation"`
}

// SendMessage moderates text, sends it to the persona and records both
// turns. A failed reply leaves the history as it was and returns a
// *ReplyError.
func (c *Controller) SendMessage(ctx context.Context, text string) (SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateChat {
		return SendResult{}, ErrWrongState
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, ErrEmptyMessage
	}

	mod := c.gate.Classify(ctx, text)
	directive := ""
	switch {
	case mod.SelfHarm:
		directive = conversation.SelfHarmDirective
	case mod.Violence:
		directive = conversation.ViolenceDirective
	}
	if mod.Dangerous() {
		c.logger.Warn("Risky message detected",
			"session_id", c.session.id,
			"self_harm", mod.SelfHarm,
			"violence", mod.Violence,
			"degraded", mod.Degraded)
	}

	history := append([]domain.ChatMessage(nil), c.session.messages...)
	c.session.messages = append(c.session.messages, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	c.clog.Log(convlog.Event{
		SessionID: c.session.id,
		Channel:   "chat",
		Direction: convlog.DirectionInbound,
		EventType: "user_message",
		Mood:      string(c.session.mood),
		Content:   text,
		Flagged:   mod.Dangerous(),
	})

	reply := c.conv.Reply(ctx, conversation.ReplyRequest{
		Message:     text,
		Directive:   directive,
		History:     history,
		Context:     c.context,
		Mood:        c.session.mood,
		PersonaName: c.settings.PersonaName,
	})
	if !reply.OK {
		c.session.messages = c.session.messages[:len(c.session.messages)-1]
		c.clog.Log(convlog.Event{
			SessionID: c.session.id,
			Channel:   "chat",
			Direction: convlog.DirectionOutbound,
			EventType: "reply_failed",
			Content:   reply.Text,
			ErrorKind: string(reply.Kind),
		})
		return SendResult{}, &ReplyError{Message: reply.Text, Kind: reply.Kind}
	}

	c.session.messages = append(c.session.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply.Text})
	c.clog.Log(convlog.Event{
		SessionID: c.session.id,
		Channel:   "chat",
		Direction: convlog.DirectionOutbound,
		EventType: "assistant_message",
		Content:   reply.Text,
	})

	return SendResult{Reply: reply.Text, TokensUsed: reply.TokensUsed, Moderation: mod}, nil
}

// RequestSummary moves from Chat to Summary and computes the draft once;
// later calls in Summary return the cached draft.
func (c *Controller) RequestSummary(ctx context.Context) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSummary:
		if c.session.draft != nil {
			return cloneDraft(*c.session.draft), nil
		}
	case StateChat:
		if len(c.session.messages) == 0 {
			return Draft{}, ErrNoConversation
		}
	default:
		return Draft{}, ErrWrongState
	}

	sum := c.conv.Summarize(ctx, c.session.messages)
	suggested := c.conv.SuggestKeywords(ctx, c.session.messages, c.session.mood)

	draft := Draft{
		Summary:           sum.Summary,
		ActionItems:       sum.ActionItems,
		SuggestedKeywords: suggested,
		OK:                sum.OK,
	}
	c.session.draft = &draft
	c.state = StateSummary
	return cloneDraft(draft), nil
}

// Save persists the session as an entry and returns to mood selection.
// On storage failure the session is left untouched.
func (c *Controller) Save(ctx context.Context, sel KeywordSelection) (domain.DiaryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSummary || c.session.draft == nil {
		return domain.DiaryEntry{}, ErrWrongState
	}
	draft := c.session.draft

	keywords := resolveKeywords(sel, draft.SuggestedKeywords)
	if len(keywords) == 0 {
		return domain.DiaryEntry{}, ErrNoKeywords
	}

	now := c.now()
	entry := domain.DiaryEntry{
		Date:              now.Format(domain.DateLayout),
		Time:              now.Format(domain.TimeLayout),
		Mood:              c.session.mood,
		Summary:           draft.Summary,
		Keywords:          keywords,
		SuggestedKeywords: append([]string(nil), draft.SuggestedKeywords...),
		ActionItems:       append([]string(nil), draft.ActionItems...),
		ChatMessages:      append([]domain.ChatMessage(nil), c.session.messages...),
	}

	if err := c.repo.SaveEntry(ctx, entry); err != nil {
		c.logger.Error("failed to save diary entry", "session_id", c.session.id, "error", err)
		return domain.DiaryEntry{}, fmt.Errorf("%w: save entry: %w", ErrStorage, err)
	}

	c.context = append(c.context, domain.ContextItem{Summary: entry.Summary, ActionItems: entry.ActionItems})

	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("failed to refresh entries after save", "error", err)
		c.view.entries = append(c.view.entries, entry)
		c.view.recompute(now)
	}
	c.settings.ConsecutiveDays = c.view.streak
	c.settings.LastEntryDate = entry.Date
	c.persistSetting(ctx, domain.SettingConsecutiveDays, strconv.Itoa(c.settings.ConsecutiveDays))
	c.persistSetting(ctx, domain.SettingLastEntryDate, c.settings.LastEntryDate)

	c.logger.Info("Diary entry saved",
		"session_id", c.session.id,
		"entry_date", entry.Date,
		"keywords", len(entry.Keywords),
		"streak", c.settings.ConsecutiveDays)

	c.session = session{}
	c.state = StateMoodSelection
	return entry.Clone(), nil
}

// Discard drops the session without saving.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session{}
	c.state = StateMoodSelection
}

// Navigate switches to one of the independent views. Leaving an unsaved
// session discards it; entering Trash purges expired records.
func (c *Controller) Navigate(ctx context.Context, target State) error {
	if !navigable[target] {
		return ErrInvalidState
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateChat || c.state == StateSummary {
		c.session = session{}
	}
	c.state = target

	if target == StateTrash {
		if _, err := c.purgeExpiredLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// MoveToTrash soft-deletes the active entry identified by key.
func (c *Controller) MoveToTrash(ctx context.Context, key domain.EntryKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	moved, err := c.repo.MoveToTrash(ctx, key, c.now())
	if err != nil {
		c.logger.Error("failed to move entry to trash", "entry_date", key.Date, "error", err)
		return false, fmt.Errorf("%w: move to trash: %w", ErrStorage, err)
	}
	c.refreshLogged(ctx)
	return moved, nil
}

// TrashAll moves every active entry to the trash and clears the
// conversation context. It returns how many entries moved.
func (c *Controller) TrashAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.repo.ListEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list entries: %w", ErrStorage, err)
	}

	moved := 0
	deletedAt := c.now()
	for _, e := range entries {
		ok, err := c.repo.MoveToTrash(ctx, e.Key(), deletedAt)
		if err != nil {
			c.refreshLogged(ctx)
			return moved, fmt.Errorf("%w: move to trash: %w", ErrStorage, err)
		}
		if ok {
			moved++
		}
	}

	c.context = nil
	c.refreshLogged(ctx)
	c.logger.Info("All entries moved to trash", "count", moved)
	return moved, nil
}

// Restore moves a trashed record back to the active entries.
func (c *Controller) Restore(ctx context.Context, key domain.TrashKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	restored, err := c.repo.Restore(ctx, key)
	if err != nil {
		c.logger.Error("failed to restore entry", "entry_date", key.Date, "error", err)
		return false, fmt.Errorf("%w: restore: %w", ErrStorage, err)
	}
	c.refreshLogged(ctx)
	return restored, nil
}

// PermanentlyDelete removes a trashed record for good.
func (c *Controller) PermanentlyDelete(ctx context.Context, key domain.TrashKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted, err := c.repo.PermanentDelete(ctx, key)
	if err != nil {
		c.logger.Error("failed to delete trashed entry", "entry_date", key.Date, "error", err)
		return false, fmt.Errorf("%w: permanent delete: %w", ErrStorage, err)
	}
	c.refreshLogged(ctx)
	return deleted, nil
}

// OpenTrash purges expired records and returns what remains in the trash.
// It leaves the current state and any unsaved session alone.
func (c *Controller) OpenTrash(ctx context.Context) ([]domain.TrashedEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.purgeExpiredLocked(ctx); err != nil {
		return nil, err
	}
	return c.trashedLocked(), nil
}

func (c *Controller) purgeExpiredLocked(ctx context.Context) (int64, error) {
	n, err := c.repo.PurgeExpired(ctx, c.now())
	if err != nil {
		c.logger.Error("failed to purge expired trash", "error", err)
		return 0, fmt.Errorf("%w: purge expired: %w", ErrStorage, err)
	}
	if n > 0 {
		c.logger.Info("Expired trash purged", "count", n)
	}
	c.refreshLogged(ctx)
	return n, nil
}

// EmptyTrash permanently deletes every trashed record.
func (c *Controller) EmptyTrash(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.repo.EmptyTrash(ctx)
	if err != nil {
		c.logger.Error("failed to empty trash", "error", err)
		return 0, fmt.Errorf("%w: empty trash: %w", ErrStorage, err)
	}
	c.refreshLogged(ctx)
	return n, nil
}

// SetPersonaName changes the AI persona.
func (c *Controller) SetPersonaName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if !domain.IsRecommendedPersona(name) {
		return ErrInvalidPersona
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.repo.SetSetting(ctx, domain.SettingPersonaName, name); err != nil {
		return fmt.Errorf("%w: save persona: %w", ErrStorage, err)
	}
	c.settings.PersonaName = name
	return nil
}

// SetTheme changes the visual theme identifier.
func (c *Controller) SetTheme(ctx context.Context, theme string) error {
	theme = strings.TrimSpace(theme)
	if !domain.IsTheme(theme) {
		return ErrInvalidTheme
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.repo.SetSetting(ctx, domain.SettingTheme, theme); err != nil {
		return fmt.Errorf("%w: save theme: %w", ErrStorage, err)
	}
	c.settings.Theme = theme
	return nil
}

func (c *Controller) persistSetting(ctx context.Context, key, value string) {
	if err := c.repo.SetSetting(ctx, key, value); err != nil {
		c.logger.Warn("failed to persist setting", "key", key, "error", err)
	}
}

func cloneDraft(d Draft) Draft {
	d.ActionItems = append([]string(nil), d.ActionItems...)
	d.SuggestedKeywords = append([]string(nil), d.SuggestedKeywords...)
	return d
}
