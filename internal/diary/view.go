package diary

import (
	"context"
	"fmt"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/conversation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// view mirrors the store's active and trashed entries plus derived data.
type view struct {
	entries []domain.DiaryEntry
	trashed []domain.TrashedEntry
	streak  int
}

func (v *view) recompute(today time.Time) {
	dates := make([]string, 0, len(v.entries))
	for _, e := range v.entries {
		dates = append(dates, e.Date)
	}
	v.streak = CalculateConsecutiveDays(dates, today)
}

// refresh reloads both collections from the store.
func (c *Controller) refresh(ctx context.Context) error {
	entries, err := c.repo.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("%w: list entries: %w", ErrStorage, err)
	}
	trashed, err := c.repo.ListTrashed(ctx)
	if err != nil {
		return fmt.Errorf("%w: list trash: %w", ErrStorage, err)
	}
	c.view.entries = entries
	c.view.trashed = trashed
	c.view.recompute(c.now())
	return nil
}

func (c *Controller) refreshLogged(ctx context.Context) {
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("failed to refresh entry view", "error", err)
	}
}

// Entries returns the active entries ordered by date and time.
func (c *Controller) Entries() []domain.DiaryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.DiaryEntry, 0, len(c.view.entries))
	for _, e := range c.view.entries {
		out = append(out, e.Clone())
	}
	return out
}

// Trashed returns trashed records, most recently deleted first.
func (c *Controller) Trashed() []domain.TrashedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trashedLocked()
}

func (c *Controller) trashedLocked() []domain.TrashedEntry {
	out := make([]domain.TrashedEntry, 0, len(c.view.trashed))
	for _, t := range c.view.trashed {
		t.DiaryEntry = t.DiaryEntry.Clone()
		out = append(out, t)
	}
	return out
}

// Search matches keyword against summaries and keywords.
func (c *Controller) Search(keyword string) []domain.DiaryEntry {
	return Search(c.Entries(), keyword)
}

// Stats returns the mood and keyword histograms.
func (c *Controller) Stats() EmotionStats {
	return GenerateEmotionStats(c.Entries())
}

// Calendar returns the entries of month (YYYY-MM) grouped by day.
func (c *Controller) Calendar(month string) (CalendarMonth, error) {
	return BuildCalendar(c.Entries(), month)
}

// Export renders the plain-text backup.
func (c *Controller) Export() string {
	return Export(c.Entries(), c.Trashed(), c.now())
}

// Overview summarizes counts, streak and budget.
type Overview struct {
	ActiveCount  int                 `json:"active_count"`
	TrashedCount int                 `json:"trashed_count"`
	Streak       int                 `json:"streak"`
	Energy       conversation.Energy `json:"energy"`
}

// Overview returns usage counters.
func (c *Controller) Overview() Overview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Overview{
		ActiveCount:  len(c.view.entries),
		TrashedCount: len(c.view.trashed),
		Streak:       c.view.streak,
		Energy:       c.conv.Energy(),
	}
}

// Settings returns the current app settings.
func (c *Controller) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Snapshot is the presentation-facing state of the controller.
type Snapshot struct {
	State           State                `json:"state"`
	SessionID       string               `json:"session_id,omitempty"`
	Mood            domain.Mood          `json:"mood,omitempty"`
	MoodLabel       string               `json:"mood_label,omitempty"`
	Greeting        string               `json:"greeting,omitempty"`
	Messages        []domain.ChatMessage `json:"messages"`
	Draft           *Draft               `json:"draft,omitempty"`
	Energy          conversation.Energy  `json:"energy"`
	BudgetExhausted bool                 `json:"budget_exhausted"`
	Settings        domain.Settings      `json:"settings"`
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:           c.state,
		SessionID:       c.session.id,
		Messages:        append([]domain.ChatMessage{}, c.session.messages...),
		Energy:          c.conv.Energy(),
		BudgetExhausted: c.conv.Exhausted(),
		Settings:        c.settings,
	}
	if c.session.mood != "" {
		snap.Mood = c.session.mood
		snap.MoodLabel = c.session.mood.Label()
		snap.Greeting = conversation.Greeting(c.settings.PersonaName, c.session.mood)
	}
	if c.session.draft != nil {
		d := cloneDraft(*c.session.draft)
		snap.Draft = &d
	}
	return snap
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationContext returns the remembered summaries, oldest first.
func (c *Controller) ConversationContext() []domain.ContextItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ContextItem(nil), c.context...)
}
