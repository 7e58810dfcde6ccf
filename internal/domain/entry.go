// Package domain contains core domain types for the mood journal.
package domain

import (
	"strings"
	"time"
)

// Date and time-of-day layouts used for entries.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// TrashRetentionDays is how long a trashed entry is kept before auto-expiry.
const TrashRetentionDays = 30

// Mood is the user's self-reported mood for a session.
type Mood string

const (
	MoodGood    Mood = "good"
	MoodNeutral Mood = "neutral"
	MoodBad     Mood = "bad"
)

// Moods lists the selectable moods in display order.
var Moods = []Mood{MoodGood, MoodNeutral, MoodBad}

var moodLabels = map[Mood]string{
	MoodGood:    "좋음",
	MoodNeutral: "보통",
	MoodBad:     "나쁨",
}

// ParseMood accepts either the mood identifier or its Korean label.
func ParseMood(s string) (Mood, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "good", "좋음":
		return MoodGood, true
	case "neutral", "normal", "보통":
		return MoodNeutral, true
	case "bad", "나쁨":
		return MoodBad, true
	}
	return "", false
}

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	_, ok := moodLabels[m]
	return ok
}

// Label returns the Korean display label for the mood.
func (m Mood) Label() string {
	if label, ok := moodLabels[m]; ok {
		return label
	}
	return string(m)
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DiaryEntry is a saved journal record. It is immutable once saved.
type DiaryEntry struct {
	Date              string        `json:"date"`
	Time              string        `json:"time"`
	Mood              Mood          `json:"mood"`
	Summary           string        `json:"summary"`
	Keywords          []string      `json:"keywords"`
	SuggestedKeywords []string      `json:"suggested_keywords"`
	ActionItems       []string      `json:"action_items"`
	ChatMessages      []ChatMessage `json:"chat_messages"`
}

// EntryKey is the natural identity of an entry.
type EntryKey struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Summary string `json:"summary"`
}

// Key returns the entry's natural key.
func (e DiaryEntry) Key() EntryKey {
	return EntryKey{Date: e.Date, Time: e.Time, Summary: e.Summary}
}

// Clone returns a deep copy of the entry.
func (e DiaryEntry) Clone() DiaryEntry {
	out := e
	out.Keywords = append([]string(nil), e.Keywords...)
	out.SuggestedKeywords = append([]string(nil), e.SuggestedKeywords...)
	out.ActionItems = append([]string(nil), e.ActionItems...)
	out.ChatMessages = append([]ChatMessage(nil), e.ChatMessages...)
	return out
}

// TrashedEntry is a soft-deleted entry awaiting restore or expiry.
type TrashedEntry struct {
	DiaryEntry
	DeletedAt    time.Time `json:"deleted_at"`
	AutoExpireAt string    `json:"auto_expire_at"`
}

// TrashKey identifies a trashed record.
type TrashKey struct {
	EntryKey
	DeletedAt time.Time `json:"deleted_at"`
}

// Key returns the trashed record's natural key.
func (t TrashedEntry) Key() TrashKey {
	return TrashKey{EntryKey: t.DiaryEntry.Key(), DeletedAt: t.DeletedAt}
}

// NewTrashedEntry wraps e as deleted at deletedAt.
func NewTrashedEntry(e DiaryEntry, deletedAt time.Time) TrashedEntry {
	return TrashedEntry{
		DiaryEntry:   e,
		DeletedAt:    deletedAt,
		AutoExpireAt: ExpiryDate(deletedAt),
	}
}

// ExpiryDate returns the calendar date on which a record deleted at
// deletedAt expires.
func ExpiryDate(deletedAt time.Time) string {
	return deletedAt.AddDate(0, 0, TrashRetentionDays).Format(DateLayout)
}

// Expired reports whether the record's expiry date is on or before today.
func (t TrashedEntry) Expired(today time.Time) bool {
	return t.AutoExpireAt <= today.Format(DateLayout)
}

// ContextItem is one remembered summary used for conversational continuity.
type ContextItem struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}
