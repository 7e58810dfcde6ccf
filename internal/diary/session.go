package diary

import (
	"errors"
	"strings"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/conversation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// State is a step of the journaling flow.
type State string

const (
	StateMoodSelection State = "mood_selection"
	StateChat          State = "chat"
	StateSummary       State = "summary"
	StateTrash         State = "trash"
	StateStatistics    State = "statistics"
	StateCalendar      State = "calendar"
	StateSettings      State = "settings"
)

// navigable lists the states reachable through Navigate.
var navigable = map[State]bool{
	StateMoodSelection: true,
	StateTrash:         true,
	StateStatistics:    true,
	StateCalendar:      true,
	StateSettings:      true,
}

// Validation errors. None of them change controller state.
var (
	ErrInvalidMood    = errors.New("invalid mood")
	ErrInvalidState   = errors.New("invalid navigation target")
	ErrWrongState     = errors.New("operation not allowed in current state")
	ErrEmptyMessage   = errors.New(conversation.MsgEmptyInput)
	ErrNoConversation = errors.New("no conversation to summarize")
	ErrNoKeywords     = errors.New("at least one keyword must be selected")
	ErrInvalidPersona = errors.New("persona name is not in the recommended list")
	ErrInvalidTheme   = errors.New("unknown theme")
	ErrInvalidMonth   = errors.New("invalid month")
	ErrStorage        = errors.New("storage failure")
)

// ReplyError reports a failed chat turn. Message is safe to show the user.
type ReplyError struct {
	Message string
	Kind    agent.ErrorKind
}

func (e *ReplyError) Error() string {
	return e.Message
}

// MaxSelectedKeywords caps a saved entry's keywords.
const MaxSelectedKeywords = 4

// maxSuggestedWithCustom is how many suggestions survive next to a custom keyword.
const maxSuggestedWithCustom = 3

// KeywordSelection is the user's keyword choice on the summary step.
type KeywordSelection struct {
	Suggested []string `json:"suggested"`
	Custom    string   `json:"custom"`
}

// Draft is the cached summary step output.
type Draft struct {
	Summary           string   `json:"summary"`
	ActionItems       []string `json:"action_items"`
	SuggestedKeywords []string `json:"suggested_keywords"`
	OK                bool     `json:"ok"`
}

// session is the transient chat between mood selection and save/discard.
type session struct {
	id       string
	mood     domain.Mood
	messages []domain.ChatMessage
	draft    *Draft
}

// resolveKeywords applies the selection rules: suggestions must come from
// the draft, at most one custom keyword is kept and tagged with '#', and
// more than four become the first three suggestions plus the custom one.
func resolveKeywords(sel KeywordSelection, offered []string) []string {
	allowed := make(map[string]bool, len(offered))
	for _, k := range offered {
		allowed[k] = true
	}

	seen := map[string]bool{}
	var suggested []string
	for _, k := range sel.Suggested {
		k = strings.TrimSpace(k)
		if allowed[k] && !seen[k] {
			seen[k] = true
			suggested = append(suggested, k)
		}
	}

	custom := ""
	for _, part := range strings.Split(sel.Custom, ",") {
		if part = strings.TrimSpace(part); part != "" {
			custom = part
			break
		}
	}
	if custom != "" && !strings.HasPrefix(custom, "#") {
		custom = "#" + custom
	}
	if custom == "#" || seen[custom] {
		custom = ""
	}

	if custom == "" {
		if len(suggested) > MaxSelectedKeywords {
			suggested = suggested[:MaxSelectedKeywords]
		}
		return suggested
	}
	if len(suggested) > maxSuggestedWithCustom {
		suggested = suggested[:maxSuggestedWithCustom]
	}
	return append(suggested, custom)
}
