// Package conversation wraps the language model for chat replies,
// structured summaries and keyword suggestions under a shared token budget.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// Limits applied to prompts.
const (
	HistoryWindow   = 10
	ContextWindow   = 2
	summaryInputCap = 2000
	keywordInputCap = 1500
	MaxKeywords     = 5
	MaxActionItems  = 3
)

// DefaultTokenCeiling is the cumulative token budget.
const DefaultTokenCeiling int64 = 100_000

// Generator is the subset of agent.Processor the service needs.
type Generator interface {
	Generate(ctx context.Context, req agent.GenerateRequest) (agent.Generation, error)
}

// UsageStore persists the cumulative token counter.
type UsageStore interface {
	GetTokenUsage(ctx context.Context) (int64, error)
	SetTokenUsage(ctx context.Context, tokens int64) error
}

// Config holds the budget and per-call timeouts.
type Config struct {
	TokenCeiling   int64
	ChatTimeout    time.Duration
	SummaryTimeout time.Duration
	KeywordTimeout time.Duration
}

// DefaultConfig returns the standard budget and timeouts.
func DefaultConfig() Config {
	return Config{
		TokenCeiling:   DefaultTokenCeiling,
		ChatTimeout:    30 * time.Second,
		SummaryTimeout: 30 * time.Second,
		KeywordTimeout: 20 * time.Second,
	}
}

// Service is safe for concurrent use.
type Service struct {
	gen    Generator
	usage  UsageStore
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	tokens int64
}

// NewService loads the persisted token counter and returns a service.
func NewService(ctx context.Context, gen Generator, usage UsageStore, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.TokenCeiling <= 0 {
		cfg.TokenCeiling = defaults.TokenCeiling
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = defaults.ChatTimeout
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = defaults.SummaryTimeout
	}
	if cfg.KeywordTimeout <= 0 {
		cfg.KeywordTimeout = defaults.KeywordTimeout
	}

	tokens, err := usage.GetTokenUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token usage: %w", err)
	}

	return &Service{
		gen:    gen,
		usage:  usage,
		cfg:    cfg,
		logger: logger,
		tokens: max(tokens, 0),
	}, nil
}

// ReplyRequest is one chat turn. History excludes the current message.
type ReplyRequest struct {
	Message     string
	Directive   string
	History     []domain.ChatMessage
	Context     []domain.ContextItem
	Mood        domain.Mood
	PersonaName string
}

// Reply is the outcome of a chat turn. On failure Text holds the
// user-facing apology and Kind the error category.
type Reply struct {
	Text       string
	TokensUsed int
	OK         bool
	Kind       agent.ErrorKind
}

// Reply asks the persona for its next message.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) Reply {
	if strings.TrimSpace(req.Message) == "" {
		return Reply{Text: MsgEmptyInput}
	}
	if s.Exhausted() {
		return Reply{Text: MsgBudgetExhausted}
	}

	persona := req.PersonaName
	if persona == "" {
		persona = domain.DefaultPersonaName
	}

	history := req.History
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]agent.Message, 0, len(history)+2)
	messages = append(messages, agent.Message{Role: agent.RoleSystem, Content: systemPrompt(persona, req.Mood, req.Context)})
	for _, m := range history {
		messages = append(messages, agent.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, agent.Message{Role: agent.RoleUser, Content: req.Message + req.Directive})

	gen, err := s.generate(ctx, s.cfg.ChatTimeout, agent.GenerateRequest{
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		kind := agent.KindOf(err)
		return Reply{Text: ErrorMessage(kind), Kind: kind}
	}

	return Reply{Text: gen.Text, TokensUsed: gen.TokensUsed, OK: true}
}

// Summary is the structured digest of a conversation.
type Summary struct {
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
	ActionItems []string `json:"action_items"`
	OK          bool     `json:"ok"`
}

func defaultSummary() Summary {
	return Summary{
		Summary:     DefaultSummary,
		Keywords:    []string{DefaultKeyword},
		ActionItems: []string{DefaultActionItem},
	}
}

// Summarize asks the model for a summary, keywords and advice from the
// user's side of the conversation.
func (s *Service) Summarize(ctx context.Context, history []domain.ChatMessage) Summary {
	text := userText(history, summaryInputCap)
	if text == "" || s.Exhausted() {
		return defaultSummary()
	}

	gen, err := s.generate(ctx, s.cfg.SummaryTimeout, agent.GenerateRequest{
		Messages:    []agent.Message{{Role: agent.RoleUser, Content: summaryPrompt(text)}},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return defaultSummary()
	}

	sum, ok := parseSummary(gen.Text)
	if !ok {
		s.logger.Warn("summary reply had no recognizable sections")
		return defaultSummary()
	}
	sum.OK = true
	return sum
}

// SuggestKeywords returns exactly five hashtag keywords for the conversation.
func (s *Service) SuggestKeywords(ctx context.Context, history []domain.ChatMessage, mood domain.Mood) []string {
	text := userText(history, keywordInputCap)
	if len(history) == 0 || s.Exhausted() {
		return MoodKeywords(mood)
	}

	gen, err := s.generate(ctx, s.cfg.KeywordTimeout, agent.GenerateRequest{
		Messages:    []agent.Message{{Role: agent.RoleUser, Content: keywordPrompt(text, mood)}},
		Temperature: 0.7,
		MaxTokens:   100,
	})
	if err != nil {
		return MoodKeywords(mood)
	}
	return parseKeywords(gen.Text)
}

// TokenUsage returns the cumulative token counter.
func (s *Service) TokenUsage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Exhausted reports whether the token ceiling has been reached.
func (s *Service) Exhausted() bool {
	return s.TokenUsage() >= s.cfg.TokenCeiling
}

// Energy returns the budget gauge.
func (s *Service) Energy() Energy {
	return NewEnergy(s.TokenUsage(), s.cfg.TokenCeiling)
}

func (s *Service) generate(ctx context.Context, timeout time.Duration, req agent.GenerateRequest) (agent.Generation, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gen, err := s.gen.Generate(callCtx, req)
	if err != nil {
		s.logger.Warn("model call failed", "kind", agent.KindOf(err), "error", err)
		return agent.Generation{}, err
	}
	s.addTokens(ctx, gen.TokensUsed)
	return gen, nil
}

func (s *Service) addTokens(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.tokens += int64(n)
	total := s.tokens
	s.mu.Unlock()

	if err := s.usage.SetTokenUsage(ctx, total); err != nil {
		s.logger.Error("failed to persist token usage", "tokens", total, "error", err)
	}
}

// userText joins user-role contents, truncated to limit runes.
func userText(history []domain.ChatMessage, limit int) string {
	var parts []string
	for _, m := range history {
		if m.Role == domain.RoleUser && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	text := strings.Join(parts, "\n")
	if runes := []rune(text); len(runes) > limit {
		text = string(runes[:limit]) + "..."
	}
	return text
}

// parseSummary reads the three labeled sections. ok is false when none
// of them were found.
func parseSummary(reply string) (Summary, bool) {
	var (
		sum       Summary
		found     bool
		inActions bool
	)
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "요약:"):
			sum.Summary = strings.TrimSpace(strings.TrimPrefix(line, "요약:"))
			found, inActions = true, false
		case strings.HasPrefix(line, "감정키워드:"):
			for _, k := range strings.Split(strings.TrimPrefix(line, "감정키워드:"), ",") {
				if k = strings.TrimSpace(k); k != "" {
					sum.Keywords = append(sum.Keywords, k)
				}
			}
			found, inActions = true, false
		case strings.HasPrefix(line, "액션아이템:"):
			found, inActions = true, true
		case inActions && strings.HasPrefix(line, "-"):
			if item := strings.TrimSpace(strings.TrimLeft(line, "- ")); item != "" {
				sum.ActionItems = append(sum.ActionItems, item)
			}
		}
	}

	if sum.Summary == "" {
		sum.Summary = DefaultSummary
	}
	if len(sum.Keywords) == 0 {
		sum.Keywords = []string{DefaultKeyword}
	}
	if len(sum.ActionItems) == 0 {
		sum.ActionItems = []string{DefaultActionItem}
	}
	if len(sum.Keywords) > MaxKeywords {
		sum.Keywords = sum.Keywords[:MaxKeywords]
	}
	if len(sum.ActionItems) > MaxActionItems {
		sum.ActionItems = sum.ActionItems[:MaxActionItems]
	}
	return sum, found
}

// parseKeywords keeps '#' tokens, drops duplicates and pads to exactly five.
func parseKeywords(reply string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t'
	})

	seen := make(map[string]bool)
	keywords := make([]string, 0, MaxKeywords)
	add := func(k string) {
		if len(keywords) < MaxKeywords && !seen[k] {
			seen[k] = true
			keywords = append(keywords, k)
		}
	}
	for _, f := range fields {
		if f = strings.TrimSpace(f); len(f) > 1 && strings.HasPrefix(f, "#") {
			add(f)
		}
	}
	for _, k := range GenericKeywords {
		add(k)
	}
	return keywords
}
