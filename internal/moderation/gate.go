// Package moderation flags self-harm and violence language in user input.
package moderation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
)

// DefaultTimeout bounds a remote classification call.
const DefaultTimeout = 20 * time.Second

// Phrases matched by the local fallback, written without spaces.
var (
	selfHarmPhrases = []string{
		"자살", "죽고싶", "자해", "죽고싶어", "사라지고싶", "끝내고싶",
		"살기싫", "살고싶지", "죽어버리", "죽었으면", "베고싶", "자살하고",
	}
	violencePhrases = []string{
		"때리고싶", "죽이고싶", "칼", "총", "성폭행", "강간", "폭행",
		"때렸다", "맞았다", "협박", "폭력", "성추행",
	}
)

// Classifier is the remote moderation capability.
type Classifier interface {
	Moderate(ctx context.Context, text string) (agent.ModerationResult, error)
}

// Result is the outcome of Classify. Degraded is set when the keyword
// heuristic answered instead of the remote classifier.
type Result struct {
	SelfHarm bool `json:"self_harm"`
	Violence bool `json:"violence"`
	Flagged  bool `json:"flagged"`
	Degraded bool `json:"degraded"`
}

// Dangerous reports whether either coarse flag is set.
func (r Result) Dangerous() bool {
	return r.SelfHarm || r.Violence
}

// Gate classifies text, falling back to keyword matching when the
// remote classifier fails.
type Gate struct {
	classifier Classifier
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGate creates a gate. A nil classifier always uses the fallback.
func NewGate(classifier Classifier, timeout time.Duration, logger *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{classifier: classifier, timeout: timeout, logger: logger}
}

// Classify never fails: any remote error yields the heuristic result.
func (g *Gate) Classify(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	if g.classifier != nil {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		res, err := g.classifier.Moderate(callCtx, text)
		cancel()
		if err == nil {
			return Result{
				SelfHarm: res.SelfHarm,
				Violence: res.Violence,
				Flagged:  res.Flagged,
			}
		}
		g.logger.Warn("moderation unavailable, using keyword fallback",
			"kind", agent.KindOf(err), "error", err)
	}

	return Fallback(text)
}

// Fallback classifies text with the local keyword lists.
func Fallback(text string) Result {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), ""))
	res := Result{
		SelfHarm: containsAny(normalized, selfHarmPhrases),
		Violence: containsAny(normalized, violencePhrases),
		Degraded: true,
	}
	res.Flagged = res.SelfHarm || res.Violence
	return res
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
