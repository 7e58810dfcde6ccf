package diary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/conversation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/moderation"
)

var errInjected = errors.New("injected failure")

// memRepo is an in-memory store.Repository.
type memRepo struct {
	mu       sync.Mutex
	entries  []domain.DiaryEntry
	trashed  []domain.TrashedEntry
	settings map[string]string
	tokens   int64

	failSave bool
	failList bool
}

func newMemRepo() *memRepo {
	return &memRepo{settings: map[string]string{}}
}

func (m *memRepo) SaveEntry(_ context.Context, e domain.DiaryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errInjected
	}
	m.entries = append(m.entries, e.Clone())
	sort.SliceStable(m.entries, func(i, j int) bool {
		if m.entries[i].Date != m.entries[j].Date {
			return m.entries[i].Date < m.entries[j].Date
		}
		return m.entries[i].Time < m.entries[j].Time
	})
	return nil
}

func (m *memRepo) ListEntries(context.Context) ([]domain.DiaryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errInjected
	}
	out := make([]domain.DiaryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (m *memRepo) MoveToTrash(_ context.Context, key domain.EntryKey, deletedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.Key() == key {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			m.trashed = append([]domain.TrashedEntry{domain.NewTrashedEntry(e, deletedAt)}, m.trashed...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ListTrashed(context.Context) ([]domain.TrashedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errInjected
	}
	return append([]domain.TrashedEntry(nil), m.trashed...), nil
}

func (m *memRepo) Restore(ctx context.Context, key domain.TrashKey) (bool, error) {
	m.mu.Lock()
	idx := m.findTrashed(key)
	if idx < 0 {
		m.mu.Unlock()
		return false, nil
	}
	t := m.trashed[idx]
	m.trashed = append(m.trashed[:idx], m.trashed[idx+1:]...)
	m.mu.Unlock()
	return true, m.SaveEntry(ctx, t.DiaryEntry)
}

func (m *memRepo) PermanentDelete(_ context.Context, key domain.TrashKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.findTrashed(key)
	if idx < 0 {
		return false, nil
	}
	m.trashed = append(m.trashed[:idx], m.trashed[idx+1:]...)
	return true, nil
}

func (m *memRepo) findTrashed(key domain.TrashKey) int {
	for i, t := range m.trashed {
		if t.DiaryEntry.Key() == key.EntryKey && t.DeletedAt.Equal(key.DeletedAt) {
			return i
		}
	}
	return -1
}

func (m *memRepo) PurgeExpired(_ context.Context, today time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.TrashedEntry
	var n int64
	for _, t := range m.trashed {
		if t.Expired(today) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.trashed = kept
	return n, nil
}

func (m *memRepo) EmptyTrash(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.trashed))
	m.trashed = nil
	return n, nil
}

func (m *memRepo) GetSetting(_ context.Context, key, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memRepo) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *memRepo) GetTokenUsage(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, nil
}

func (m *memRepo) SetTokenUsage(_ context.Context, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
	return nil
}

func (m *memRepo) Ping(context.Context) error { return nil }
func (m *memRepo) Close() error               { return nil }

// fakeConversation records calls and returns canned results.
type fakeConversation struct {
	reply          conversation.Reply
	summary        conversation.Summary
	keywords       []string
	replyRequests  []conversation.ReplyRequest
	summarizeCalls int
	keywordCalls   int
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{
		reply: conversation.Reply{Text: "그랬군요. 더 얘기해 줄래요?", TokensUsed: 50, OK: true},
		summary: conversation.Summary{
			Summary:     "친구와 화해했다",
			Keywords:    []string{"#안도"},
			ActionItems: []string{"푹 자요", "물 마셔요"},
			OK:          true,
		},
		keywords: []string{"#안도", "#기쁨", "#설렘", "#뿌듯함", "#평온"},
	}
}

func (f *fakeConversation) Reply(_ context.Context, req conversation.ReplyRequest) conversation.Reply {
	f.replyRequests = append(f.replyRequests, req)
	return f.reply
}

func (f *fakeConversation) Summarize(context.Context, []domain.ChatMessage) conversation.Summary {
	f.summarizeCalls++
	return f.summary
}

func (f *fakeConversation) SuggestKeywords(context.Context, []domain.ChatMessage, domain.Mood) []string {
	f.keywordCalls++
	return append([]string(nil), f.keywords...)
}

func (f *fakeConversation) Energy() conversation.Energy {
	return conversation.NewEnergy(0, conversation.DefaultTokenCeiling)
}

func (f *fakeConversation) Exhausted() bool { return false }

// fakeModerator always returns result.
type fakeModerator struct {
	result moderation.Result
}

func (f *fakeModerator) Classify(context.Context, string) moderation.Result {
	return f.result
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	ctrl  *Controller
	repo  *memRepo
	conv  *fakeConversation
	mod   *fakeModerator
	clock *testClock
}

func newHarness(t *testing.T, repo *memRepo) *harness {
	t.Helper()
	if repo == nil {
		repo = newMemRepo()
	}
	h := &harness{
		repo:  repo,
		conv:  newFakeConversation(),
		mod:   &fakeModerator{},
		clock: &testClock{now: time.Date(2026, 10, 16, 21, 30, 0, 0, time.Local)},
	}
	ctrl, err := NewController(context.Background(), Deps{
		Store:        h.repo,
		Conversation: h.conv,
		Moderator:    h.mod,
		Now:          h.clock.Now,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	h.ctrl = ctrl
	return h
}

// chatAndSummarize drives the controller to the Summary state.
func (h *harness) chatAndSummarize(t *testing.T) Draft {
	t.Helper()
	ctx := context.Background()
	if err := h.ctrl.SelectMood(domain.MoodGood); err != nil {
		t.Fatalf("SelectMood failed: %v", err)
	}
	if _, err := h.ctrl.SendMessage(ctx, "오늘 친구랑 화해했어"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	draft, err := h.ctrl.RequestSummary(ctx)
	if err != nil {
		t.Fatalf("RequestSummary failed: %v", err)
	}
	return draft
}

func failedReply(kind agent.ErrorKind) conversation.Reply {
	return conversation.Reply{Text: conversation.ErrorMessage(kind), Kind: kind}
}
