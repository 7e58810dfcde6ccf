package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

type fakeGenerator struct {
	mu       sync.Mutex
	text     string
	tokens   int
	err      error
	requests []agent.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req agent.GenerateRequest) (agent.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return agent.Generation{}, f.err
	}
	return agent.Generation{Text: f.text, TokensUsed: f.tokens}, nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeUsage struct {
	mu     sync.Mutex
	tokens int64
	saves  int
}

func (f *fakeUsage) GetTokenUsage(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens, nil
}

func (f *fakeUsage) SetTokenUsage(_ context.Context, tokens int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = tokens
	f.saves++
	return nil
}

func newTestService(t *testing.T, gen *fakeGenerator, usage *fakeUsage) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), gen, usage, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestReplySuccessAccountsTokens(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: "그랬구나. 어떤 일이 있었어요?", tokens: 120}
	usage := &fakeUsage{tokens: 1000}
	svc := newTestService(t, gen, usage)

	history := make([]domain.ChatMessage, 0, 14)
	for i := 0; i < 14; i++ {
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: "turn"})
	}

	reply := svc.Reply(context.Background(), ReplyRequest{
		Message:     "오늘 친구랑 싸웠어",
		Directive:   ViolenceDirective,
		History:     history,
		Context:     []domain.ContextItem{{Summary: "첫번째"}, {Summary: "두번째"}, {Summary: "세번째"}},
		Mood:        domain.MoodBad,
		PersonaName: "별이",
	})
	if !reply.OK || reply.TokensUsed != 120 || reply.Text != gen.text {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if svc.TokenUsage() != 1120 || usage.tokens != 1120 {
		t.Fatalf("expected usage 1120, got service=%d store=%d", svc.TokenUsage(), usage.tokens)
	}

	req := gen.requests[0]
	// system + 10 history turns + current message
	if len(req.Messages) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(req.Messages))
	}
	system := req.Messages[0].Content
	if !strings.Contains(system, "AI 친구 별이") || !strings.Contains(system, "부드럽고 따뜻한 말투로 위로하세요") {
		t.Fatalf("system prompt missing persona or tone: %s", system)
	}
	if strings.Contains(system, "첫번째") || !strings.Contains(system, "지난번에 이야기했던 것: 세번째") {
		t.Fatalf("system prompt should carry only the last two context items: %s", system)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != agent.RoleUser || last.Content != "오늘 친구랑 싸웠어"+ViolenceDirective {
		t.Fatalf("unexpected final message: %+v", last)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 200 {
		t.Fatalf("unexpected parameters: %+v", req)
	}
}

func TestReplyRejectsBlankInput(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: "x"}
	svc := newTestService(t, gen, &fakeUsage{})

	reply := svc.Reply(context.Background(), ReplyRequest{Message: "  \n"})
	if reply.OK || reply.TokensUsed != 0 || reply.Text != MsgEmptyInput {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if gen.calls() != 0 {
		t.Fatal("model should not be called for blank input")
	}
}

func TestReplyMapsErrorKinds(t *testing.T) {
	t.Parallel()

	for kind, msg := range errorMessages {
		gen := &fakeGenerator{err: &agent.Error{Kind: kind, Err: errors.New("x")}}
		usage := &fakeUsage{tokens: 10}
		svc := newTestService(t, gen, usage)

		reply := svc.Reply(context.Background(), ReplyRequest{Message: "hi", Mood: domain.MoodGood})
		if reply.OK || reply.Text != msg || reply.Kind != kind || reply.TokensUsed != 0 {
			t.Errorf("%s: unexpected reply %+v", kind, reply)
		}
		if svc.TokenUsage() != 10 || usage.saves != 0 {
			t.Errorf("%s: failed call must not change usage", kind)
		}
	}
}

func TestBudgetExhaustedSkipsModel(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: "요약: x"}
	svc := newTestService(t, gen, &fakeUsage{tokens: DefaultTokenCeiling})

	reply := svc.Reply(context.Background(), ReplyRequest{Message: "hi"})
	if reply.OK || reply.TokensUsed != 0 || reply.Text != MsgBudgetExhausted {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	sum := svc.Summarize(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	if sum.OK {
		t.Fatalf("summary should fail when budget is exhausted: %+v", sum)
	}

	kw := svc.SuggestKeywords(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, domain.MoodGood)
	if !reflect.DeepEqual(kw, MoodKeywords(domain.MoodGood)) {
		t.Fatalf("expected mood defaults, got %v", kw)
	}

	if gen.calls() != 0 {
		t.Fatalf("expected no model calls, got %d", gen.calls())
	}
	if svc.Energy().Status != EnergyLow {
		t.Fatalf("expected low energy, got %+v", svc.Energy())
	}
}

func TestSummarizeParsesSections(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{tokens: 80, text: `요약: 시험을 잘 봐서 기분이 좋았다.
감정키워드: #기쁨, #뿌듯함, #안도, #설렘, #자신감, #여유
액션아이템:
- 오늘은 푹 쉬어요
- 스스로를 칭찬해 주는 거랍니다
- 맛있는 걸 먹어요
- 네번째는 버려져요`}
	svc := newTestService(t, gen, &fakeUsage{})

	history := []domain.ChatMessage{
		{Role: domain.RoleAssistant, Content: "안녕하세요"},
		{Role: domain.RoleUser, Content: "시험 잘 봤어"},
	}
	sum := svc.Summarize(context.Background(), history)

	want := Summary{
		Summary:     "시험을 잘 봐서 기분이 좋았다.",
		Keywords:    []string{"#기쁨", "#뿌듯함", "#안도", "#설렘", "#자신감"},
		ActionItems: []string{"오늘은 푹 쉬어요", "스스로를 칭찬해 주는 거랍니다", "맛있는 걸 먹어요"},
		OK:          true,
	}
	if !reflect.DeepEqual(sum, want) {
		t.Fatalf("unexpected summary:\n got  %+v\n want %+v", sum, want)
	}

	prompt := gen.requests[0].Messages[0].Content
	if strings.Contains(prompt, "안녕하세요") || !strings.Contains(prompt, "시험 잘 봤어") {
		t.Fatalf("prompt should contain only user text: %s", prompt)
	}
	if gen.requests[0].Temperature != 0.3 || gen.requests[0].MaxTokens != 300 {
		t.Fatalf("unexpected parameters: %+v", gen.requests[0])
	}
}

func TestSummarizeFillsMissingSections(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: "요약: 조용한 하루"}
	svc := newTestService(t, gen, &fakeUsage{})

	sum := svc.Summarize(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "그냥 그랬어"}})
	if !sum.OK || sum.Summary != "조용한 하루" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !reflect.DeepEqual(sum.Keywords, []string{DefaultKeyword}) || !reflect.DeepEqual(sum.ActionItems, []string{DefaultActionItem}) {
		t.Fatalf("expected per-field defaults: %+v", sum)
	}
}

func TestSummarizeFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		gen     *fakeGenerator
		history []domain.ChatMessage
		calls   int
	}{
		{"empty history", &fakeGenerator{text: "요약: x"}, nil, 0},
		{"assistant only", &fakeGenerator{text: "요약: x"}, []domain.ChatMessage{{Role: domain.RoleAssistant, Content: "hi"}}, 0},
		{"call error", &fakeGenerator{err: errors.New("down")}, []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, 1},
		{"unparseable", &fakeGenerator{text: "I cannot help with that."}, []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(t, tc.gen, &fakeUsage{})
			sum := svc.Summarize(context.Background(), tc.history)
			if !reflect.DeepEqual(sum, defaultSummary()) {
				t.Fatalf("expected defaults, got %+v", sum)
			}
			if tc.gen.calls() != tc.calls {
				t.Fatalf("expected %d calls, got %d", tc.calls, tc.gen.calls())
			}
		})
	}
}

func TestSummarizeTruncatesInput(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: "요약: 길다"}
	svc := newTestService(t, gen, &fakeUsage{})

	long := strings.Repeat("가", summaryInputCap+100)
	svc.Summarize(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: long}})

	prompt := gen.requests[0].Messages[0].Content
	if strings.Contains(prompt, strings.Repeat("가", summaryInputCap+1)) {
		t.Fatal("user text should be truncated")
	}
	if !strings.Contains(prompt, strings.Repeat("가", summaryInputCap)+"...") {
		t.Fatal("truncated text should end with an ellipsis")
	}
}

func TestSuggestKeywords(t *testing.T) {
	t.Parallel()

	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "시험이 끝났어"}}

	tests := []struct {
		name string
		gen  *fakeGenerator
		hist []domain.ChatMessage
		want []string
	}{
		{
			name: "empty history uses mood set",
			gen:  &fakeGenerator{},
			want: []string{"#우울", "#피곤", "#스트레스", "#불안", "#힘듦"},
		},
		{
			name: "keeps tagged tokens and pads",
			gen:  &fakeGenerator{text: "#안도, 후련함, #뿌듯함\n#안도"},
			hist: history,
			want: []string{"#안도", "#뿌듯함", "#감정나눔", "#일상", "#생각"},
		},
		{
			name: "truncates to five",
			gen:  &fakeGenerator{text: "#a, #b, #c, #d, #e, #f"},
			hist: history,
			want: []string{"#a", "#b", "#c", "#d", "#e"},
		},
		{
			name: "error uses mood set",
			gen:  &fakeGenerator{err: errors.New("down")},
			hist: history,
			want: []string{"#우울", "#피곤", "#스트레스", "#불안", "#힘듦"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(t, tc.gen, &fakeUsage{})
			got := svc.SuggestKeywords(context.Background(), tc.hist, domain.MoodBad)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEnergyBuckets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		used   int64
		status string
		remain int64
	}{
		{0, EnergyPlenty, 100_000},
		{49_999, EnergyPlenty, 50_001},
		{50_000, EnergyModerate, 50_000},
		{94_999, EnergyModerate, 5_001},
		{95_000, EnergyLow, 5_000},
		{120_000, EnergyLow, 0},
	}
	for _, tc := range tests {
		e := NewEnergy(tc.used, DefaultTokenCeiling)
		if e.Status != tc.status || e.Remaining != tc.remain {
			t.Errorf("NewEnergy(%d) = %+v", tc.used, e)
		}
	}
}

func TestGreeting(t *testing.T) {
	t.Parallel()

	got := Greeting("루나", domain.MoodGood)
	want := "안녕하세요! 저는 루나예요. 오늘 기분이 좋았군요. 오늘 무슨 일이 있었는지 편하게 얘기해볼까요?"
	if got != want {
		t.Fatalf("unexpected greeting: %q", got)
	}
}
