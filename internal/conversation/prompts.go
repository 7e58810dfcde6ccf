package conversation

import (
	"fmt"
	"strings"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// User-facing messages.
const (
	MsgEmptyInput      = "메시지를 입력해주세요."
	MsgBudgetExhausted = "죄송해요. AI와 대화할 수 있는 에너지가 다 떨어졌어요."
)

var errorMessages = map[agent.ErrorKind]string{
	agent.KindAuth:      "API 문제가 생겼어요. 잠시 후 다시 시도해주세요.",
	agent.KindQuota:     "사용량 한도에 도달했어요. 관리자에게 문의해주세요.",
	agent.KindTimeout:   "응답이 너무 오래 걸려요. 다시 시도해주세요.",
	agent.KindRateLimit: "요청이 너무 많아요. 잠시 후 다시 시도해주세요.",
	agent.KindOther:     "일시적으로 문제가 생겼어요. 다시 시도해주세요.",
}

// ErrorMessage returns the apology shown for a failed model call.
func ErrorMessage(kind agent.ErrorKind) string {
	if msg, ok := errorMessages[kind]; ok {
		return msg
	}
	return errorMessages[agent.KindOther]
}

// Directives appended to the user's message when moderation flags it.
const (
	SelfHarmDirective = "\n\n중요: 사용자가 자해나 자살 관련 내용을 언급했습니다. 공감적으로 반응한 후 자연스럽게 전문 상담 연락처를 안내해주세요."
	ViolenceDirective = "\n\n중요: 사용자가 폭력이나 위험 상황을 언급했습니다. 안전을 우선시하며 적절한 도움 연락처를 안내해주세요."
)

// Fallback values used whenever the model output is missing or unusable.
const (
	DefaultSummary    = "오늘의 감정을 나누었어요"
	DefaultKeyword    = "#감정나눔"
	DefaultActionItem = "오늘도 고생 많았어요"
)

// GenericKeywords pads short keyword suggestions.
var GenericKeywords = []string{"#감정나눔", "#일상", "#생각", "#마음", "#기분"}

var moodKeywords = map[domain.Mood][]string{
	domain.MoodGood:    {"#기쁨", "#활기", "#만족", "#희망", "#평온"},
	domain.MoodNeutral: {"#평범", "#일상", "#차분", "#보통", "#안정"},
	domain.MoodBad:     {"#우울", "#피곤", "#스트레스", "#불안", "#힘듦"},
}

// MoodKeywords returns the default suggestion set for mood.
func MoodKeywords(mood domain.Mood) []string {
	if kw, ok := moodKeywords[mood]; ok {
		return append([]string(nil), kw...)
	}
	return append([]string(nil), GenericKeywords...)
}

type toneProfile struct {
	tone     string
	approach string
}

var toneProfiles = map[domain.Mood]toneProfile{
	domain.MoodGood: {
		tone:     "밝고 활기찬 말투로 기쁨을 함께 나누세요",
		approach: "긍정적인 감정을 더 깊이 느낄 수 있도록 격려하세요",
	},
	domain.MoodNeutral: {
		tone:     "편안하고 자연스러운 말투로 대화하세요",
		approach: "일상의 소소한 의미를 찾을 수 있도록 도와주세요",
	},
	domain.MoodBad: {
		tone:     "부드럽고 따뜻한 말투로 위로하세요",
		approach: "힘든 감정을 안전하게 표현할 수 있도록 공간을 만들어주세요",
	},
}

var greetingLines = map[domain.Mood]string{
	domain.MoodGood:    "오늘 기분이 좋았군요.",
	domain.MoodNeutral: "오늘은 평범한 하루였군요.",
	domain.MoodBad:     "오늘 좀 힘드셨군요.",
}

// Greeting is the persona's opening line for a new chat.
func Greeting(persona string, mood domain.Mood) string {
	line, ok := greetingLines[mood]
	if !ok {
		line = "오늘 하루 어땠어요?"
	}
	return fmt.Sprintf("안녕하세요! 저는 %s예요. %s 오늘 무슨 일이 있었는지 편하게 얘기해볼까요?", persona, line)
}

func systemPrompt(persona string, mood domain.Mood, context []domain.ContextItem) string {
	profile, ok := toneProfiles[mood]
	if !ok {
		mood = domain.MoodNeutral
		profile = toneProfiles[mood]
	}

	var contextText string
	if len(context) > 0 {
		if len(context) > ContextWindow {
			context = context[len(context)-ContextWindow:]
		}
		lines := make([]string, 0, len(context))
		for _, c := range context {
			lines = append(lines, "지난번에 이야기했던 것: "+c.Summary)
		}
		contextText = "\n\n이전 대화 참고:\n" + strings.Join(lines, "\n") + "\n\n"
	}

	return fmt.Sprintf(`당신은 10대를 위한 따뜻하고 공감적인 AI 친구 %s입니다.

핵심 원칙:
- 친구처럼 편하게 대화하되, 존댓말을 사용하세요
- 판단하지 말고 있는 그대로 공감해주세요
- 자해나 위험한 행동은 절대 권하지 마세요
- 응답은 2-3문장으로 간결하게 해주세요

현재 기분: %s
대화 스타일:
- %s
- %s
- 먼저 짧게 공감하고, 구체적인 질문 1개만 하세요

구체적 대화 가이드:
- 사용자가 구체적인 내용을 언급하면 그것에 대해 구체적으로 반응하세요
- 예: "수학시험 망했어" → "수학시험 어려웠구나. 어떤 부분이 가장 힘들었어요?"
- 예: "친구랑 싸웠어" → "친구와 싸우니 속상하겠어요. 어떤 일이 있었나요?"
- 일반적인 응답 대신 사용자의 상황에 맞춘 질문을 하세요

응답 길이: 최대 2-3문장으로 간결하게
응원 멘트: 과도한 응원보다는 자연스러운 공감 우선

위험 상황 대응:
- 자해/자살 언급 시: 공감 후 "이런 마음이 들 때는 전문가와 이야기하는 것이 도움될 수 있어요. 자살예방상담 109번이나 청소년상담 1388번에서 도움받을 수 있어요."
- 폭력 상황 언급 시: "안전이 가장 중요해요. 위험하다면 112번이나 청소년상담 1388번에 도움을 요청하세요."

%s

간결하고 자연스러운 대화를 해주세요.`, persona, mood.Label(), profile.tone, profile.approach, contextText)
}

func summaryPrompt(conversation string) string {
	return fmt.Sprintf(`다음 대화 내용을 분석해서 아래 형식으로 응답해주세요:

대화 내용:
%s

분석 요청:
1. 오늘 있었던 일을 1-2줄로 요약
2. 대화에서 느껴진 감정 키워드 5개 추출 (예: #기쁨, #불안, #성취감 등)
3. 사용자에게 도움이 될 따뜻하고 친근한 조언 3개 제안 (친구 같은 말투로, ~해요/~랍니다 교차 사용)

응답 형식:
요약: [1-2줄 요약]
감정키워드: #키워드1, #키워드2, #키워드3, #키워드4, #키워드5
액션아이템:
- [~해요 말투의 따뜻한 조언]
- [~랍니다 말투의 친근한 조언]
- [~해요 말투의 격려 메시지]`, conversation)
}

func keywordPrompt(conversation string, mood domain.Mood) string {
	return fmt.Sprintf(`다음 대화 내용을 분석해서 사용자의 감정을 나타내는 키워드 5개를 제시해주세요.

대화 내용:
%s

현재 기분: %s

요청사항:
- 대화에서 느껴지는 구체적인 감정 키워드 5개
- 각 키워드는 # 붙여서 해시태그 형태로
- 사용자가 실제로 느꼈을 감정들 위주로
- 너무 추상적이지 않고 구체적으로

응답 형식:
#키워드1, #키워드2, #키워드3, #키워드4, #키워드5`, conversation, mood.Label())
}
