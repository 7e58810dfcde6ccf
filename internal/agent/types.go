// Package agent connects the journal to the external language model.
package agent

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the prompt sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest describes a single completion call.
type GenerateRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Generation is the model's answer plus its reported token cost.
type Generation struct {
	Text       string
	TokensUsed int
}

// ModerationResult carries the coarse safety flags derived from the
// provider's category set.
type ModerationResult struct {
	Flagged  bool
	SelfHarm bool
	Violence bool
}

// Provider names accepted by NewProcessor.
const (
	ProviderOpenAI = "openai"
	ProviderGRPC   = "grpc"
)

// Config holds agent configuration.
type Config struct {
	Provider        string
	Model           string
	ModerationModel string
	APIKey          string
	BaseURL         string
	AgentAddr       string
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		Provider:        ProviderOpenAI,
		Model:           "gpt-4o",
		ModerationModel: "omni-moderation-latest",
		AgentAddr:       "localhost:50051",
	}
}

// Category names shared by both providers' moderation output.
var (
	selfHarmCategories = []string{"self-harm", "self-harm/intent", "self-harm/instructions"}
	violenceCategories = []string{"violence", "violence/graphic", "harassment", "harassment/threatening", "hate/threatening"}
)

// coarseFlags folds a provider category set into the two flags the
// journal cares about.
func coarseFlags(flagged bool, categories map[string]bool) ModerationResult {
	res := ModerationResult{Flagged: flagged}
	for _, name := range selfHarmCategories {
		if categories[name] {
			res.SelfHarm = true
		}
	}
	for _, name := range violenceCategories {
		if categories[name] {
			res.Violence = true
		}
	}
	return res
}
