package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

var errEmptyCompletion = errors.New("completion returned no choices")

// OpenAIClient talks to an OpenAI-compatible HTTP API.
type OpenAIClient struct {
	client          *openai.Client
	model           string
	moderationModel string
	logger          *slog.Logger
}

// NewOpenAIClient creates a client for the hosted chat and moderation endpoints.
func NewOpenAIClient(cfg Config, logger *slog.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	defaults := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.ModerationModel == "" {
		cfg.ModerationModel = defaults.ModerationModel
	}

	logger.Info("Using OpenAI-compatible model API", "model", cfg.Model, "base_url", clientCfg.BaseURL)

	return &OpenAIClient{
		client:          openai.NewClientWithConfig(clientCfg),
		model:           cfg.Model,
		moderationModel: cfg.ModerationModel,
		logger:          logger,
	}, nil
}

// Generate runs one chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		kind := classifyOpenAIError(err)
		c.logger.Warn("chat completion failed", "kind", kind, "error", err)
		return Generation{}, newError(kind, err)
	}
	if len(resp.Choices) == 0 {
		return Generation{}, newError(KindOther, errEmptyCompletion)
	}

	return Generation{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Moderate calls the moderation endpoint.
func (c *OpenAIClient) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.moderationModel,
	})
	if err != nil {
		kind := classifyOpenAIError(err)
		c.logger.Warn("moderation request failed", "kind", kind, "error", err)
		return ModerationResult{}, newError(kind, err)
	}
	if len(resp.Results) == 0 {
		return ModerationResult{}, newError(KindOther, errors.New("moderation returned no results"))
	}

	r := resp.Results[0]
	cat := r.Categories
	return coarseFlags(r.Flagged, map[string]bool{
		"self-harm":              cat.SelfHarm,
		"self-harm/intent":       cat.SelfHarmIntent,
		"self-harm/instructions": cat.SelfHarmInstructions,
		"violence":               cat.Violence,
		"violence/graphic":       cat.ViolenceGraphic,
		"harassment":             cat.Harassment,
		"harassment/threatening": cat.HarassmentThreatening,
		"hate/threatening":       cat.HateThreatening,
	}), nil
}

// Close is a no-op; the HTTP transport is shared.
func (c *OpenAIClient) Close() {}

func classifyOpenAIError(err error) ErrorKind {
	if isTimeout(err) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if code == "" {
			code = apiErr.Type
		}
		return kindFromHTTPStatus(apiErr.HTTPStatusCode, code)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return kindFromHTTPStatus(reqErr.HTTPStatusCode, "")
	}
	return KindOther
}

func kindFromHTTPStatus(status int, code string) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		if code == "insufficient_quota" {
			return KindQuota
		}
		return KindRateLimit
	case http.StatusPaymentRequired:
		return KindQuota
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	}
	return KindOther
}

// NewProcessor builds the Processor selected by cfg.Provider.
func NewProcessor(cfg Config, logger *slog.Logger) (Processor, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg, logger)
	case ProviderGRPC:
		return NewGrpcClient(GrpcClientConfigFrom(cfg), logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
