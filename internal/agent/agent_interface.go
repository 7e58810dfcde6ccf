package agent

import (
	"context"
)

// Processor defines the interface for the external language model capability.
// It is implemented by the OpenAI-compatible client and the gRPC sidecar client.
type Processor interface {
	// Generate produces one completion for the ordered message list.
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)

	// Moderate classifies text into safety categories.
	Moderate(ctx context.Context, text string) (ModerationResult, error)

	// Close releases resources
	Close()
}

// Ensure both clients implement Processor.
var (
	_ Processor = (*GrpcClient)(nil)
	_ Processor = (*OpenAIClient)(nil)
)
