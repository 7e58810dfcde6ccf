package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	return client
}

func TestOpenAIGenerateReturnsTextAndTokens(t *testing.T) {
	t.Parallel()

	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model       string    `json:"model"`
			Messages    []Message `json:"messages"`
			MaxTokens   int       `json:"max_tokens"`
			Temperature float32   `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Model != "gpt-4o" || body.MaxTokens != 200 || len(body.Messages) != 2 {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "반가워요!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42}
		}`))
	})

	gen, err := client.Generate(context.Background(), GenerateRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "persona"},
			{Role: RoleUser, Content: "안녕"},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gen.Text != "반가워요!" || gen.TokensUsed != 42 {
		t.Fatalf("unexpected generation: %+v", gen)
	}
}

func TestOpenAIGenerateClassifiesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`, KindAuth},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`, KindQuota},
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, KindRateLimit},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, KindOther},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newTestOpenAIClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.Generate(context.Background(), GenerateRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tc.want {
				t.Fatalf("expected kind %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestOpenAIGenerateTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, GenerateRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout kind, got %s (%v)", KindOf(err), err)
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestOpenAIModerateMapsCategories(t *testing.T) {
	t.Parallel()

	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moderations" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "modr-1",
			"model": "omni-moderation-latest",
			"results": [{
				"flagged": true,
				"categories": {"self-harm/intent": true, "violence": false, "harassment/threatening": true},
				"category_scores": {}
			}]
		}`))
	})

	res, err := client.Moderate(context.Background(), "text")
	if err != nil {
		t.Fatalf("Moderate failed: %v", err)
	}
	if !res.Flagged || !res.SelfHarm || !res.Violence {
		t.Fatalf("unexpected moderation result: %+v", res)
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(Config{}, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNewProcessorRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewProcessor(Config{Provider: "carrier-pigeon"}, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
