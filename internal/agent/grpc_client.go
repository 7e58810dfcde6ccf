package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names served by the model sidecar. Payloads are
// google.protobuf.Struct so no generated stubs are needed.
const (
	generateMethod = "/moodjournal.model.v1.ModelService/Generate"
	moderateMethod = "/moodjournal.model.v1.ModelService/Moderate"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errMalformedResponse        = errors.New("malformed model response")
)

// GrpcClient provides a gRPC client to a model sidecar service.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	Model            string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	DialOptions      []grpc.DialOption
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          DefaultConfig().AgentAddr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcClientConfigFrom derives the gRPC settings from the agent config.
func GrpcClientConfigFrom(cfg Config) GrpcClientConfig {
	out := DefaultGrpcClientConfig()
	if cfg.AgentAddr != "" {
		out.Address = cfg.AgentAddr
	}
	out.Model = cfg.Model
	return out
}

// NewGrpcClient connects to the model sidecar and waits until it is ready.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to model service at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("model service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to model service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks if the model service reports SERVING.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health check failed: status %s", resp.GetStatus())
	}
	return nil
}

// Generate sends the prompt to the sidecar.
func (c *GrpcClient) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	messages := make([]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
	}
	in, err := structpb.NewStruct(map[string]any{
		"messages":    messages,
		"temperature": float64(req.Temperature),
		"max_tokens":  req.MaxTokens,
	})
	if err != nil {
		return Generation{}, newError(KindOther, fmt.Errorf("build generate request: %w", err))
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, generateMethod, in, out); err != nil {
		kind := kindFromStatus(err)
		c.logger.Warn("Generate failed", "kind", kind, "error", err)
		return Generation{}, newError(kind, err)
	}

	fields := out.GetFields()
	text, ok := fields["text"]
	if !ok {
		return Generation{}, newError(KindOther, errMalformedResponse)
	}
	return Generation{
		Text:       text.GetStringValue(),
		TokensUsed: safeFloatToInt(fields["tokens_used"].GetNumberValue()),
	}, nil
}

// Moderate asks the sidecar to classify text.
func (c *GrpcClient) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	in, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return ModerationResult{}, newError(KindOther, fmt.Errorf("build moderate request: %w", err))
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, moderateMethod, in, out); err != nil {
		kind := kindFromStatus(err)
		c.logger.Warn("Moderate failed", "kind", kind, "error", err)
		return ModerationResult{}, newError(kind, err)
	}

	fields := out.GetFields()
	catValue, ok := fields["categories"]
	if !ok {
		return ModerationResult{}, newError(KindOther, errMalformedResponse)
	}
	categories := make(map[string]bool)
	for name, v := range catValue.GetStructValue().GetFields() {
		categories[name] = v.GetBoolValue()
	}
	return coarseFlags(fields["flagged"].GetBoolValue(), categories), nil
}

func kindFromStatus(err error) ErrorKind {
	if isTimeout(err) {
		return KindTimeout
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindAuth
	case codes.ResourceExhausted:
		return KindRateLimit
	case codes.FailedPrecondition:
		return KindQuota
	case codes.DeadlineExceeded:
		return KindTimeout
	}
	return KindOther
}

func safeFloatToInt(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
