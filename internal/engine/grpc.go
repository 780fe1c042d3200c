package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errEngineResponse           = errors.New("engine returned error")
)

// codecName selects the JSON codec on every engine call. The engine service
// speaks length-prefixed JSON messages over gRPC streams, so no generated
// stubs are needed on this side.
const codecName = "chatjson"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

var generateStreamDesc = grpc.StreamDesc{
	StreamName:    "Generate",
	ServerStreams: true,
}

const (
	generateMethod = "/agent.Engine/Generate"
	healthMethod   = "/agent.Engine/Health"
)

type generateRequest struct {
	History []Turn `json:"history"`
}

type generateChunk struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

type healthRequest struct{}

type healthResponse struct {
	Status string `json:"status"`
}

// GrpcEngine is a gRPC client to the external agent engine service.
type GrpcEngine struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcConfig holds configuration for the engine client.
type GrpcConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcConfig returns default engine client configuration.
func DefaultGrpcConfig(addr string) GrpcConfig {
	return GrpcConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpc creates a gRPC engine client and verifies the endpoint is
// reachable before returning, so bad engine addresses fail at startup.
func NewGrpc(cfg GrpcConfig, logger *slog.Logger) (*GrpcEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial engine at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close engine connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("engine at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent engine", "address", cfg.Address)

	return &GrpcEngine{
		conn:   conn,
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

// Generate streams assistant fragments from the engine service.
func (e *GrpcEngine) Generate(ctx context.Context, history []Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := e.conn.NewStream(ctx, &generateStreamDesc, generateMethod)
		if err != nil {
			yield("", fmt.Errorf("engine generate: %w", err))
			return
		}

		if err := stream.SendMsg(&generateRequest{History: history}); err != nil {
			yield("", fmt.Errorf("engine generate send: %w", err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield("", fmt.Errorf("engine generate close send: %w", err))
			return
		}

		for {
			var chunk generateChunk
			err := stream.RecvMsg(&chunk)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("engine stream: %w", err))
				return
			}

			if chunk.Error != "" {
				yield("", fmt.Errorf("%w: %s", errEngineResponse, chunk.Error))
				return
			}

			if !yield(chunk.Content, nil) {
				return
			}
		}
	}
}

// Healthy checks the engine service health endpoint.
func (e *GrpcEngine) Healthy(ctx context.Context) error {
	var resp healthResponse
	if err := e.conn.Invoke(ctx, healthMethod, &healthRequest{}, &resp); err != nil {
		return fmt.Errorf("engine health check: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (e *GrpcEngine) Close() {
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			e.logger.Warn("failed to close engine connection", "error", err)
		}
	}
}

// Ensure GrpcEngine implements Engine.
var _ Engine = (*GrpcEngine)(nil)
