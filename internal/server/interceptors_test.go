package server

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/workq/internal/authz"
)

var queryMethod = &grpc.UnaryServerInfo{FullMethod: RunQueryMethod}

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

func withAuth(value string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
}

func TestAuthInterceptor_HealthExempt(t *testing.T) {
	interceptor := AuthInterceptor(testSecret)
	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, stubHandler)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("expected 'ok', got %v", resp)
	}
}

func TestAuthInterceptor_Rejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		ctx  context.Context
		msg  string
	}{
		{"MissingMetadata", context.Background(), "missing metadata"},
		{"MissingHeader", metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "value")), "missing authorization header"},
		{"WrongScheme", withAuth("Token abc"), "invalid authorization scheme"},
		{"BadToken", withAuth("Bearer abc"), "invalid token"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AuthInterceptor(testSecret)(tc.ctx, nil, queryMethod, stubHandler)
			if status.Code(err) != codes.Unauthenticated {
				t.Fatalf("expected Unauthenticated, got %v", err)
			}
			if got := status.Convert(err).Message(); got != tc.msg {
				t.Errorf("message = %q, want %q", got, tc.msg)
			}
		})
	}
}

func TestAuthInterceptor_ValidToken(t *testing.T) {
	tok, err := authz.IssueToken([]byte(testSecret), aliceID, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	var seen int64
	handler := func(ctx context.Context, _ any) (any, error) {
		seen, _ = UserIDFromContext(ctx)
		return "ok", nil
	}
	if _, err := AuthInterceptor(testSecret)(withAuth("Bearer "+tok), nil, queryMethod, handler); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if seen != aliceID {
		t.Errorf("user id = %d, want %d", seen, aliceID)
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(slog.New(slog.DiscardHandler))
	_, err := interceptor(context.Background(), nil, queryMethod, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	interceptor := LoggingInterceptor(slog.New(slog.DiscardHandler))
	want := status.Error(codes.NotFound, "missing")
	_, err := interceptor(context.Background(), nil, queryMethod, func(context.Context, any) (any, error) {
		return nil, want
	})
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestGRPCHealth(t *testing.T) {
	srv, hs := newTestEnv(t, false).server.NewGRPCServer()
	conn := serveGRPC(t, srv)
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.Status)
	}

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown signal: %v, %v", resp, err)
	}
}
