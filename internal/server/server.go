// Package server exposes workq over HTTP (/api/v3) and gRPC.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/engine"
	"github.com/alfredjeanlab/workq/internal/events"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/store"
)

// Authenticator builds authorization contexts for callers.
type Authenticator interface {
	Anonymous(ctx context.Context) (*authz.Context, error)
	Resolve(ctx context.Context, userID int64) (*authz.Context, error)
}

// Options configures a Server.
type Options struct {
	// JWTSecret verifies bearer tokens. Empty rejects every token, leaving
	// only anonymous access.
	JWTSecret string
	Logger    *slog.Logger
}

// Server holds the dependencies shared by the HTTP handlers.
type Server struct {
	store     store.Store
	executor  *engine.Executor
	auth      Authenticator
	publisher events.Publisher
	secret    []byte
	logger    *slog.Logger
}

func New(s store.Store, exec *engine.Executor, auth Authenticator, pub events.Publisher, opts Options) *Server {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     s,
		executor:  exec,
		auth:      auth,
		publisher: pub,
		secret:    []byte(opts.JWTSecret),
		logger:    logger,
	}
}

// registry loads the field schema, including the current custom fields.
func (s *Server) registry(ctx context.Context) (*query.Registry, error) {
	fields, err := s.store.ListCustomFields(ctx)
	if err != nil {
		return nil, err
	}
	return query.NewRegistry(fields), nil
}

// publish emits an event. Failures are logged and never reach the caller.
func (s *Server) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "request_id", requestIDFrom(ctx), "err", err)
	}
}

// inputError indicates a malformed request. It maps to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// forbiddenError indicates a permission failure outside query execution.
// It maps to 403.
type forbiddenError string

func (e forbiddenError) Error() string { return string(e) }
