package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/engine"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

// RunQueryMethod is the full gRPC method name of the query runner.
const RunQueryMethod = "/" + ServiceName + "/RunQuery"

// QueryServiceServer runs ad-hoc queries. Requests and responses are
// google.protobuf.Struct values carrying the JSON query and collection
// shapes of the HTTP API.
type QueryServiceServer interface {
	RunQuery(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunQuery", Handler: runQueryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "workq/v1/query.proto",
}

func runQueryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).RunQuery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunQueryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryServiceServer).RunQuery(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// queryService executes queries for the user AuthInterceptor verified.
type queryService struct {
	s *Server
}

// RunQuery decodes a query transport from in and returns one result
// page. The query is never saved; its id and owner are ignored.
func (qs queryService) RunQuery(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing user")
	}
	ac, err := qs.s.auth.Resolve(ctx, userID)
	if errors.Is(err, authz.ErrNoContext) {
		return nil, status.Error(codes.Unauthenticated, "unknown or locked user")
	}
	if err != nil {
		return nil, qs.s.rpcError(err)
	}

	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	var t query.Transport
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed query: %v", err)
	}
	t.ID = 0

	reg, err := qs.s.registry(ctx)
	if err != nil {
		return nil, qs.s.rpcError(err)
	}
	res, err := qs.s.executor.Execute(ctx, reg, query.FromTransport(t, ac.UserID), ac)
	if err != nil {
		return nil, qs.s.rpcError(err)
	}

	body, err := json.Marshal(newCollection(&url.URL{Path: "/api/v3/work_packages"}, res))
	if err != nil {
		return nil, qs.s.rpcError(err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, qs.s.rpcError(err)
	}
	return out, nil
}

// rpcError maps err to a gRPC status the way writeFailure maps it to an
// HTTP status.
func (s *Server) rpcError(err error) error {
	var (
		ve *model.ValidationError
		ae *engine.AuthorizationError
		ee *engine.ExecutionError
	)
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.As(err, &ae):
		return status.Error(codes.PermissionDenied, ae.Error())
	case errors.As(err, &ee):
		s.logger.Error("query execution failed", "op", ee.Op, "retryable", ee.Retryable, "err", ee.Err)
		if ee.Retryable {
			return status.Error(codes.Unavailable, "query execution failed, retry later")
		}
		return status.Error(codes.Internal, "query execution failed")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		s.logger.Error("rpc failed", "err", err)
		return status.Error(codes.Internal, "internal server error")
	}
}
