package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/idgen"
	"github.com/alfredjeanlab/workq/internal/metrics"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	authKey
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func authFrom(ctx context.Context) *authz.Context {
	ac, _ := ctx.Value(authKey).(*authz.Context)
	return ac
}

// withRequestID reuses a well-formed inbound X-Request-ID or mints one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !idgen.Accept(id) {
			id = idgen.RequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument wraps a routed handler with panic recovery, request logging,
// and per-route metrics.
func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	method, _, _ := strings.Cut(route, " ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"route", route,
					"request_id", requestIDFrom(r.Context()),
					"panic", fmt.Sprintf("%v", p),
					"stack", string(debug.Stack()),
				)
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, "internal server error")
				}
			}

			elapsed := time.Since(start)
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.RequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			metrics.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", elapsed,
				"request_id", requestIDFrom(r.Context()),
			)
		}()

		h(rec, r)
	})
}

// authenticate attaches the caller's authorization context. Requests
// without an Authorization header are anonymous; anonymous access must be
// enabled for them to proceed.
func (s *Server) authenticate(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		header := r.Header.Get("Authorization")

		var (
			ac  *authz.Context
			err error
		)
		if header == "" {
			ac, err = s.auth.Anonymous(ctx)
			if errors.Is(err, authz.ErrNoContext) {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
		} else {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
				return
			}
			userID, perr := authz.ParseToken(s.secret, strings.TrimSpace(raw))
			if perr != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ac, err = s.auth.Resolve(ctx, userID)
			if errors.Is(err, authz.ErrNoContext) {
				writeError(w, http.StatusUnauthorized, "unknown or locked user")
				return
			}
		}
		if err != nil {
			s.logger.Error("resolving caller failed", "request_id", requestIDFrom(ctx), "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		h(w, r.WithContext(context.WithValue(ctx, authKey, ac)))
	}
}
