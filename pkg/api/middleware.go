package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/core/session"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	identityKey
	tokenKey
	sessionKey
)

const (
	headerRequestID = "X-Request-ID"
	headerDevSub    = "X-User-Sub"
	headerDevEmail  = "X-User-Email"
)

func generateRequestID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

func requestIDFrom(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

func identityFrom(ctx context.Context) session.Identity {
	id, _ := ctx.Value(identityKey).(session.Identity)
	return id
}

func sessionFrom(ctx context.Context) session.Session {
	s, _ := ctx.Value(sessionKey).(session.Session)
	return s
}

// actorFrom returns the caller of a route behind requireSession
func actorFrom(ctx context.Context) services.Actor {
	return services.ActorFromProfile(sessionFrom(ctx).Profile)
}

// requestID injects a request id into the context and response headers
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			rid = generateRequestID()
		}
		w.Header().Set(headerRequestID, rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder wraps ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests writes one line per request
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestIDFrom(r.Context())),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("Request", fields...)
			return
		}
		s.logger.Info("Request", fields...)
	})
}

// recoveryLogger adapts zap for handlers.RecoveryHandler
type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from panic", zap.String("panic", fmt.Sprint(v...)))
}

// identify resolves the caller from a bearer token, or from the dev bypass
// headers when enabled
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if s.opts.DevBypass {
			if sub := strings.TrimSpace(r.Header.Get(headerDevSub)); sub != "" {
				id := session.Identity{ID: sub, Email: strings.TrimSpace(r.Header.Get(headerDevEmail))}
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey, id)))
				return
			}
		}

		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, APIResponse{Message: "unauthorized"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

		id, err := s.auth.Authenticate(ctx, token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx = context.WithValue(ctx, identityKey, id)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession loads the caller's profile. Requests from a session that
// is not ready get 503 with the session so the client can offer a retry.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := s.sessions.SignedIn(ctx, identityFrom(ctx))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !sess.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Message: "profile setup failed, please retry",
				Data:    sess,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey, sess)))
	})
}
