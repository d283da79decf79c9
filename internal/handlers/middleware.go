package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"yamdb/internal/apperrors"
	"yamdb/internal/auth"
	"yamdb/internal/models"
	"yamdb/internal/policy"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

// WithRecover wraps an http.Handler and recovers from panics,
// returning HTTP 500 instead of crashing the server.
func WithRecover(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Printf("[recover] %v (%s %s) request_id=%s", rec, r.Method, r.URL.Path, RequestID(r.Context()))
				writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// WithRequestLog tags the request with an id, echoed in X-Request-ID, and
// logs one line per request once it completes. It wraps WithRecover so the
// id is known when a panic is logged.
func WithRequestLog(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Printf("%s %s %d %s request_id=%s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Microsecond), id)
		}()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by WithRequestLog.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// TrimTrailingSlash lets /titles/ and /titles address the same route.
func TrimTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			r2 := r.Clone(r.Context())
			r2.URL.Path = strings.TrimRight(p, "/")
			r2.URL.RawPath = ""
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves a bearer token to a user. Requests without a token
// continue anonymously; a bad token is rejected outright.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok, err := auth.BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		claims, err := h.tokens.Parse(token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		u, err := h.store.UserByID(r.Context(), claims.UserID)
		if errors.Is(err, apperrors.ErrNotFound) {
			h.fail(w, r, apperrors.Unauthenticated("user not found"))
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

// currentUser returns the authenticated caller, or nil.
func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey).(*models.User)
	return u
}

func actor(r *http.Request) policy.Actor {
	return policy.ActorFor(currentUser(r))
}

// allow runs the policy check and writes the rejection when it fails.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, res policy.Resource, act policy.Action, owner int64) bool {
	switch policy.Check(actor(r), res, act, owner) {
	case policy.Allow:
		return true
	case policy.Unauthenticated:
		h.fail(w, r, apperrors.Unauthenticated("Authentication credentials were not provided."))
	default:
		h.fail(w, r, apperrors.Forbidden("You do not have permission to perform this action."))
	}
	return false
}
