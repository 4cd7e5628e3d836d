package server

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/server/httpx"
	"auditflow/backend/internal/workflow"
)

// Gateway headers carrying the caller's identity.
const (
	HeaderActorID        = "X-Actor-ID"
	HeaderActorType      = "X-Actor-Type"
	HeaderActorRole      = "X-Actor-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequireActor puts the actor from the gateway headers on the request context. Requests without
// an actor id get 401.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if id == "" {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorBody{Error: HeaderActorID + " header is required", Kind: "Unauthorized"})
			return
		}
		a := actor.Actor{
			ID:   id,
			Type: actor.Type(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorType)))),
			Role: actor.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
		}
		if a.Type == "" {
			a.Type = actor.TypeUser
		}
		if err := a.Validate(); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: err.Error(), Kind: workflow.KindInvalidInput})
			return
		}
		next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
	})
}

func actorFrom(r *http.Request) actor.Actor {
	a, _ := actor.FromContext(r.Context())
	return a
}

// requestKey returns the idempotency key of a mutation: the header wins over the body field.
func requestKey(r *http.Request, body string) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)); k != "" {
		return k
	}
	return strings.TrimSpace(body)
}

// Observe counts requests by route and status and logs server errors. Probe routes are not counted.
func Observe(skip map[string]bool) func(http.Handler) http.Handler {
	meter := otel.Meter("auditflow/server")
	requests, _ := meter.Int64Counter("http.server.requests", metric.WithDescription("HTTP requests by route and status"))
	latency, _ := meter.Float64Histogram("http.server.duration", metric.WithUnit("ms"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			elapsed := time.Since(start)
			requests.Add(r.Context(), 1, attrs)
			latency.Record(r.Context(), float64(elapsed.Microseconds())/1000, attrs)
			if status >= http.StatusInternalServerError {
				log.Printf("server: %s %s -> %d in %s (request %s)", r.Method, route, status, elapsed, middleware.GetReqID(r.Context()))
			}
		})
	}
}
