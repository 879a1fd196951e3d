package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext returns the acting identity attached to the request.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey).(string)
	return actor, ok
}

// Actor requires an X-Actor-ID header on every request and places it in
// the request context. Identity verification happens upstream of this
// service; the actor id is recorded as-is on ledger and audit rows.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if actor == "" {
			http.Error(w, "missing X-Actor-ID header", http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
