// Package auth identifies relay callers. In development mode the bearer token
// is the user id; an optional X-User-Name header carries the display name.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/adi-253/Talkie/chatsync/internal/models"
)

type contextKey struct{}

// Middleware rejects requests without credentials and stores the caller in
// the request context. Browsers cannot set headers on websocket upgrades, so
// the token and name may also come from the query string.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := fromRequest(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="talkie"`)
			http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user models.Participant) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// User returns the authenticated caller.
func User(ctx context.Context) (models.Participant, bool) {
	user, ok := ctx.Value(contextKey{}).(models.Participant)
	return user, ok
}

func fromRequest(r *http.Request) (models.Participant, bool) {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return models.Participant{}, false
		}
		token = strings.TrimSpace(value)
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return models.Participant{}, false
	}

	name := r.Header.Get("X-User-Name")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	if name == "" {
		name = token
	}
	return models.Participant{ID: token, Name: name}, true
}
