package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Refresher obtains a new bearer token once the current one was rejected.
type Refresher interface {
	Refresh(ctx context.Context, stale string) (string, error)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context, stale string) (string, error)

func (f RefreshFunc) Refresh(ctx context.Context, stale string) (string, error) {
	return f(ctx, stale)
}

// StaticRefresher hands back the same token on every refresh. The dev relay
// never expires tokens, so a 401 there means the user id itself is wrong and
// the single retry fails the same way.
type StaticRefresher string

func (s StaticRefresher) Refresh(context.Context, string) (string, error) {
	return string(s), nil
}

// Gateway owns the bearer credential. A 401 triggers at most one refresh at a
// time; requests failing while it runs wait for it and retry once with the new
// token. If the refresh fails every waiter fails and the session is invalidated.
type Gateway struct {
	mu           sync.RWMutex
	token        string
	invalidated  bool
	refresher    Refresher
	group        singleflight.Group
	onInvalidate func(error)
	logger       zerolog.Logger
}

// NewGateway creates a gateway seeded with an initial token.
func NewGateway(token string, refresher Refresher) *Gateway {
	return &Gateway{
		token:     token,
		refresher: refresher,
		logger:    log.With().Str("component", "gateway").Logger(),
	}
}

// OnInvalidate registers a hook run once when a refresh fails.
func (g *Gateway) OnInvalidate(fn func(error)) {
	g.mu.Lock()
	g.onInvalidate = fn
	g.mu.Unlock()
}

// Token returns the current bearer token.
func (g *Gateway) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// Invalidated reports whether a refresh has failed.
func (g *Gateway) Invalidated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.invalidated
}

// Do runs fn with the current token. When fn fails with ErrUnauthorized the
// token is refreshed (single-flight) and fn is retried exactly once.
func (g *Gateway) Do(ctx context.Context, fn func(token string) error) error {
	if g.Invalidated() {
		return ErrSessionInvalidated
	}

	token := g.Token()
	err := fn(token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	fresh, rerr := g.refresh(ctx, token)
	if rerr != nil {
		return rerr
	}
	return fn(fresh)
}

// refresh returns a token newer than stale. If another request already
// replaced stale, that token is returned without calling the refresher.
func (g *Gateway) refresh(ctx context.Context, stale string) (string, error) {
	g.mu.RLock()
	current, invalidated := g.token, g.invalidated
	g.mu.RUnlock()
	if invalidated {
		return "", ErrSessionInvalidated
	}
	if current != stale {
		return current, nil
	}

	v, err, shared := g.group.Do("refresh", func() (interface{}, error) {
		g.logger.Debug().Msg("Refreshing credential")
		// Detached so one caller's cancellation does not fail every waiter
		token, err := g.refresher.Refresh(context.WithoutCancel(ctx), stale)
		if err != nil {
			g.invalidate(err)
			return "", fmt.Errorf("%w: refresh failed: %w", ErrSessionInvalidated, err)
		}
		g.mu.Lock()
		g.token = token
		g.mu.Unlock()
		return token, nil
	})
	if shared {
		g.logger.Debug().Msg("Joined in-flight credential refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Gateway) invalidate(cause error) {
	g.mu.Lock()
	if g.invalidated {
		g.mu.Unlock()
		return
	}
	g.invalidated = true
	hook := g.onInvalidate
	g.mu.Unlock()

	g.logger.Error().Err(cause).Msg("Credential refresh failed, session invalidated")
	if hook != nil {
		hook(cause)
	}
}
