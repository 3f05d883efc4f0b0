package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/repositories"
	"github.com/munshid/nasheedbox/internal/services"
	"github.com/munshid/nasheedbox/internal/shared"
	"golang.org/x/oauth2"
)

// EventKind tags an auth state change.
type EventKind int

const (
	SignedIn EventKind = iota
	SignedOut
)

// Event is the tagged auth change notification delivered to subscribers.
// User is populated for [SignedIn] only.
type Event struct {
	Kind EventKind
	User models.User
}

// Subscription is the cancellation handle returned by [Bridge.Subscribe].
// Cancel is safe to call more than once; only the first call takes effect.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Bridge wraps the identity provider behind a stable {id, email} user record
// and a subscription-based change notification. It owns the session token:
// persisting it for cold-start restoration, refreshing it when expired, and
// installing it into the row store client via [services.TokenSink].
type Bridge struct {
	api    services.AuthAPI
	cache  *repositories.EntryCache
	sink   services.TokenSink
	logger *log.Logger

	mu       sync.Mutex
	token    *oauth2.Token
	handlers map[int]func(Event)
	nextID   int
}

// NewBridge creates a bridge over the given provider client. sink may be nil.
func NewBridge(api services.AuthAPI, cache *repositories.EntryCache, sink services.TokenSink, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Bridge{
		api:      api,
		cache:    cache,
		sink:     sink,
		logger:   logger,
		handlers: make(map[int]func(Event)),
	}
}

// Subscribe registers handler for auth change events. The returned handle
// must be cancelled when the consumer is torn down so handlers are never
// invoked against dead state.
func (b *Bridge) Subscribe(handler func(Event)) *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}}
}

func (b *Bridge) emit(ev Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// adopt installs a session: token in memory, token in the local store for
// the next cold start, and the access token into the row store client.
func (b *Bridge) adopt(sess *services.Session) {
	b.mu.Lock()
	b.token = sess.Token
	b.mu.Unlock()

	if err := b.cache.SaveToken(sess.Token); err != nil {
		b.logger.Warn("failed to persist session token", "err", err)
	}
	if b.sink != nil {
		b.sink.SetToken(sess.Token.AccessToken)
	}
}

func (b *Bridge) drop() {
	b.mu.Lock()
	b.token = nil
	b.mu.Unlock()

	if err := b.cache.ClearToken(); err != nil {
		b.logger.Warn("failed to clear session token", "err", err)
	}
	if b.sink != nil {
		b.sink.SetToken("")
	}
}

// currentToken returns the in-memory token, falling back to the persisted one.
func (b *Bridge) currentToken() *oauth2.Token {
	b.mu.Lock()
	token := b.token
	b.mu.Unlock()
	if token != nil {
		return token
	}

	token, err := b.cache.LoadToken()
	if err != nil {
		b.logger.Debug("failed to load persisted token", "err", err)
		return nil
	}
	return token
}

// GetSession resolves the live session with the identity provider. It never
// returns an error: transient failures and absent sessions both yield
// (nil, false), which callers treat as unauthenticated.
func (b *Bridge) GetSession(ctx context.Context) (*models.User, bool) {
	token := b.currentToken()
	if token == nil {
		return nil, false
	}

	if !token.Valid() {
		refreshed, err := b.api.Refresh(ctx, token.RefreshToken)
		if err != nil {
			b.logger.Debug("session refresh failed", "err", err)
			return nil, false
		}
		b.adopt(refreshed)
		token = refreshed.Token
	} else {
		// A restored token never reached the row store client yet.
		b.mu.Lock()
		b.token = token
		b.mu.Unlock()
		if b.sink != nil {
			b.sink.SetToken(token.AccessToken)
		}
	}

	user, err := b.api.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		b.logger.Debug("session lookup failed", "err", err)
		return nil, false
	}

	return user, true
}

// SignIn validates credentials with the provider, adopts the issued session
// and notifies subscribers.
func (b *Bridge) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	sess, err := b.api.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	b.adopt(sess)
	b.emit(Event{Kind: SignedIn, User: sess.User})
	return &sess.User, nil
}

// SignUp registers a new account. When the provider issues a session right
// away (auto-confirm) it is adopted and subscribers are notified; otherwise
// the caller gets the user record and a [shared.ErrNotAuthenticated]
// sentinel indicating email confirmation is pending.
func (b *Bridge) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	sess, err := b.api.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if sess.Token == nil {
		return &sess.User, fmt.Errorf("%w: confirm your email address to finish signup", shared.ErrNotAuthenticated)
	}

	b.adopt(sess)
	b.emit(Event{Kind: SignedIn, User: sess.User})
	return &sess.User, nil
}

// SignOut revokes the session (best effort), drops all local token state
// and notifies subscribers.
func (b *Bridge) SignOut(ctx context.Context) {
	token := b.currentToken()
	if token != nil {
		if err := b.api.SignOut(ctx, token.AccessToken); err != nil {
			b.logger.Debug("remote sign-out failed", "err", err)
		}
	}

	b.drop()
	b.emit(Event{Kind: SignedOut})
}
