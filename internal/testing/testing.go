// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/services"
	"github.com/munshid/nasheedbox/internal/shared"
	"golang.org/x/oauth2"
)

// MemoryAuthAPI is a test double for [services.AuthAPI] backed by an
// in-memory account table. Error fields force the next matching call to
// fail, which simulates an unreachable provider.
type MemoryAuthAPI struct {
	mu        sync.Mutex
	accounts  map[string]string            // email -> password
	users     map[string]models.User       // email -> user
	tokens    map[string]models.User       // access token -> user
	refresh   map[string]string            // refresh token -> email
	seq       int
	TokenTTL  time.Duration
	ConfirmUp bool // when set, SignUp returns a session right away

	SignInErr  error
	SignUpErr  error
	SignOutErr error
	LookupErr  error
	RefreshErr error
}

var _ services.AuthAPI = (*MemoryAuthAPI)(nil)

func NewMemoryAuthAPI() *MemoryAuthAPI {
	return &MemoryAuthAPI{
		accounts:  map[string]string{},
		users:     map[string]models.User{},
		tokens:    map[string]models.User{},
		refresh:   map[string]string{},
		TokenTTL:  time.Hour,
		ConfirmUp: true,
	}
}

// Register seeds an account without going through SignUp.
func (a *MemoryAuthAPI) Register(email, password string) models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registerLocked(email, password)
}

func (a *MemoryAuthAPI) registerLocked(email, password string) models.User {
	a.seq++
	user := models.User{ID: fmt.Sprintf("user-%d", a.seq), Email: email}
	a.accounts[email] = password
	a.users[email] = user
	return user
}

func (a *MemoryAuthAPI) issueLocked(email string) *services.Session {
	a.seq++
	access := fmt.Sprintf("access-%d", a.seq)
	refreshToken := fmt.Sprintf("refresh-%d", a.seq)
	user := a.users[email]
	a.tokens[access] = user
	a.refresh[refreshToken] = email
	return &services.Session{
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refreshToken,
			TokenType:    "bearer",
			Expiry:       time.Now().Add(a.TokenTTL),
		},
		User: user,
	}
}

func (a *MemoryAuthAPI) SignIn(ctx context.Context, email, password string) (*services.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SignInErr != nil {
		return nil, a.SignInErr
	}
	if stored, ok := a.accounts[email]; !ok || stored != password {
		return nil, fmt.Errorf("%w: invalid login credentials", shared.ErrAuth)
	}
	return a.issueLocked(email), nil
}

func (a *MemoryAuthAPI) SignUp(ctx context.Context, email, password string) (*services.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SignUpErr != nil {
		return nil, a.SignUpErr
	}
	if _, exists := a.accounts[email]; exists {
		return nil, fmt.Errorf("%w: account already exists", shared.ErrAuth)
	}
	user := a.registerLocked(email, password)
	if !a.ConfirmUp {
		return &services.Session{User: user}, nil
	}
	return a.issueLocked(email), nil
}

func (a *MemoryAuthAPI) SignOut(ctx context.Context, accessToken string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SignOutErr != nil {
		return a.SignOutErr
	}
	delete(a.tokens, accessToken)
	return nil
}

func (a *MemoryAuthAPI) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.LookupErr != nil {
		return nil, a.LookupErr
	}
	user, ok := a.tokens[accessToken]
	if !ok {
		return nil, fmt.Errorf("%w: invalid token", shared.ErrAuth)
	}
	return &user, nil
}

func (a *MemoryAuthAPI) Refresh(ctx context.Context, refreshToken string) (*services.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.RefreshErr != nil {
		return nil, a.RefreshErr
	}
	email, ok := a.refresh[refreshToken]
	if !ok {
		return nil, fmt.Errorf("%w: refresh token revoked", shared.ErrRefreshFailed)
	}
	delete(a.refresh, refreshToken)
	return a.issueLocked(email), nil
}

// RevokeAll invalidates every issued token, simulating a remote sign-out or
// password change on another device.
func (a *MemoryAuthAPI) RevokeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = map[string]models.User{}
	a.refresh = map[string]string{}
}

// MemoryEntryAPI is a test double for [services.EntryAPI] and
// [services.TokenSink] backed by a map of rows.
type MemoryEntryAPI struct {
	mu    sync.Mutex
	rows  map[string]models.Entry
	token string

	ListErr   error
	UpsertErr error
	DeleteErr error

	ListCalls   int
	UpsertCalls int
	DeleteCalls int
}

var (
	_ services.EntryAPI  = (*MemoryEntryAPI)(nil)
	_ services.TokenSink = (*MemoryEntryAPI)(nil)
)

func NewMemoryEntryAPI() *MemoryEntryAPI {
	return &MemoryEntryAPI{rows: map[string]models.Entry{}}
}

func (s *MemoryEntryAPI) SetToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = accessToken
}

// Token reports the last installed access token.
func (s *MemoryEntryAPI) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Seed inserts rows directly, bypassing error injection.
func (s *MemoryEntryAPI) Seed(entries ...models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.rows[e.ID] = e
	}
}

func (s *MemoryEntryAPI) List(ctx context.Context, userID string) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if s.token == "" {
		return nil, shared.ErrNotAuthenticated
	}

	var entries []models.Entry
	for _, e := range s.rows {
		if e.OwnerID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UpdatedAt.After(entries[j].UpdatedAt) })
	return entries, nil
}

func (s *MemoryEntryAPI) Upsert(ctx context.Context, entry models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	if s.token == "" {
		return shared.ErrNotAuthenticated
	}
	s.rows[entry.ID] = entry
	return nil
}

func (s *MemoryEntryAPI) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if s.token == "" {
		return shared.ErrNotAuthenticated
	}
	delete(s.rows, id)
	return nil
}

// SetListErr forces subsequent List calls to fail (nil clears).
func (s *MemoryEntryAPI) SetListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListErr = err
}

// SetUpsertErr forces subsequent Upsert calls to fail (nil clears).
func (s *MemoryEntryAPI) SetUpsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertErr = err
}

// SetDeleteErr forces subsequent Delete calls to fail (nil clears).
func (s *MemoryEntryAPI) SetDeleteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteErr = err
}

// Row returns a stored row by id.
func (s *MemoryEntryAPI) Row(id string) (models.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	return e, ok
}

// RowCount reports the number of stored rows.
func (s *MemoryEntryAPI) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func NewLimitedWriter(target io.Writer, maxWrites int) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}
