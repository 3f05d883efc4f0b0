package services

import (
	"context"

	"github.com/munshid/nasheedbox/internal/models"
	"golang.org/x/oauth2"
)

// Session carries the provider tokens and the user they were issued to.
type Session struct {
	Token *oauth2.Token
	User  models.User
}

// AuthAPI is the identity provider contract: credential validation, session
// issuance and refresh. A nil-token session from SignUp means the account
// still needs email confirmation.
type AuthAPI interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	CurrentUser(ctx context.Context, accessToken string) (*models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// EntryAPI is the row store contract, scoped to the authenticated identity.
//
// List returns the canonical entry list in descending updated-at order; an
// empty slice is a valid result. Delete of a nonexistent id is idempotent
// success. The bearer token used for authorization is installed via
// [TokenSink]; server-side row-level policy is the real guard.
type EntryAPI interface {
	List(ctx context.Context, userID string) ([]models.Entry, error)
	Upsert(ctx context.Context, entry models.Entry) error
	Delete(ctx context.Context, id string) error
}

// TokenSink receives the current access token whenever the session changes.
// An empty string clears the token.
type TokenSink interface {
	SetToken(accessToken string)
}
