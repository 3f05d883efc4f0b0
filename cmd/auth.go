package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/munshid/nasheedbox/internal/session"
	"github.com/munshid/nasheedbox/internal/shared"
	"github.com/urfave/cli/v3"
)

// readCredentials resolves email and password from flags, prompting on
// stdin for anything missing.
func (r *Runner) readCredentials(cmd *cli.Command) (string, string, error) {
	email := strings.TrimSpace(cmd.String("email"))
	password := cmd.String("password")

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		r.writePlain("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if password == "" {
		r.writePlain("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("%w: email and password are required", shared.ErrMissingCredentials)
	}
	return email, password, nil
}

// AuthLogin signs in against the identity provider and persists the session.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	email, password, err := r.readCredentials(cmd)
	if err != nil {
		return err
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	user, err := sess.bridge.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	r.logger.Info("signed in", "user", user.Email)

	// Warm the cache so the next cold start has entries to show.
	if err := sess.rec.Refresh(ctx); err != nil {
		r.logger.Warn("initial sync failed", "error", err)
	}

	return r.writePlain("✓ Signed in as %s\n", user.Email)
}

// AuthSignup registers a new account. Depending on the provider's
// confirmation settings the account may need an email confirmation before
// the first sign-in.
func (r *Runner) AuthSignup(ctx context.Context, cmd *cli.Command) error {
	email, password, err := r.readCredentials(cmd)
	if err != nil {
		return err
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	user, err := sess.bridge.SignUp(ctx, email, password)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return r.writePlain("✓ Account created for %s\nConfirm your email address, then run 'nasheedbox auth login'\n", email)
		}
		return err
	}

	r.logger.Info("account created", "user", user.Email)
	return r.writePlain("✓ Signed up and logged in as %s\n", user.Email)
}

// AuthLogout revokes the remote session and clears all local state for the
// signed-in user, including the cached entry list.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.rec.Bootstrap(ctx)
	sess.bridge.SignOut(ctx)

	r.logger.Info("signed out")
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports the reconciled session state without mutating it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.rec.Bootstrap(ctx)
	state := sess.rec.Snapshot()

	if cmd.Bool("json") {
		out := map[string]any{
			"authenticated": state.Phase == session.Authenticated,
			"phase":         state.Phase.String(),
			"entries":       len(state.Entries),
		}
		if state.User != nil {
			out["email"] = state.User.Email
			out["user_id"] = state.User.ID
		}
		return r.writeJSON(out, true)
	}

	if state.User == nil {
		return r.writePlain("Not signed in\n")
	}
	return r.writePlain("Signed in as %s (%d entries cached)\n", state.User.Email, len(state.Entries))
}
