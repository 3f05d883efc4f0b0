package session

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/repositories"
	"github.com/munshid/nasheedbox/internal/shared"
	tu "github.com/munshid/nasheedbox/internal/testing"
)

// testDeps bundles the fake backend, the persistent cache and a wired
// reconciler. The db outlives individual reconcilers so restart scenarios
// can rebuild the stack over the same local state.
type testDeps struct {
	auth  *tu.MemoryAuthAPI
	store *tu.MemoryEntryAPI
	db    *sql.DB
	cache *repositories.EntryCache
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &testDeps{
		auth:  tu.NewMemoryAuthAPI(),
		store: tu.NewMemoryEntryAPI(),
		db:    db,
		cache: repositories.NewEntryCache(repositories.NewKVRepository(db)),
	}
}

// start builds a bridge and reconciler over the current local state, as a
// fresh process launch would.
func (d *testDeps) start(t *testing.T) (*Bridge, *Reconciler) {
	t.Helper()

	logger := shared.NewLogger(io.Discard)
	bridge := NewBridge(d.auth, d.cache, d.store, logger)
	rec := NewReconciler(SessionContext{
		Bridge:  bridge,
		Entries: d.store,
		Cache:   d.cache,
		Logger:  logger,
	})
	t.Cleanup(rec.Close)
	return bridge, rec
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func seedEntry(id, owner, title string, updated time.Time) models.Entry {
	return models.Entry{
		ID:        id,
		Title:     title,
		Lyrics:    "lyrics of " + title,
		OwnerID:   owner,
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func TestReconcilerBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("cold start with no session lands unauthenticated", func(t *testing.T) {
		deps := newTestDeps(t)
		_, rec := deps.start(t)

		rec.Bootstrap(ctx)

		state := rec.Snapshot()
		if state.Phase != Unauthenticated {
			t.Errorf("expected unauthenticated, got %v", state.Phase)
		}
		if state.User != nil {
			t.Error("expected no user")
		}
		if len(state.Entries) != 0 {
			t.Errorf("expected no entries, got %d", len(state.Entries))
		}
	})

	t.Run("restart with valid session confirms identity and refreshes", func(t *testing.T) {
		deps := newTestDeps(t)
		user := deps.auth.Register("amir@example.com", "secret")
		deps.store.Seed(
			seedEntry("e1", user.ID, "Tala'a al-Badru", time.Now()),
			seedEntry("e2", user.ID, "Ya Adheeman", time.Now().Add(-time.Minute)),
		)

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })
		rec.Close()

		// Simulate a process restart over the same local cache.
		_, rec2 := deps.start(t)
		rec2.Bootstrap(ctx)

		state := rec2.Snapshot()
		if state.Phase != Authenticated {
			t.Fatalf("expected authenticated, got %v", state.Phase)
		}
		if state.Speculative {
			t.Error("identity should be confirmed after bootstrap returns")
		}
		if state.User == nil || state.User.ID != user.ID {
			t.Errorf("expected user %s, got %+v", user.ID, state.User)
		}
		if len(state.Entries) != 2 {
			t.Errorf("expected cached entries visible, got %d", len(state.Entries))
		}
		waitFor(t, "background refresh", func() bool { return rec2.Snapshot().Freshness == Fresh })
	})

	t.Run("revoked session forces sign-out and purges local state", func(t *testing.T) {
		deps := newTestDeps(t)
		user := deps.auth.Register("amir@example.com", "secret")
		deps.store.Seed(seedEntry("e1", user.ID, "Tala'a al-Badru", time.Now()))

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })
		rec.Close()

		// Tokens die server-side while the app is closed.
		deps.auth.RevokeAll()

		_, rec2 := deps.start(t)
		rec2.Bootstrap(ctx)

		state := rec2.Snapshot()
		if state.Phase != Unauthenticated {
			t.Fatalf("expected unauthenticated after revocation, got %v", state.Phase)
		}
		if hint, _ := deps.cache.Hint(); hint != nil {
			t.Error("identity hint should be cleared")
		}
		if _, ok, _ := deps.cache.Load(user.ID); ok {
			t.Error("cached entries should be purged on forced sign-out")
		}
	})

	t.Run("hint owner change swaps the visible cache", func(t *testing.T) {
		deps := newTestDeps(t)
		userA := deps.auth.Register("a@example.com", "pw-a")
		userB := deps.auth.Register("b@example.com", "pw-b")
		deps.store.Seed(
			seedEntry("a1", userA.ID, "A's nasheed", time.Now()),
			seedEntry("b1", userB.ID, "B's nasheed", time.Now()),
		)

		// Cache carries A's data but the session on disk belongs to B.
		if err := deps.cache.Store(userA.ID, []models.Entry{seedEntry("a1", userA.ID, "A's nasheed", time.Now())}); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}
		if err := deps.cache.SetHint(userA); err != nil {
			t.Fatalf("failed to set hint: %v", err)
		}

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "b@example.com", "pw-b"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "B's sync", func() bool { return rec.Snapshot().Freshness == Fresh })

		state := rec.Snapshot()
		if state.User.ID != userB.ID {
			t.Fatalf("expected user B, got %s", state.User.ID)
		}
		for _, e := range state.Entries {
			if e.OwnerID != userB.ID {
				t.Errorf("entry %s belongs to another user", e.ID)
			}
		}
	})
}

func TestReconcilerRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthenticated refresh is rejected", func(t *testing.T) {
		deps := newTestDeps(t)
		_, rec := deps.start(t)
		rec.Bootstrap(ctx)

		if err := rec.Refresh(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("failed refresh keeps the stale view", func(t *testing.T) {
		deps := newTestDeps(t)
		user := deps.auth.Register("amir@example.com", "secret")
		deps.store.Seed(seedEntry("e1", user.ID, "Tala'a al-Badru", time.Now()))

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })

		deps.store.SetListErr(errors.New("gateway timeout"))
		if err := rec.Refresh(ctx); err == nil {
			t.Fatal("expected refresh error")
		}

		state := rec.Snapshot()
		if state.Freshness != StaleCache {
			t.Errorf("expected stale_cache, got %v", state.Freshness)
		}
		if len(state.Entries) != 1 {
			t.Errorf("stale entries should survive a failed refresh, got %d", len(state.Entries))
		}
	})

	t.Run("successful refresh replaces the list wholesale", func(t *testing.T) {
		deps := newTestDeps(t)
		user := deps.auth.Register("amir@example.com", "secret")

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })

		newest := seedEntry("e2", user.ID, "Newest", time.Now())
		older := seedEntry("e1", user.ID, "Older", time.Now().Add(-time.Hour))
		deps.store.Seed(older, newest)

		if err := rec.Refresh(ctx); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}

		state := rec.Snapshot()
		if len(state.Entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(state.Entries))
		}
		if state.Entries[0].ID != "e2" || state.Entries[1].ID != "e1" {
			t.Errorf("expected recency order e2,e1, got %s,%s", state.Entries[0].ID, state.Entries[1].ID)
		}

		cached, ok, err := deps.cache.Load(user.ID)
		if err != nil || !ok {
			t.Fatalf("expected cache hit, ok=%v err=%v", ok, err)
		}
		if len(cached) != 2 {
			t.Errorf("cache should mirror the fresh list, got %d", len(cached))
		}
	})
}

func TestReconcilerSave(t *testing.T) {
	ctx := context.Background()

	signIn := func(t *testing.T, deps *testDeps) *Reconciler {
		t.Helper()
		deps.auth.Register("amir@example.com", "secret")
		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })
		return rec
	}

	t.Run("create prepends and assigns identity", func(t *testing.T) {
		deps := newTestDeps(t)
		rec := signIn(t, deps)

		saved, err := rec.Save(ctx, models.Entry{Title: "New Nasheed", Lyrics: "first line"})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if saved.ID == "" {
			t.Fatal("expected generated id")
		}
		if saved.OwnerID == "" {
			t.Error("expected owner to be stamped")
		}
		if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be stamped")
		}

		state := rec.Snapshot()
		if len(state.Entries) == 0 || state.Entries[0].ID != saved.ID {
			t.Error("new entry should be first in the visible list")
		}
		if _, ok := deps.store.Row(saved.ID); !ok {
			t.Error("entry should reach the remote store")
		}
	})

	t.Run("update replaces in place and keeps creation time", func(t *testing.T) {
		deps := newTestDeps(t)
		rec := signIn(t, deps)

		first, err := rec.Save(ctx, models.Entry{Title: "First"})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}
		second, err := rec.Save(ctx, models.Entry{Title: "Second"})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}

		edited := first
		edited.Title = "First (edited)"
		updated, err := rec.Save(ctx, edited)
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}

		if !updated.CreatedAt.Equal(first.CreatedAt) {
			t.Error("edit must keep the original creation time")
		}

		state := rec.Snapshot()
		if state.Entries[0].ID != second.ID {
			t.Error("editing must not move the entry to the front")
		}
		if state.Entries[1].Title != "First (edited)" {
			t.Errorf("expected in-place update, got %q", state.Entries[1].Title)
		}
	})

	t.Run("remote failure keeps the optimistic entry", func(t *testing.T) {
		deps := newTestDeps(t)
		rec := signIn(t, deps)

		deps.store.SetUpsertErr(errors.New("insert blocked"))
		saved, err := rec.Save(ctx, models.Entry{Title: "Offline save"})
		if err == nil {
			t.Fatal("expected save error")
		}

		if _, ok := rec.Entry(saved.ID); !ok {
			t.Error("optimistic entry must survive a failed remote save")
		}
		state := rec.Snapshot()
		cached, ok, _ := deps.cache.Load(state.User.ID)
		if !ok || len(cached) == 0 || cached[0].ID != saved.ID {
			t.Error("optimistic entry must be cached despite the failure")
		}
	})

	t.Run("unauthenticated save is rejected", func(t *testing.T) {
		deps := newTestDeps(t)
		_, rec := deps.start(t)
		rec.Bootstrap(ctx)

		if _, err := rec.Save(ctx, models.Entry{Title: "nope"}); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestReconcilerDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("delete removes locally and remotely", func(t *testing.T) {
		deps := newTestDeps(t)
		user := deps.auth.Register("amir@example.com", "secret")
		deps.store.Seed(seedEntry("e1", user.ID, "Doomed", time.Now()))

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })

		if err := rec.Delete(ctx, "e1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, ok := rec.Entry("e1"); ok {
			t.Error("entry should be gone from the visible list")
		}
		if _, ok := deps.store.Row("e1"); ok {
			t.Error("entry should be gone from the remote store")
		}
	})

	t.Run("failed delete is corrected by a refresh", func(t *testing.T) {
		deps := newTestDeps(t)
		user := deps.auth.Register("amir@example.com", "secret")
		deps.store.Seed(seedEntry("e1", user.ID, "Survivor", time.Now()))

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })

		deps.store.SetDeleteErr(errors.New("row locked"))
		if err := rec.Delete(ctx, "e1"); err == nil {
			t.Fatal("expected delete error")
		}

		// The optimistic removal stands until the scheduled refresh
		// restores server truth.
		waitFor(t, "server truth restored", func() bool {
			_, ok := rec.Entry("e1")
			return ok
		})
	})
}

func TestReconcilerToggleFavorite(t *testing.T) {
	ctx := context.Background()

	deps := newTestDeps(t)
	user := deps.auth.Register("amir@example.com", "secret")
	deps.store.Seed(seedEntry("e1", user.ID, "Tala'a al-Badru", time.Now()))

	bridge, rec := deps.start(t)
	if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	waitFor(t, "initial sync", func() bool { return rec.Snapshot().Freshness == Fresh })

	t.Run("flips the flag", func(t *testing.T) {
		updated, err := rec.ToggleFavorite(ctx, "e1")
		if err != nil {
			t.Fatalf("toggle failed: %v", err)
		}
		if !updated.IsFavorite {
			t.Error("expected favorite to be set")
		}

		updated, err = rec.ToggleFavorite(ctx, "e1")
		if err != nil {
			t.Fatalf("toggle failed: %v", err)
		}
		if updated.IsFavorite {
			t.Error("expected favorite to be cleared")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := rec.ToggleFavorite(ctx, "missing"); !errors.Is(err, shared.ErrEntryNotFound) {
			t.Errorf("expected ErrEntryNotFound, got %v", err)
		}
	})
}

func TestReconcilerSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("sign-out clears state and the next account starts clean", func(t *testing.T) {
		deps := newTestDeps(t)
		userA := deps.auth.Register("a@example.com", "pw-a")
		userB := deps.auth.Register("b@example.com", "pw-b")
		deps.store.Seed(
			seedEntry("a1", userA.ID, "A's nasheed", time.Now()),
			seedEntry("b1", userB.ID, "B's nasheed", time.Now()),
		)

		bridge, rec := deps.start(t)
		if _, err := bridge.SignIn(ctx, "a@example.com", "pw-a"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "A's sync", func() bool { return rec.Snapshot().Freshness == Fresh })

		bridge.SignOut(ctx)
		waitFor(t, "sign-out applied", func() bool { return rec.Snapshot().Phase == Unauthenticated })

		if _, ok, _ := deps.cache.Load(userA.ID); ok {
			t.Error("A's cache should be purged on sign-out")
		}
		if hint, _ := deps.cache.Hint(); hint != nil {
			t.Error("identity hint should be cleared on sign-out")
		}

		if _, err := bridge.SignIn(ctx, "b@example.com", "pw-b"); err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		waitFor(t, "B's sync", func() bool {
			s := rec.Snapshot()
			return s.Freshness == Fresh && s.User != nil && s.User.ID == userB.ID
		})

		state := rec.Snapshot()
		if len(state.Entries) != 1 || state.Entries[0].ID != "b1" {
			t.Errorf("B must only see B's entries, got %+v", state.Entries)
		}
	})
}

func TestReconcilerObserve(t *testing.T) {
	ctx := context.Background()

	deps := newTestDeps(t)
	deps.auth.Register("amir@example.com", "secret")
	bridge, rec := deps.start(t)

	snapshots := make(chan State, 64)
	rec.Observe(func(s State) { snapshots <- s })

	if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	waitFor(t, "observer notified", func() bool {
		select {
		case s := <-snapshots:
			return s.Phase == Authenticated
		default:
			return false
		}
	})
}

// Confirmed-authenticated snapshots must always carry the user record;
// callers read state.User.Email without a nil check after verifying the
// phase.
func TestReconcilerAuthenticatedSnapshotsCarryUser(t *testing.T) {
	ctx := context.Background()

	deps := newTestDeps(t)
	user := deps.auth.Register("amir@example.com", "secret")
	deps.store.Seed(seedEntry("e1", user.ID, "Burdah", time.Now()))
	bridge, rec := deps.start(t)

	var bad atomic.Int32
	rec.Observe(func(s State) {
		if s.Phase == Authenticated && !s.Speculative && s.User == nil {
			bad.Add(1)
		}
	})

	if _, err := bridge.SignIn(ctx, "amir@example.com", "secret"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	waitFor(t, "fresh entries", func() bool {
		return rec.Snapshot().Freshness == Fresh
	})
	if err := rec.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	bridge.SignOut(ctx)
	waitFor(t, "signed out", func() bool {
		return rec.Snapshot().Phase == Unauthenticated
	})

	if state := rec.Snapshot(); state.Phase == Authenticated && state.User == nil {
		t.Error("authenticated snapshot without a user")
	}
	if n := bad.Load(); n > 0 {
		t.Errorf("%d authenticated snapshots published without a user", n)
	}
}
