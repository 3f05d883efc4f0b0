package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/repositories"
	"github.com/munshid/nasheedbox/internal/services"
	"github.com/munshid/nasheedbox/internal/shared"
)

// Phase is the top-level authentication state.
type Phase int

const (
	Initializing Phase = iota
	Unauthenticated
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return ""
	}
}

// Freshness qualifies the visible entry list while authenticated.
type Freshness int

const (
	// StaleCache: entries come from the local cache (or a failed refresh
	// retained them); remote truth may differ.
	StaleCache Freshness = iota
	// Syncing: a remote fetch is in flight; the stale view stays visible.
	Syncing
	// Fresh: the visible list matches the last successful remote fetch.
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case StaleCache:
		return "stale_cache"
	case Syncing:
		return "syncing"
	case Fresh:
		return "fresh"
	default:
		return ""
	}
}

// State is an immutable snapshot of the reconciler, safe to hand to views.
//
// Speculative is set while the user record comes from the cold-start hint
// and the identity provider has not confirmed it yet; confirmation always
// overwrites, never merges.
type State struct {
	Phase       Phase
	Speculative bool
	User        *models.User
	Entries     []models.Entry
	Freshness   Freshness
}

// SessionContext carries the reconciler's collaborators explicitly; there
// are no ambient singletons.
type SessionContext struct {
	Bridge  *Bridge
	Entries services.EntryAPI
	Cache   *repositories.EntryCache
	Logger  *log.Logger
}

// Reconciler resolves authentication state and entry-list freshness across
// the local cache, optimistic hints and the remote store. All mutations are
// optimistic: the visible list and cache change before the remote call
// resolves, and failures degrade rather than roll back (delete failures
// schedule a refresh that restores server truth).
type Reconciler struct {
	deps SessionContext

	mu          sync.Mutex
	alive       bool
	sub         *Subscription
	phase       Phase
	speculative bool
	user        *models.User
	entries     []models.Entry
	freshness   Freshness
	observers   []func(State)
	notify      chan State
}

// NewReconciler creates a reconciler and subscribes it to auth change
// events. Call [Reconciler.Close] on teardown.
func NewReconciler(deps SessionContext) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}

	r := &Reconciler{
		deps:   deps,
		alive:  true,
		phase:  Initializing,
		notify: make(chan State, 64),
	}
	r.sub = deps.Bridge.Subscribe(r.handleEvent)
	go r.dispatch()
	return r
}

// dispatch delivers snapshots to observers in publication order.
func (r *Reconciler) dispatch() {
	for snapshot := range r.notify {
		r.mu.Lock()
		observers := make([]func(State), len(r.observers))
		copy(observers, r.observers)
		r.mu.Unlock()

		for _, fn := range observers {
			fn(snapshot)
		}
	}
}

// Close tears the reconciler down. Pending asynchronous continuations check
// the liveness flag and become no-ops; the auth subscription is cancelled
// exactly once.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.alive {
		r.alive = false
		close(r.notify)
	}
	r.mu.Unlock()
	r.sub.Cancel()
}

// Snapshot returns the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Observe registers fn to receive a snapshot after every state change.
func (r *Reconciler) Observe(fn func(State)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

func (r *Reconciler) snapshotLocked() State {
	s := State{
		Phase:       r.phase,
		Speculative: r.speculative,
		Freshness:   r.freshness,
	}
	if r.user != nil {
		u := *r.user
		s.User = &u
	}
	s.Entries = make([]models.Entry, len(r.entries))
	copy(s.Entries, r.entries)
	return s
}

// publishLocked queues a snapshot for observer delivery. The caller holds
// r.mu; delivery happens on the dispatch goroutine. A full queue drops the
// oldest snapshot — observers only care about the latest state.
func (r *Reconciler) publishLocked() {
	if !r.alive {
		return
	}
	snapshot := r.snapshotLocked()
	for {
		select {
		case r.notify <- snapshot:
			return
		default:
			select {
			case <-r.notify:
			default:
			}
		}
	}
}

// Bootstrap resolves the cold-start state per the two-phase hint/confirm
// flow: render speculatively from the last known user, confirm with the
// identity provider, load the cached entry list without touching the
// network, then refresh in the background.
func (r *Reconciler) Bootstrap(ctx context.Context) {
	// Phase one: optimistic hint, so the list renders without a spinner.
	hint, err := r.deps.Cache.Hint()
	if err != nil {
		r.deps.Logger.Debug("failed to read identity hint", "err", err)
	}

	if hint != nil {
		r.mu.Lock()
		if !r.alive {
			r.mu.Unlock()
			return
		}
		r.phase = Authenticated
		r.speculative = true
		r.user = hint
		r.loadCacheLocked(hint.ID)
		r.publishLocked()
		r.mu.Unlock()
	}

	// Phase two: the provider's answer is authoritative and always wins.
	confirmed, ok := r.deps.Bridge.GetSession(ctx)

	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		return
	}

	if !ok {
		if hint != nil {
			// Forced sign-out: the prior session is gone, so the hint and
			// that user's cache must not survive.
			if err := r.deps.Cache.Purge(hint.ID); err != nil {
				r.deps.Logger.Warn("failed to purge entry cache", "err", err)
			}
			if err := r.deps.Cache.ClearHint(); err != nil {
				r.deps.Logger.Warn("failed to clear identity hint", "err", err)
			}
		}
		r.phase = Unauthenticated
		r.speculative = false
		r.user = nil
		r.entries = nil
		r.freshness = StaleCache
		r.publishLocked()
		r.mu.Unlock()
		return
	}

	r.phase = Authenticated
	r.speculative = false
	r.user = confirmed
	if hint == nil || hint.ID != confirmed.ID {
		r.loadCacheLocked(confirmed.ID)
	}
	r.publishLocked()
	r.mu.Unlock()

	if err := r.deps.Cache.SetHint(*confirmed); err != nil {
		r.deps.Logger.Warn("failed to persist identity hint", "err", err)
	}

	go func() {
		if err := r.Refresh(context.WithoutCancel(ctx)); err != nil {
			r.deps.Logger.Debug("background refresh failed", "err", err)
		}
	}()
}

// loadCacheLocked replaces the visible list with the cached one for userID.
// Never touches the network.
func (r *Reconciler) loadCacheLocked(userID string) {
	entries, ok, err := r.deps.Cache.Load(userID)
	if err != nil {
		r.deps.Logger.Debug("failed to load entry cache", "err", err)
	}
	if ok {
		r.entries = entries
	} else {
		r.entries = nil
	}
	r.freshness = StaleCache
}

// Refresh fetches the canonical entry list and replaces the visible state
// and cache with it. On failure the stale view is retained; the error is
// reported to the caller and logged, never surfaced as a blocking failure.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		return nil
	}
	if r.phase != Authenticated || r.user == nil {
		r.mu.Unlock()
		return shared.ErrNotAuthenticated
	}
	user := *r.user
	r.freshness = Syncing
	r.publishLocked()
	r.mu.Unlock()

	entries, err := r.deps.Entries.List(ctx, user.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.alive {
		return nil
	}
	// A sign-out or user switch may have raced the fetch; stale results for
	// a different user are dropped.
	if r.phase != Authenticated || r.user == nil || r.user.ID != user.ID {
		return nil
	}

	if err != nil {
		r.deps.Logger.Warn("entry refresh failed, keeping cached view", "err", err)
		r.freshness = StaleCache
		r.publishLocked()
		return err
	}

	r.entries = entries
	r.freshness = Fresh
	if cacheErr := r.deps.Cache.Store(user.ID, entries); cacheErr != nil {
		r.deps.Logger.Warn("failed to persist entry cache", "err", cacheErr)
	}
	r.publishLocked()
	return nil
}

// Save applies a create-or-update optimistically and fires the remote
// upsert. Creation is recognized by the entry id being absent from the
// visible list; a created entry gets a fresh id and creation time, goes to
// the front of the list, and existing items keep their order. The optimistic
// change is never rolled back on remote failure.
func (r *Reconciler) Save(ctx context.Context, entry models.Entry) (models.Entry, error) {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		return entry, nil
	}
	if r.phase != Authenticated || r.user == nil {
		r.mu.Unlock()
		return entry, shared.ErrNotAuthenticated
	}

	now := time.Now()
	entry.OwnerID = r.user.ID
	entry.UpdatedAt = now

	idx := -1
	if entry.ID != "" {
		for i, e := range r.entries {
			if e.ID == entry.ID {
				idx = i
				break
			}
		}
	}

	if idx >= 0 {
		entry.CreatedAt = r.entries[idx].CreatedAt
		r.entries[idx] = entry
	} else {
		if entry.ID == "" {
			entry.ID = shared.GenerateID()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		r.entries = append([]models.Entry{entry}, r.entries...)
	}

	user := *r.user
	if err := r.deps.Cache.Store(user.ID, r.entries); err != nil {
		r.deps.Logger.Warn("failed to persist entry cache", "err", err)
	}
	r.publishLocked()
	r.mu.Unlock()

	if err := r.deps.Entries.Upsert(ctx, entry); err != nil {
		r.deps.Logger.Warn("remote save failed, keeping optimistic state", "id", entry.ID, "err", err)
		return entry, fmt.Errorf("save failed: %w", err)
	}

	// Reconcile any server-assigned fields behind the scenes.
	go func() {
		if err := r.Refresh(context.WithoutCancel(ctx)); err != nil {
			r.deps.Logger.Debug("post-save refresh failed", "err", err)
		}
	}()

	return entry, nil
}

// Delete removes the entry optimistically and fires the remote delete. On
// remote failure the local removal stands, but a background refresh is
// scheduled to restore server truth — the one case where the server
// corrects optimistic state.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		return nil
	}
	if r.phase != Authenticated || r.user == nil {
		r.mu.Unlock()
		return shared.ErrNotAuthenticated
	}

	filtered := r.entries[:0:0]
	for _, e := range r.entries {
		if e.ID != id {
			filtered = append(filtered, e)
		}
	}
	r.entries = filtered

	user := *r.user
	if err := r.deps.Cache.Store(user.ID, r.entries); err != nil {
		r.deps.Logger.Warn("failed to persist entry cache", "err", err)
	}
	r.publishLocked()
	r.mu.Unlock()

	if err := r.deps.Entries.Delete(ctx, id); err != nil {
		r.deps.Logger.Warn("remote delete failed, scheduling refresh", "id", id, "err", err)
		go func() {
			if refreshErr := r.Refresh(context.WithoutCancel(ctx)); refreshErr != nil {
				r.deps.Logger.Debug("post-delete refresh failed", "err", refreshErr)
			}
		}()
		return fmt.Errorf("delete failed: %w", err)
	}

	return nil
}

// ToggleFavorite flips the favorite flag on the entry with id.
func (r *Reconciler) ToggleFavorite(ctx context.Context, id string) (models.Entry, error) {
	r.mu.Lock()
	var target *models.Entry
	for i := range r.entries {
		if r.entries[i].ID == id {
			e := r.entries[i]
			target = &e
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return models.Entry{}, fmt.Errorf("%w: %s", shared.ErrEntryNotFound, id)
	}

	target.IsFavorite = !target.IsFavorite
	return r.Save(ctx, *target)
}

// Entry returns the visible entry with id, if present.
func (r *Reconciler) Entry(id string) (models.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.Entry{}, false
}

// handleEvent applies asynchronous provider notifications atomically.
func (r *Reconciler) handleEvent(ev Event) {
	switch ev.Kind {
	case SignedIn:
		r.mu.Lock()
		if !r.alive {
			r.mu.Unlock()
			return
		}
		user := ev.User
		r.phase = Authenticated
		r.speculative = false
		r.user = &user
		r.loadCacheLocked(user.ID)
		r.publishLocked()
		r.mu.Unlock()

		if err := r.deps.Cache.SetHint(user); err != nil {
			r.deps.Logger.Warn("failed to persist identity hint", "err", err)
		}

		go func() {
			if err := r.Refresh(context.Background()); err != nil {
				r.deps.Logger.Debug("post-sign-in refresh failed", "err", err)
			}
		}()

	case SignedOut:
		r.mu.Lock()
		if !r.alive {
			r.mu.Unlock()
			return
		}
		prev := r.user
		r.phase = Unauthenticated
		r.speculative = false
		r.user = nil
		r.entries = nil
		r.freshness = StaleCache
		r.publishLocked()
		r.mu.Unlock()

		if prev != nil {
			if err := r.deps.Cache.Purge(prev.ID); err != nil {
				r.deps.Logger.Warn("failed to purge entry cache", "err", err)
			}
		}
		if err := r.deps.Cache.ClearHint(); err != nil {
			r.deps.Logger.Warn("failed to clear identity hint", "err", err)
		}
	}
}
