package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/munshid/nasheedbox/internal/models"
	"golang.org/x/oauth2"
)

const (
	lastUserIDKey    = "last_user_id"
	lastUserEmailKey = "last_user_email"
	sessionKey       = "session"
)

func entriesKey(userID string) string {
	return "entries_" + userID
}

// EntryCache stores the last known entry list per user, the optimistic
// identity hint used for instant cold-start rendering, and the serialized
// provider session.
type EntryCache struct {
	kv *KVRepository
}

// NewEntryCache creates a new [EntryCache] over the given repository
func NewEntryCache(kv *KVRepository) *EntryCache {
	return &EntryCache{kv: kv}
}

// Load reads the cached entry list for userID. The second return value
// reports whether a cache entry was present; a present-but-corrupt value is
// treated as absent and discarded.
func (c *EntryCache) Load(userID string) ([]models.Entry, bool, error) {
	raw, ok, err := c.kv.Get(entriesKey(userID))
	if err != nil || !ok {
		return nil, false, err
	}

	var entries []models.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// Stale format from an older build; drop it rather than fail bootstrap.
		_ = c.kv.Delete(entriesKey(userID))
		return nil, false, nil
	}

	return entries, true, nil
}

// Store replaces the cached entry list for userID wholesale.
func (c *EntryCache) Store(userID string, entries []models.Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	return c.kv.Set(entriesKey(userID), string(raw))
}

// Purge erases the cached entry list for userID. Called on sign-out for
// confidentiality.
func (c *EntryCache) Purge(userID string) error {
	return c.kv.Delete(entriesKey(userID))
}

// Hint returns the last known user, if any. It is speculative state: the
// identity provider's answer always overwrites it.
func (c *EntryCache) Hint() (*models.User, error) {
	id, ok, err := c.kv.Get(lastUserIDKey)
	if err != nil || !ok || id == "" {
		return nil, err
	}

	email, _, err := c.kv.Get(lastUserEmailKey)
	if err != nil {
		return nil, err
	}

	return &models.User{ID: id, Email: email}, nil
}

// SetHint records user as the optimistic hint for the next cold start.
func (c *EntryCache) SetHint(user models.User) error {
	if err := c.kv.Set(lastUserIDKey, user.ID); err != nil {
		return err
	}
	return c.kv.Set(lastUserEmailKey, user.Email)
}

// ClearHint removes the optimistic hint.
func (c *EntryCache) ClearHint() error {
	if err := c.kv.Delete(lastUserIDKey); err != nil {
		return err
	}
	return c.kv.Delete(lastUserEmailKey)
}

// SaveToken persists the provider session token for restoration on the next
// cold start.
func (c *EntryCache) SaveToken(token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return c.kv.Set(sessionKey, string(raw))
}

// LoadToken returns the persisted session token, or nil when absent.
func (c *EntryCache) LoadToken() (*oauth2.Token, error) {
	raw, ok, err := c.kv.Get(sessionKey)
	if err != nil || !ok {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		_ = c.kv.Delete(sessionKey)
		return nil, nil
	}

	return &token, nil
}

// ClearToken removes the persisted session token.
func (c *EntryCache) ClearToken() error {
	return c.kv.Delete(sessionKey)
}
