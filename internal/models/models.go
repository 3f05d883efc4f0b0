package models

import (
	"fmt"
	"time"
)

// Entry represents a single nasheed: a title + lyrics record owned by one user.
//
// ID and CreatedAt are immutable once created; UpdatedAt moves forward on
// every mutation. OwnerID always matches the acting session's user id — the
// remote store's row-level policy enforces this, not the client.
type Entry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Lyrics     string    `json:"lyrics"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	OwnerID    string    `json:"owner_id"`
	IsFavorite bool      `json:"is_favorite"`
	Category   string    `json:"category,omitempty"`
}

// Validate checks the fields required for a remote upsert.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if e.OwnerID == "" {
		return fmt.Errorf("entry owner id is required")
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("entry creation time is required")
	}
	return nil
}

// User represents the authenticated identity derived from the provider session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SortOption enumerates the list orderings offered by the CLI.
type SortOption string

const (
	SortDateDesc SortOption = "date_desc"
	SortDateAsc  SortOption = "date_asc"
	SortTitleAsc SortOption = "title_asc"
)

// ParseSortOption validates a user-supplied sort flag.
func ParseSortOption(s string) (SortOption, error) {
	switch SortOption(s) {
	case SortDateDesc, SortDateAsc, SortTitleAsc:
		return SortOption(s), nil
	case "":
		return SortDateDesc, nil
	}
	return "", fmt.Errorf("unknown sort option: %s", s)
}
