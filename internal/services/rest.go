// PostgREST implementation of [EntryAPI]
//
// The nasheeds table is queried through the row store's REST surface under
// {baseURL}/rest/v1. Row-level security scopes every operation to the rows
// owned by the bearer token's identity.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/shared"
)

const entriesTable = "nasheeds"

// entryRow mirrors the row store's column naming for the nasheeds table.
type entryRow struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Lyrics     string    `json:"lyrics"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	OwnerID    string    `json:"user_id"`
	IsFavorite bool      `json:"is_favorite"`
	Category   string    `json:"category,omitempty"`
}

func toRow(e models.Entry) entryRow {
	return entryRow{
		ID:         e.ID,
		Title:      e.Title,
		Lyrics:     e.Lyrics,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		OwnerID:    e.OwnerID,
		IsFavorite: e.IsFavorite,
		Category:   e.Category,
	}
}

func (r entryRow) toEntry() models.Entry {
	return models.Entry{
		ID:         r.ID,
		Title:      r.Title,
		Lyrics:     r.Lyrics,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		OwnerID:    r.OwnerID,
		IsFavorite: r.IsFavorite,
		Category:   r.Category,
	}
}

// RestClient implements [EntryAPI] against a PostgREST-compatible row store.
// It also implements [TokenSink]; the session layer installs the current
// access token and clears it on sign-out.
type RestClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

var (
	_ EntryAPI  = (*RestClient)(nil)
	_ TokenSink = (*RestClient)(nil)
)

// NewRestClient creates a row store client for the project at baseURL.
func NewRestClient(baseURL, anonKey string, client *http.Client) *RestClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RestClient{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: client,
	}
}

// SetToken installs the bearer token used for subsequent requests.
func (c *RestClient) SetToken(accessToken string) {
	c.mu.Lock()
	c.accessToken = accessToken
	c.mu.Unlock()
}

func (c *RestClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// doRequest performs an authenticated request against the row store API.
func (c *RestClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	token := c.token()
	if token == "" {
		return shared.ErrNotAuthenticated
	}

	apiURL := c.baseURL + "/rest/v1" + endpoint

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if method == http.MethodPost {
		// Upsert semantics: an existing primary key replaces the row.
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("%w: status %d", shared.ErrValidation, resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d", shared.ErrTransport, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// List fetches the canonical entry list for userID ordered by recency.
// An empty result is valid for an account with no entries.
//
// The owner filter narrows the query; read authorization itself comes from
// the row store's policy on the bearer identity, never from this parameter.
func (c *RestClient) List(ctx context.Context, userID string) ([]models.Entry, error) {
	endpoint := fmt.Sprintf("/%s?select=*&user_id=eq.%s&order=updated_at.desc",
		entriesTable, url.QueryEscape(userID))

	var rows []entryRow
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &rows); err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}

	return entries, nil
}

// Upsert writes an entry by primary key, creating or replacing the row.
func (c *RestClient) Upsert(ctx context.Context, entry models.Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	endpoint := "/" + entriesTable
	return c.doRequest(ctx, http.MethodPost, endpoint, []entryRow{toRow(entry)}, nil)
}

// Delete removes an entry by primary key. Deleting an id that does not
// exist is treated as success.
func (c *RestClient) Delete(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("/%s?id=eq.%s", entriesTable, url.QueryEscape(id))
	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}
