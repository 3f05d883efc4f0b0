package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/shared"
)

func testEntry() models.Entry {
	now := time.Now().UTC().Truncate(time.Second)
	return models.Entry{
		ID:        "entry-1",
		Title:     "Tala'a al-Badru",
		Lyrics:    "first line\nsecond line",
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
		OwnerID:   "user-1",
	}
}

func TestRestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("requests without a token are rejected locally", func(t *testing.T) {
		client := NewRestClient("http://never-called.invalid", "anon-key", nil)

		if _, err := client.List(ctx, "user-1"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if err := client.Upsert(ctx, testEntry()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if err := client.Delete(ctx, "entry-1"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		t.Run("queries the table scoped to the owner, freshest first", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/rest/v1/nasheeds" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("user_id") != "eq.user-1" {
					t.Errorf("expected owner filter, got %s", q.Get("user_id"))
				}
				if q.Get("order") != "updated_at.desc" {
					t.Errorf("expected recency order, got %s", q.Get("order"))
				}
				if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
					t.Errorf("unexpected authorization header: %s", auth)
				}
				if key := r.Header.Get("apikey"); key != "anon-key" {
					t.Errorf("unexpected apikey header: %s", key)
				}

				json.NewEncoder(w).Encode([]map[string]any{
					{"id": "e2", "title": "Newer", "lyrics": "b", "user_id": "user-1",
						"created_at": "2025-05-01T10:00:00Z", "updated_at": "2025-06-01T10:00:00Z"},
					{"id": "e1", "title": "Older", "lyrics": "a", "user_id": "user-1",
						"created_at": "2025-04-01T10:00:00Z", "updated_at": "2025-05-01T10:00:00Z",
						"is_favorite": true},
				})
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			entries, err := client.List(ctx, "user-1")
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(entries))
			}
			if entries[0].ID != "e2" || entries[1].ID != "e1" {
				t.Errorf("order must follow the response, got %s,%s", entries[0].ID, entries[1].ID)
			}
			if !entries[1].IsFavorite {
				t.Error("favorite flag lost in mapping")
			}
		})

		t.Run("empty collection is a valid result", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode([]map[string]any{})
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			entries, err := client.List(ctx, "user-1")
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("expected empty list, got %d", len(entries))
			}
		})
	})

	t.Run("Upsert", func(t *testing.T) {
		t.Run("posts the row with merge-duplicates", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if prefer := r.Header.Get("Prefer"); prefer != "resolution=merge-duplicates" {
					t.Errorf("expected upsert preference, got %s", prefer)
				}

				var rows []map[string]any
				json.NewDecoder(r.Body).Decode(&rows)
				if len(rows) != 1 {
					t.Fatalf("expected a single row, got %d", len(rows))
				}
				if rows[0]["user_id"] != "user-1" {
					t.Errorf("owner column must be user_id, got %v", rows[0])
				}
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			if err := client.Upsert(ctx, testEntry()); err != nil {
				t.Fatalf("upsert failed: %v", err)
			}
		})

		t.Run("invalid entries fail before any request", func(t *testing.T) {
			client := NewRestClient("http://never-called.invalid", "anon-key", nil)
			client.SetToken("token-1")

			if err := client.Upsert(ctx, models.Entry{Title: "no id"}); !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})

		t.Run("policy rejections map to validation", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			if err := client.Upsert(ctx, testEntry()); !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("filters by primary key", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("expected DELETE, got %s", r.Method)
				}
				if q := r.URL.Query().Get("id"); q != "eq.entry-1" {
					t.Errorf("expected id filter, got %s", q)
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			if err := client.Delete(ctx, "entry-1"); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
		})

		t.Run("missing rows delete as success", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// PostgREST returns 204 whether or not rows matched.
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			if err := client.Delete(ctx, "never-existed"); err != nil {
				t.Fatalf("expected idempotent success, got %v", err)
			}
		})

		t.Run("server failures map to transport", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			client := NewRestClient(server.URL, "anon-key", server.Client())
			client.SetToken("token-1")

			if err := client.Delete(ctx, "entry-1"); !errors.Is(err, shared.ErrTransport) {
				t.Errorf("expected ErrTransport, got %v", err)
			}
		})
	})

	t.Run("SetToken clears on empty string", func(t *testing.T) {
		client := NewRestClient("http://never-called.invalid", "anon-key", nil)
		client.SetToken("token-1")
		client.SetToken("")

		if _, err := client.List(ctx, "user-1"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated after clearing, got %v", err)
		}
	})
}
