package formatter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/munshid/nasheedbox/internal/models"
)

func TestIsArabic(t *testing.T) {
	t.Run("arabic text", func(t *testing.T) {
		if !IsArabic("طلع البدر علينا") {
			t.Error("expected Arabic text to be detected")
		}
	})

	t.Run("latin text", func(t *testing.T) {
		if IsArabic("The moon rose over us") {
			t.Error("expected Latin text not to be detected")
		}
	})

	t.Run("arabic beyond prefix is ignored", func(t *testing.T) {
		text := strings.Repeat("a", 60) + "طلع"
		if IsArabic(text) {
			t.Error("Arabic past the inspected prefix should not count")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if IsArabic("") {
			t.Error("empty text is not Arabic")
		}
	})
}

func TestSnippet(t *testing.T) {
	t.Run("short first line", func(t *testing.T) {
		got := Snippet("first line\nsecond line", 40)
		if got != "first line" {
			t.Errorf("expected first line, got %q", got)
		}
	})

	t.Run("truncates long line", func(t *testing.T) {
		got := Snippet("abcdefghij", 5)
		if got != "abcde…" {
			t.Errorf("expected truncated snippet, got %q", got)
		}
	})

	t.Run("trims whitespace", func(t *testing.T) {
		got := Snippet("  padded  \nrest", 40)
		if got != "padded" {
			t.Errorf("expected trimmed line, got %q", got)
		}
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		got := Snippet("طلع البدر", 3)
		if got != "طلع…" {
			t.Errorf("expected rune-aware truncation, got %q", got)
		}
	})
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)

	cases := []struct {
		name string
		at   time.Time
		want string
	}{
		{"seconds ago", now.Add(-30 * time.Second), "just now"},
		{"minutes ago", now.Add(-5 * time.Minute), "5m ago"},
		{"hours ago", now.Add(-3 * time.Hour), "3h ago"},
		{"days ago", now.Add(-48 * time.Hour), "2d ago"},
		{"older than a month", now.Add(-60 * 24 * time.Hour), "16 Apr 2025 12:00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RelativeTime(tc.at, now); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func testEntry() models.Entry {
	return models.Entry{
		ID:         "e1",
		Title:      "Tala'a al-Badru",
		Lyrics:     "The moon rose over us\nfrom the valley of Wada",
		Category:   "classical",
		IsFavorite: true,
		OwnerID:    "user-1",
		CreatedAt:  time.Date(2025, 3, 7, 14, 30, 0, 0, time.Local),
		UpdatedAt:  time.Date(2025, 3, 8, 9, 0, 0, 0, time.Local),
	}
}

func TestToMarkdown(t *testing.T) {
	t.Run("full entry", func(t *testing.T) {
		out := string(ToMarkdown(testEntry()))

		for _, want := range []string{
			"# Tala'a al-Badru\n\n",
			"**Category**: classical\n\n",
			"**Updated**: 08 Mar 2025 09:00\n\n",
			"**Favorite**: yes\n\n",
			"from the valley of Wada",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected markdown to contain %q:\n%s", want, out)
			}
		}
		if !strings.HasSuffix(out, "\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("untitled fallback", func(t *testing.T) {
		e := testEntry()
		e.Title = ""
		e.Category = ""
		e.IsFavorite = false

		out := string(ToMarkdown(e))
		if !strings.HasPrefix(out, "# Untitled\n") {
			t.Errorf("expected Untitled heading, got %q", out)
		}
		if strings.Contains(out, "**Category**") || strings.Contains(out, "**Favorite**") {
			t.Error("empty metadata should be omitted")
		}
	})
}

func TestToText(t *testing.T) {
	out := string(ToText(testEntry()))
	lines := strings.Split(out, "\n")

	if lines[0] != "Tala'a al-Badru" {
		t.Errorf("expected title line, got %q", lines[0])
	}
	if lines[1] != strings.Repeat("=", len([]rune(lines[0]))) {
		t.Errorf("expected underline matching title width, got %q", lines[1])
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected trailing newline")
	}
}

func TestToJSON(t *testing.T) {
	data, err := ToJSON(testEntry())
	if err != nil {
		t.Fatalf("failed to render JSON: %v", err)
	}

	var decoded models.Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.ID != "e1" || decoded.Title != "Tala'a al-Badru" {
		t.Errorf("unexpected round trip: %+v", decoded)
	}
	if !strings.Contains(string(data), "\n") {
		t.Error("expected indented output")
	}
}

func TestSortEntries(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	build := func() []models.Entry {
		return []models.Entry{
			{ID: "a", Title: "Zamilooni", UpdatedAt: base.Add(time.Hour)},
			{ID: "b", Title: "asma allah", UpdatedAt: base.Add(3 * time.Hour)},
			{ID: "c", Title: "Burdah", UpdatedAt: base.Add(2 * time.Hour)},
		}
	}

	order := func(entries []models.Entry) string {
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		return strings.Join(ids, ",")
	}

	t.Run("date desc", func(t *testing.T) {
		entries := build()
		SortEntries(entries, models.SortDateDesc)
		if got := order(entries); got != "b,c,a" {
			t.Errorf("expected b,c,a got %s", got)
		}
	})

	t.Run("date asc", func(t *testing.T) {
		entries := build()
		SortEntries(entries, models.SortDateAsc)
		if got := order(entries); got != "a,c,b" {
			t.Errorf("expected a,c,b got %s", got)
		}
	})

	t.Run("title asc is case insensitive", func(t *testing.T) {
		entries := build()
		SortEntries(entries, models.SortTitleAsc)
		if got := order(entries); got != "b,c,a" {
			t.Errorf("expected b,c,a got %s", got)
		}
	})
}

func TestFilterEntries(t *testing.T) {
	entries := []models.Entry{
		{ID: "a", Title: "Tala'a al-Badru", Lyrics: "the moon rose over us"},
		{ID: "b", Title: "Burdah", Lyrics: "mawlaya salli wa sallim"},
	}

	t.Run("empty query matches all", func(t *testing.T) {
		if got := FilterEntries(entries, ""); len(got) != 2 {
			t.Errorf("expected all entries, got %d", len(got))
		}
	})

	t.Run("matches title case insensitively", func(t *testing.T) {
		got := FilterEntries(entries, "BADRU")
		if len(got) != 1 || got[0].ID != "a" {
			t.Errorf("expected entry a, got %+v", got)
		}
	})

	t.Run("matches lyrics", func(t *testing.T) {
		got := FilterEntries(entries, "mawlaya")
		if len(got) != 1 || got[0].ID != "b" {
			t.Errorf("expected entry b, got %+v", got)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if got := FilterEntries(entries, "qasida"); len(got) != 0 {
			t.Errorf("expected no entries, got %+v", got)
		}
	})
}
