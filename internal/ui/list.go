package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/munshid/nasheedbox/internal/formatter"
	"github.com/munshid/nasheedbox/internal/models"
)

var _ list.Item = entryItem{}

// entryItem wraps [models.Entry] to implement [list.Item]. Filtering matches
// against both the title and the lyrics so the list's search reaches lines
// inside an entry.
type entryItem struct {
	entry models.Entry
}

func (i entryItem) FilterValue() string { return i.entry.Title + "\n" + i.entry.Lyrics }

func (i entryItem) Title() string {
	if i.entry.IsFavorite {
		return "★ " + i.entry.Title
	}
	return i.entry.Title
}

func (i entryItem) Description() string {
	ts := formatter.RelativeTime(i.entry.UpdatedAt, time.Now())
	snippet := formatter.Snippet(i.entry.Lyrics, 40)
	if snippet == "" {
		return ts
	}
	// Arabic snippets lead so the right-to-left text reads from the row edge.
	if formatter.IsArabic(i.entry.Lyrics) {
		return fmt.Sprintf("%s • %s", snippet, ts)
	}
	return fmt.Sprintf("%s • %s", ts, snippet)
}
