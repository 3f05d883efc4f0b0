// package formatter renders entries for terminal output and file export
// (Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/shared"
)

// IsArabic reports whether text starts with Arabic-script content. Only a
// short prefix is inspected; mixed-script lyrics follow their opening line.
func IsArabic(text string) bool {
	inspected := 0
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
		inspected++
		if inspected >= 50 {
			break
		}
	}
	return false
}

// Snippet returns the first line of lyrics, truncated to max runes.
func Snippet(lyrics string, max int) string {
	line := lyrics
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= max {
		return line
	}
	runes := []rune(line)
	return string(runes[:max]) + "…"
}

// RelativeTime renders a timestamp as a coarse "x ago" label for list rows.
func RelativeTime(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return shared.FormatTimestamp(t)
	}
}

// ToMarkdown renders an entry as a standalone Markdown document.
func ToMarkdown(entry models.Entry) []byte {
	var buf bytes.Buffer

	title := entry.Title
	if title == "" {
		title = "Untitled"
	}

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	if entry.Category != "" {
		buf.WriteString(fmt.Sprintf("**Category**: %s\n\n", entry.Category))
	}
	buf.WriteString(fmt.Sprintf("**Updated**: %s\n\n", shared.FormatTimestamp(entry.UpdatedAt)))
	if entry.IsFavorite {
		buf.WriteString("**Favorite**: yes\n\n")
	}
	buf.WriteString(entry.Lyrics)
	if !strings.HasSuffix(entry.Lyrics, "\n") {
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// ToText renders an entry as plain text.
func ToText(entry models.Entry) []byte {
	var buf bytes.Buffer

	title := entry.Title
	if title == "" {
		title = "Untitled"
	}

	buf.WriteString(title + "\n")
	buf.WriteString(strings.Repeat("=", utf8.RuneCountInString(title)) + "\n")
	buf.WriteString(fmt.Sprintf("Updated: %s\n\n", shared.FormatTimestamp(entry.UpdatedAt)))
	buf.WriteString(entry.Lyrics)
	if !strings.HasSuffix(entry.Lyrics, "\n") {
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// ToJSON renders an entry as indented JSON.
func ToJSON(entry models.Entry) ([]byte, error) {
	return shared.MarshalJSON(entry, true)
}

// SortEntries orders entries in place according to opt. The remote store's
// recency order is [models.SortDateDesc]; the other orderings are
// client-side conveniences for the list command.
func SortEntries(entries []models.Entry, opt models.SortOption) {
	switch opt {
	case models.SortDateAsc:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].UpdatedAt.Before(entries[j].UpdatedAt) })
	case models.SortTitleAsc:
		sort.SliceStable(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Title) < strings.ToLower(entries[j].Title)
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].UpdatedAt.After(entries[j].UpdatedAt) })
	}
}

// FilterEntries returns the entries whose title or lyrics contain the
// query, case-insensitively. An empty query matches everything.
func FilterEntries(entries []models.Entry, query string) []models.Entry {
	if query == "" {
		return entries
	}
	q := strings.ToLower(query)
	var matched []models.Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Lyrics), q) {
			matched = append(matched, e)
		}
	}
	return matched
}
