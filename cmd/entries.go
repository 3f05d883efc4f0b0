package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/munshid/nasheedbox/internal/formatter"
	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/shared"
	"github.com/urfave/cli/v3"
)

// ListEntries prints the collection, freshest first by default. The remote
// store is consulted unless --cached is set; a failed fetch falls back to
// the cached copy with a warning instead of failing the command.
func (r *Runner) ListEntries(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	if !cmd.Bool("cached") {
		if err := sess.rec.Refresh(ctx); err != nil {
			r.logger.Warn("refresh failed, listing cached entries", "error", err)
		}
	}

	state := sess.rec.Snapshot()
	entries := state.Entries

	if query := cmd.String("search"); query != "" {
		entries = formatter.FilterEntries(entries, query)
	}
	if cmd.Bool("favorites") {
		var favorites []models.Entry
		for _, e := range entries {
			if e.IsFavorite {
				favorites = append(favorites, e)
			}
		}
		entries = favorites
	}

	sortOpt, err := models.ParseSortOption(cmd.String("sort"))
	if err != nil {
		return err
	}
	formatter.SortEntries(entries, sortOpt)

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	if len(entries) == 0 {
		return r.writePlain("No nasheeds found\n")
	}

	for _, e := range entries {
		marker := " "
		if e.IsFavorite {
			marker = "★"
		}
		r.writePlain("%s %-36s  %-30s  %s\n", marker, e.ID, truncate(e.Title, 30), formatter.RelativeTime(e.UpdatedAt, time.Now()))
	}
	return nil
}

// ShowEntry prints one entry in the requested format. The argument matches
// an entry ID first, then an exact title.
func (r *Runner) ShowEntry(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("id")
	if ref == "" {
		return fmt.Errorf("%w: entry id or title required", shared.ErrMissingArgument)
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	entry, err := r.resolveEntry(sess, ref)
	if err != nil {
		return err
	}

	switch cmd.String("format") {
	case "json":
		return r.writeJSON(entry, true)
	case "markdown":
		_, err := r.output.Write(formatter.ToMarkdown(entry))
		return err
	default:
		_, err := r.output.Write(formatter.ToText(entry))
		return err
	}
}

// CreateEntry saves a new entry. The write lands in the local cache first;
// a failed remote write keeps the local copy and reports the error.
func (r *Runner) CreateEntry(ctx context.Context, cmd *cli.Command) error {
	title := strings.TrimSpace(cmd.String("title"))
	lyrics, err := r.resolveLyrics(cmd)
	if err != nil {
		return err
	}
	if title == "" && lyrics == "" {
		return fmt.Errorf("%w: provide --title, --lyrics or --file", shared.ErrMissingArgument)
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	entry, err := sess.rec.Save(ctx, models.Entry{Title: title, Lyrics: lyrics})
	if err != nil {
		r.writePlain("✓ Saved locally as %s\n", entry.ID)
		return fmt.Errorf("remote save failed, will retry on next sync: %w", err)
	}

	r.logger.Info("entry created", "id", entry.ID, "title", entry.Title)
	return r.writePlain("✓ Created %s\n", entry.ID)
}

// EditEntry updates an existing entry's title and/or lyrics.
func (r *Runner) EditEntry(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("id")
	if ref == "" {
		return fmt.Errorf("%w: entry id or title required", shared.ErrMissingArgument)
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	entry, err := r.resolveEntry(sess, ref)
	if err != nil {
		return err
	}

	changed := false
	if cmd.IsSet("title") {
		entry.Title = strings.TrimSpace(cmd.String("title"))
		changed = true
	}
	if cmd.IsSet("lyrics") || cmd.IsSet("file") {
		lyrics, err := r.resolveLyrics(cmd)
		if err != nil {
			return err
		}
		entry.Lyrics = lyrics
		changed = true
	}
	if !changed {
		return fmt.Errorf("%w: nothing to change, provide --title, --lyrics or --file", shared.ErrMissingArgument)
	}

	if _, err := sess.rec.Save(ctx, entry); err != nil {
		r.writePlain("✓ Saved locally\n")
		return fmt.Errorf("remote save failed, will retry on next sync: %w", err)
	}

	return r.writePlain("✓ Updated %s\n", entry.ID)
}

// FavoriteEntry flips the favorite flag on an entry.
func (r *Runner) FavoriteEntry(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("id")
	if ref == "" {
		return fmt.Errorf("%w: entry id or title required", shared.ErrMissingArgument)
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	entry, err := r.resolveEntry(sess, ref)
	if err != nil {
		return err
	}

	updated, err := sess.rec.ToggleFavorite(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("remote save failed, will retry on next sync: %w", err)
	}

	if updated.IsFavorite {
		return r.writePlain("★ Favorited '%s'\n", updated.Title)
	}
	return r.writePlain("✓ Unfavorited '%s'\n", updated.Title)
}

// DeleteEntry removes an entry locally and remotely. When the remote delete
// fails the cache is re-synced from the server so the entry reappears.
func (r *Runner) DeleteEntry(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("id")
	if ref == "" {
		return fmt.Errorf("%w: entry id or title required", shared.ErrMissingArgument)
	}

	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	entry, err := r.resolveEntry(sess, ref)
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		r.writePlain("Delete '%s'? [y/N] ", entry.Title)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil || !strings.EqualFold(strings.TrimSpace(line), "y") {
			return r.writePlain("Aborted\n")
		}
	}

	if err := sess.rec.Delete(ctx, entry.ID); err != nil {
		return fmt.Errorf("delete did not reach the server: %w", err)
	}

	r.logger.Info("entry deleted", "id", entry.ID, "title", entry.Title)
	return r.writePlain("✓ Deleted '%s'\n", entry.Title)
}

// resolveEntry finds an entry in the current snapshot by ID, then by exact
// title, then by unique title prefix.
func (r *Runner) resolveEntry(sess *appSession, ref string) (models.Entry, error) {
	if entry, ok := sess.rec.Entry(ref); ok {
		return entry, nil
	}

	state := sess.rec.Snapshot()
	var matched []models.Entry
	for _, e := range state.Entries {
		if strings.EqualFold(e.Title, ref) {
			return e, nil
		}
		if strings.HasPrefix(strings.ToLower(e.Title), strings.ToLower(ref)) {
			matched = append(matched, e)
		}
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return models.Entry{}, fmt.Errorf("%w: no entry matches %q", shared.ErrEntryNotFound, ref)
	default:
		return models.Entry{}, fmt.Errorf("%w: %q matches %d entries, use the id", shared.ErrEntryNotFound, ref, len(matched))
	}
}

// resolveLyrics reads lyrics from --lyrics or --file.
func (r *Runner) resolveLyrics(cmd *cli.Command) (string, error) {
	if path := cmd.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read lyrics file: %w", err)
		}
		return string(data), nil
	}
	return cmd.String("lyrics"), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
