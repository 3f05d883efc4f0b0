package main

import (
	"context"
	"fmt"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync forces a refresh of the local cache from the remote store.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	state, err := r.requireUser(ctx, sess)
	if err != nil {
		return err
	}

	before := len(state.Entries)
	if err := sess.rec.Refresh(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	// state.User comes from requireUser and is always set; the fresh
	// snapshot's user could have been cleared by a concurrent sign-out.
	after := sess.rec.Snapshot()
	r.logger.Info("sync complete", "user", state.User.Email, "entries", len(after.Entries))
	return r.writePlain("✓ Synced %d entries (was %d)\n", len(after.Entries), before)
}

// Export writes entries to disk in bulk, streaming progress to the log.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := r.requireUser(ctx, sess); err != nil {
		return err
	}

	if err := sess.rec.Refresh(ctx); err != nil {
		r.logger.Warn("refresh failed, exporting cached entries", "error", err)
	}

	state := sess.rec.Snapshot()
	entries := state.Entries
	if cmd.Bool("favorites") {
		var favorites []models.Entry
		for _, e := range entries {
			if e.IsFavorite {
				favorites = append(favorites, e)
			}
		}
		entries = favorites
	}

	if len(entries) == 0 {
		return r.writePlain("Nothing to export\n")
	}

	engine := tasks.NewExportEngine(r.logger)
	prog := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range prog {
			r.logger.Info(update.Message, "phase", update.Phase.String())
		}
	}()

	result, err := engine.BulkExport(ctx, prog, entries, tasks.BulkExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  r.config.Sync.RateLimit,
	})
	close(prog)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("✓ Exported %d/%d entries to %s\n", result.SuccessfulExports, result.TotalEntries, result.OutputDirectory)
	if result.FailedExports > 0 {
		r.writePlain("✗ %d entries failed, see %s\n", result.FailedExports, result.ManifestPath)
	}
	return nil
}
