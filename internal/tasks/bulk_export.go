package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/munshid/nasheedbox/internal/formatter"
	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/shared"
	"golang.org/x/time/rate"
)

// BulkExportOpts contains configuration for bulk entry exports.
type BulkExportOpts struct {
	Format     string  // Export format: json, markdown, txt
	OutputDir  string  // Base output directory (default: nasheed_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 4)
	RateLimit  float64 // Files written per second (default: 20)
}

type exportJob struct {
	Index int
	Entry models.Entry
}

// ExportEngine writes entries to disk in bulk.
type ExportEngine struct {
	logger *log.Logger
}

// NewExportEngine creates an ExportEngine with the given logger.
func NewExportEngine(logger *log.Logger) *ExportEngine {
	return &ExportEngine{logger: logger}
}

// BulkExport exports entries concurrently with rate limiting and progress tracking.
//
// This method implements a worker pool pattern. It handles partial failures
// gracefully and generates a manifest file summarizing the export results.
func (e *ExportEngine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	entries []models.Entry,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("nasheed_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalEntries:    len(entries),
		OutputDirectory: opts.OutputDir,
		Results:         make([]EntryExportResult, 0, len(entries)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan exportJob, len(entries))
	results := make(chan EntryExportResult, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		e.sendProgress(prog, fetchingEntriesUpdate(len(entries)))
		for i, entry := range entries {
			select {
			case <-ctx.Done():
				close(jobs)
				return
			default:
			}

			if err := limiter.Wait(ctx); err != nil {
				close(jobs)
				return
			}

			jobs <- exportJob{Index: i, Entry: entry}
			e.sendProgress(prog, exportingEntryUpdate(i+1, len(entries), entry))
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(entries), res.Title, res.File))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(completed, len(entries), res.Title, res.Error))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := e.writeManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	e.sendProgress(prog, manifestUpdate(manifestPath))
	return result, nil
}

// exportWorker is a worker goroutine that exports entries from the jobs channel.
func (e *ExportEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- EntryExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results <- e.exportSingleEntry(job.Entry, opts)
	}
}

// exportSingleEntry writes a single entry to disk in the requested format.
func (e *ExportEngine) exportSingleEntry(entry models.Entry, opts BulkExportOpts) EntryExportResult {
	result := EntryExportResult{
		EntryID: entry.ID,
		Title:   entry.Title,
		Success: false,
	}

	var (
		data []byte
		ext  string
		err  error
	)

	switch opts.Format {
	case "markdown":
		data, ext = formatter.ToMarkdown(entry), "md"
	case "txt":
		data, ext = formatter.ToText(entry), "txt"
	case "json":
		fallthrough
	default:
		ext = "json"
		data, err = formatter.ToJSON(entry)
		if err != nil {
			result.Error = fmt.Errorf("JSON marshal failed: %w", err)
			return result
		}
	}

	path := filepath.Join(opts.OutputDir, fmt.Sprintf("%s.%s", exportFileName(entry), ext))
	if err := os.WriteFile(path, data, 0644); err != nil {
		result.Error = fmt.Errorf("failed to write %s: %w", path, err)
		return result
	}

	result.File = path
	result.Success = true
	return result
}

// writeManifest serializes the run summary alongside the exported files.
func (e *ExportEngine) writeManifest(result *BulkExportResult, path string) error {
	data, err := shared.MarshalJSON(result, true)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// sendProgress sends an update without blocking when nobody is listening.
func (e *ExportEngine) sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
		if e.logger != nil {
			e.logger.Debug("dropped progress update", "phase", update.Phase.String(), "step", update.Step)
		}
	}
}

// exportFileName derives a filesystem-safe name from the entry title,
// falling back to the entry ID when the title is empty or all symbols.
func exportFileName(entry models.Entry) string {
	var b strings.Builder
	for _, r := range strings.ToLower(entry.Title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 0x0600 && r <= 0x06FF:
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return entry.ID
	}
	// Suffix with a short ID fragment so distinct entries with the same
	// title never overwrite each other.
	id := entry.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return name + "_" + id
}
