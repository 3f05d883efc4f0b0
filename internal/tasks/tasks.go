// package tasks implements bulk operations over a user's entry collection.
//
// The core abstraction is ExportEngine, which writes entries to disk in a
// chosen format. Operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"fmt"

	"github.com/munshid/nasheedbox/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchEntries Phase = iota
	ExportEntry
	WriteManifest
)

func (p Phase) String() string {
	switch p {
	case FetchEntries:
		return "fetch_entries"
	case ExportEntry:
		return "export_entry"
	case WriteManifest:
		return "write_manifest"
	default:
		return ""
	}
}

// EntryExportResult records the outcome of exporting a single entry.
type EntryExportResult struct {
	EntryID string `json:"entry_id"`
	Title   string `json:"title"`
	Success bool   `json:"success"`
	File    string `json:"file,omitempty"`
	Error   error  `json:"-"`
}

// BulkExportResult summarizes a bulk export run.
type BulkExportResult struct {
	TotalEntries      int                 `json:"total_entries"`
	SuccessfulExports int                 `json:"successful_exports"`
	FailedExports     int                 `json:"failed_exports"`
	OutputDirectory   string              `json:"output_directory"`
	ManifestPath      string              `json:"manifest_path,omitempty"`
	Results           []EntryExportResult `json:"results"`
}

func fetchingEntriesUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchEntries,
		Step:    1,
		Total:   total,
		Message: "Collecting entries for export...",
	}
}

func exportingEntryUpdate(step, total int, entry models.Entry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportEntry,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, entry.Title),
	}
}

func exportCompletedUpdate(step, total int, title, file string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportEntry,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, title, file),
	}
}

func exportFailedUpdate(step, total int, title string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportEntry,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, title, err),
	}
}

func manifestUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteManifest,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Manifest written to %s", path),
	}
}
