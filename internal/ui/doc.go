// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow over a synced nasheed collection:
//  1. [AuthView] : Sign in or create an account
//  2. [HomeView] : Browse, search, and favorite entries
//  3. [EditorView] : Create or edit an entry, with delete confirmation
//  4. [ReaderView] : Read lyrics full-screen
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Collection state flows in through [session.Reconciler] snapshots delivered over
// a channel, so remote syncs and optimistic mutations surface without blocking
// the event loop.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
