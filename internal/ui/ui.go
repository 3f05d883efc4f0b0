package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/munshid/nasheedbox/internal/formatter"
	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/session"
	"github.com/munshid/nasheedbox/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	AuthView ViewState = iota
	HomeView
	EditorView
	ReaderView
)

type stateMsg session.State

type authDoneMsg struct {
	err error
}

type saveDoneMsg struct {
	err error
}

type deleteDoneMsg struct {
	err error
}

type refreshDoneMsg struct {
	err error
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	bridge *session.Bridge
	rec    *session.Reconciler
	width  int
	height int

	state  session.State
	states chan session.State

	emailInput textinput.Model
	passInput  textinput.Model
	signUp     bool
	authBusy   bool
	authErr    string

	entryList list.Model
	listReady bool

	titleInput    textinput.Model
	lyricsArea    textarea.Model
	editing       models.Entry
	confirmDelete bool

	reading models.Entry

	notice string
	help   help.Model
	keys   keyMap
}

// NewModel creates a new TUI model wired to the session reconciler. Snapshots
// published by the reconciler are buffered on a channel and drained between
// renders, so a burst of background syncs never blocks the publisher.
func NewModel(ctx context.Context, bridge *session.Bridge, rec *session.Reconciler) *Model {
	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 120
	email.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.CharLimit = 120
	pass.EchoMode = textinput.EchoPassword

	title := textinput.New()
	title.Placeholder = "title"
	title.CharLimit = 200

	lyrics := textarea.New()
	lyrics.Placeholder = "lyrics..."

	m := &Model{
		ctx:        ctx,
		view:       AuthView,
		bridge:     bridge,
		rec:        rec,
		states:     make(chan session.State, 64),
		emailInput: email,
		passInput:  pass,
		titleInput: title,
		lyricsArea: lyrics,
		help:       help.New(),
		keys:       newKeyMap(),
	}

	rec.Observe(func(s session.State) {
		for {
			select {
			case m.states <- s:
				return
			default:
				select {
				case <-m.states:
				default:
				}
			}
		}
	})

	return m
}

// Init starts the session bootstrap and begins draining reconciler snapshots.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.bootstrap(), m.waitForState())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.listReady {
			m.entryList.SetSize(msg.Width-4, msg.Height-8)
		}
		m.lyricsArea.SetWidth(msg.Width - 4)
		m.lyricsArea.SetHeight(msg.Height - 10)
		return m, nil

	case stateMsg:
		return m.applyState(session.State(msg))

	case authDoneMsg:
		m.authBusy = false
		if msg.err != nil {
			m.authErr = authErrorText(msg.err)
			return m, nil
		}
		m.authErr = ""
		return m, nil

	case saveDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("saved locally, sync failed: %v", msg.err)
		}
		return m, nil

	case deleteDoneMsg:
		if msg.err != nil {
			m.notice = "delete did not reach the server, restoring from remote"
		}
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.notice = "refresh failed, showing cached entries"
		}
		return m, nil

	case tea.KeyMsg:
		m.notice = ""
		switch m.view {
		case AuthView:
			return m.handleAuthKeys(msg)
		case HomeView:
			return m.handleHomeKeys(msg)
		case EditorView:
			return m.handleEditorKeys(msg)
		case ReaderView:
			return m.handleReaderKeys(msg)
		}
	}

	return m.updateChildren(msg)
}

// applyState folds a reconciler snapshot into the view model.
func (m *Model) applyState(s session.State) (tea.Model, tea.Cmd) {
	m.state = s

	switch s.Phase {
	case session.Unauthenticated:
		m.view = AuthView
		m.listReady = false
		m.passInput.SetValue("")
	case session.Authenticated:
		if m.view == AuthView {
			m.view = HomeView
			m.authBusy = false
			m.authErr = ""
		}
		m.syncList(s.Entries)
		// The reader tracks its entry across background refreshes.
		if m.view == ReaderView {
			if entry, ok := m.rec.Entry(m.reading.ID); ok {
				m.reading = entry
			} else {
				m.view = HomeView
			}
		}
	}

	return m, m.waitForState()
}

// syncList rebuilds the list items from a snapshot, preserving the cursor.
func (m *Model) syncList(entries []models.Entry) {
	items := make([]list.Item, len(entries))
	for i, entry := range entries {
		items[i] = entryItem{entry: entry}
	}

	if !m.listReady {
		m.entryList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.entryList.Title = "Nasheeds"
		m.entryList.SetSize(m.width-4, m.height-8)
		m.listReady = true
		return
	}

	idx := m.entryList.Index()
	m.entryList.SetItems(items)
	if idx >= len(items) && len(items) > 0 {
		m.entryList.Select(len(items) - 1)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case AuthView:
		return m.renderAuth()
	case HomeView:
		return m.renderHome()
	case EditorView:
		return m.renderEditor()
	case ReaderView:
		return m.renderReader()
	default:
		return ""
	}
}

func (m *Model) handleAuthKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		if m.emailInput.Focused() {
			m.emailInput.Blur()
			m.passInput.Focus()
		} else {
			m.passInput.Blur()
			m.emailInput.Focus()
		}
		return m, textinput.Blink
	case "ctrl+t":
		m.signUp = !m.signUp
		m.authErr = ""
		return m, nil
	case "enter":
		if m.emailInput.Focused() {
			m.emailInput.Blur()
			m.passInput.Focus()
			return m, textinput.Blink
		}
		return m.submitAuth()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.emailInput, cmd = m.emailInput.Update(msg)
	cmds = append(cmds, cmd)
	m.passInput, cmd = m.passInput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) submitAuth() (tea.Model, tea.Cmd) {
	email := strings.TrimSpace(m.emailInput.Value())
	password := m.passInput.Value()
	if email == "" || password == "" {
		m.authErr = "email and password are required"
		return m, nil
	}
	if m.authBusy {
		return m, nil
	}

	m.authBusy = true
	m.authErr = ""
	signUp := m.signUp
	return m, func() tea.Msg {
		var err error
		if signUp {
			_, err = m.bridge.SignUp(m.ctx, email, password)
		} else {
			_, err = m.bridge.SignIn(m.ctx, email, password)
		}
		return authDoneMsg{err: err}
	}
}

func (m *Model) handleHomeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While the list filter prompt is open every key belongs to it.
	if m.listReady && m.entryList.FilterState() == list.Filtering {
		return m.updateChildren(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.create):
		m.openEditor(models.Entry{})
		return m, textinput.Blink
	case key.Matches(msg, m.keys.enter):
		if entry, ok := m.selectedEntry(); ok {
			m.reading = entry
			m.view = ReaderView
		}
		return m, nil
	case key.Matches(msg, m.keys.edit):
		if entry, ok := m.selectedEntry(); ok {
			m.openEditor(entry)
			return m, textinput.Blink
		}
		return m, nil
	case key.Matches(msg, m.keys.favorite):
		if entry, ok := m.selectedEntry(); ok {
			return m, m.toggleFavorite(entry.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, func() tea.Msg {
			return refreshDoneMsg{err: m.rec.Refresh(m.ctx)}
		}
	case key.Matches(msg, m.keys.more):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.logout):
		return m, func() tea.Msg {
			m.bridge.SignOut(m.ctx)
			return nil
		}
	}

	return m.updateChildren(msg)
}

func (m *Model) handleEditorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmDelete {
		switch msg.String() {
		case "y":
			m.confirmDelete = false
			id := m.editing.ID
			m.view = HomeView
			return m, func() tea.Msg {
				return deleteDoneMsg{err: m.rec.Delete(m.ctx, id)}
			}
		case "n", "esc":
			m.confirmDelete = false
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = HomeView
		return m, nil
	case "tab":
		if m.titleInput.Focused() {
			m.titleInput.Blur()
			return m, m.lyricsArea.Focus()
		}
		m.lyricsArea.Blur()
		m.titleInput.Focus()
		return m, textinput.Blink
	case "ctrl+s":
		return m.saveEditor()
	case "ctrl+d":
		if m.editing.ID != "" {
			m.confirmDelete = true
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.titleInput, cmd = m.titleInput.Update(msg)
	cmds = append(cmds, cmd)
	m.lyricsArea, cmd = m.lyricsArea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// saveEditor applies the edit optimistically and returns to the list right
// away; the remote write continues in the background.
func (m *Model) saveEditor() (tea.Model, tea.Cmd) {
	entry := m.editing
	entry.Title = strings.TrimSpace(m.titleInput.Value())
	entry.Lyrics = m.lyricsArea.Value()
	if entry.Title == "" && strings.TrimSpace(entry.Lyrics) == "" {
		m.notice = "nothing to save"
		return m, nil
	}

	m.view = HomeView
	return m, func() tea.Msg {
		_, err := m.rec.Save(m.ctx, entry)
		return saveDoneMsg{err: err}
	}
}

func (m *Model) handleReaderKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = HomeView
		return m, nil
	case "e":
		m.openEditor(m.reading)
		return m, textinput.Blink
	case "f":
		return m, m.toggleFavorite(m.reading.ID)
	}
	return m, nil
}

func (m *Model) openEditor(entry models.Entry) {
	m.editing = entry
	m.confirmDelete = false
	m.titleInput.SetValue(entry.Title)
	m.lyricsArea.SetValue(entry.Lyrics)
	m.lyricsArea.Blur()
	m.titleInput.Focus()
	m.view = EditorView
}

func (m *Model) toggleFavorite(id string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.rec.ToggleFavorite(m.ctx, id)
		return saveDoneMsg{err: err}
	}
}

func (m *Model) selectedEntry() (models.Entry, bool) {
	if !m.listReady {
		return models.Entry{}, false
	}
	selected := m.entryList.SelectedItem()
	if selected == nil {
		return models.Entry{}, false
	}
	item, ok := selected.(entryItem)
	if !ok {
		return models.Entry{}, false
	}
	return item.entry, true
}

func (m *Model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case HomeView:
		if m.listReady {
			m.entryList, cmd = m.entryList.Update(msg)
		}
	case EditorView:
		m.lyricsArea, cmd = m.lyricsArea.Update(msg)
	}
	return m, cmd
}

func (m *Model) bootstrap() tea.Cmd {
	return func() tea.Msg {
		m.rec.Bootstrap(m.ctx)
		return stateMsg(m.rec.Snapshot())
	}
}

func (m *Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.states
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func (m *Model) renderAuth() string {
	mode := "Sign in"
	if m.signUp {
		mode = "Create account"
	}
	title := styles.title.Render(mode)

	var errLine string
	if m.authErr != "" {
		errLine = styles.err.Render(m.authErr) + "\n"
	}
	var busyLine string
	if m.authBusy {
		busyLine = styles.muted.Render("contacting server...") + "\n"
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.toggle, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf(
		"%s\n%s\n%s\n\n%s%s\n%s",
		title,
		m.emailInput.View(),
		m.passInput.View(),
		errLine,
		busyLine,
		helpView,
	)
}

func (m *Model) renderHome() string {
	header := m.renderHeader()

	var body string
	if m.listReady {
		body = m.entryList.View()
	} else {
		body = styles.muted.Render("Loading...")
	}

	var noticeLine string
	if m.notice != "" {
		noticeLine = "\n" + styles.warn.Render(m.notice)
	}

	helpView := m.help.View(m.keys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", header, body, noticeLine, helpView)
}

// renderHeader shows who is signed in and how trustworthy the list is.
func (m *Model) renderHeader() string {
	var who string
	if m.state.User != nil {
		who = m.state.User.Email
	}
	if m.state.Speculative {
		who = fmt.Sprintf("%s %s", who, styles.warn.Render("(verifying session...)"))
	}

	var fresh string
	switch m.state.Freshness {
	case session.Syncing:
		fresh = styles.muted.Render("syncing...")
	case session.Fresh:
		fresh = styles.ok.Render("up to date")
	default:
		fresh = styles.warn.Render("offline copy")
	}

	return fmt.Sprintf("%s  %s", styles.help.Render(who), fresh)
}

func (m *Model) renderEditor() string {
	if m.confirmDelete {
		title := styles.title.Render(fmt.Sprintf("Delete '%s'?", m.editing.Title))
		helpKeys := []key.Binding{m.keys.yes, m.keys.no}
		return fmt.Sprintf("%s\n%s", title, m.help.ShortHelpView(helpKeys))
	}

	mode := "New nasheed"
	if m.editing.ID != "" {
		mode = "Edit nasheed"
	}
	title := styles.title.Render(mode)

	var noticeLine string
	if m.notice != "" {
		noticeLine = "\n" + styles.warn.Render(m.notice)
	}

	helpKeys := []key.Binding{m.keys.save, m.keys.remove, m.keys.back}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf(
		"%s\n%s\n\n%s%s\n\n%s",
		title,
		m.titleInput.View(),
		m.lyricsArea.View(),
		noticeLine,
		helpView,
	)
}

func (m *Model) renderReader() string {
	title := styles.title.Render(m.reading.Title)
	meta := styles.muted.Render("Updated " + formatter.RelativeTime(m.reading.UpdatedAt, time.Now()))

	helpKeys := []key.Binding{m.keys.edit, m.keys.favorite, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	lyrics := renderLyrics(m.reading.Lyrics, m.width-4)
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, meta, lyrics, helpView)
}

// renderLyrics lays lyrics out for reading. Arabic content is right-aligned,
// matching its reading direction.
func renderLyrics(lyrics string, width int) string {
	if width > 0 && formatter.IsArabic(lyrics) {
		return lipgloss.NewStyle().Width(width).Align(lipgloss.Right).Render(lyrics)
	}
	return lyrics
}

// authErrorText maps sign-in failures to a short line the form can show
// without leaving the screen.
func authErrorText(err error) string {
	switch {
	case errors.Is(err, shared.ErrAuth):
		return err.Error()
	case errors.Is(err, shared.ErrNotAuthenticated):
		return err.Error()
	case errors.Is(err, shared.ErrTransport):
		return "cannot reach the server, check your connection"
	default:
		return fmt.Sprintf("sign-in failed: %v", err)
	}
}
