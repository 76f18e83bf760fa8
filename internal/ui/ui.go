package ui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	GenreListView ViewState = iota
	AlbumListView
)

// Options configures the browser.
type Options struct {
	Collection   models.Collection
	Snapshot     models.ListenedSnapshot // marks loaded from an earlier save, may be nil
	Prefix       string
	SnapshotPath string
	Open         func(url string) error
	Save         func(path string, s models.ListenedSnapshot) error
}

// Model represents the TUI application state.
type Model struct {
	view         ViewState
	collection   models.Collection
	genres       []string
	table        tasks.KeyTable
	listened     tasks.ListenedSet
	foreign      models.ListenedSnapshot // prefixed keys matching no genre, written back untouched
	snapshotPath string
	open         func(string) error
	save         func(string, models.ListenedSnapshot) error

	width       int
	height      int
	genreList   list.Model
	albumList   list.Model
	genre       string
	dirty       bool
	confirmQuit bool
	status      string
	err         error
	help        help.Model
	keys        keyMap
}

// NewModel creates a browser over opts.Collection with the marks of opts.Snapshot applied.
func NewModel(opts Options) *Model {
	genres := opts.Collection.Genres()
	table := tasks.NewKeyTable(opts.Prefix, genres)
	set, unmatched, _ := table.Resolve(opts.Snapshot)

	foreign := models.ListenedSnapshot{}
	for _, k := range unmatched {
		foreign[k] = opts.Snapshot[k]
	}

	m := &Model{
		view:         GenreListView,
		collection:   opts.Collection,
		genres:       genres,
		table:        table,
		listened:     set,
		foreign:      foreign,
		snapshotPath: opts.SnapshotPath,
		open:         opts.Open,
		save:         opts.Save,
		help:         help.New(),
		keys:         newKeyMap(),
	}
	m.genreList = newList(m.genreItems(), "Bandcamp Genres")
	m.albumList = newList(nil, "")
	return m
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.KeyMap.Quit.SetEnabled(false)
	return l
}

func (m *Model) genreItems() []list.Item {
	items := make([]list.Item, 0, len(m.genres))
	for _, g := range m.genres {
		items = append(items, genreItem{genre: g, total: len(m.collection[g]), listened: m.listenedIn(g)})
	}
	return items
}

func (m *Model) albumItems(genre string) []list.Item {
	albums := m.collection[genre]
	items := make([]list.Item, 0, len(albums))
	for _, a := range albums {
		id, _ := a.Identifier()
		items = append(items, albumItem{album: a, id: id, listened: id != "" && m.listened.Has(genre, id)})
	}
	return items
}

// listenedIn counts the genre's records currently marked.
func (m *Model) listenedIn(genre string) int {
	n := 0
	for _, a := range m.collection[genre] {
		if id, ok := a.Identifier(); ok && m.listened.Has(genre, id) {
			n++
		}
	}
	return n
}

// Snapshot returns the marks in the form the generated site exports, keyed by storage key.
func (m *Model) Snapshot() models.ListenedSnapshot {
	out := models.ListenedSnapshot{}
	for k, ids := range m.foreign {
		out[k] = append([]string(nil), ids...)
	}
	for genre, ids := range m.listened {
		if len(ids) == 0 {
			continue
		}
		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Strings(sorted)
		out[m.table.StorageKey(genre)] = sorted
	}
	return out
}

// Dirty reports whether marks changed since the last save.
func (m *Model) Dirty() bool { return m.dirty }

// Init implements [tea.Model].
func (m *Model) Init() tea.Cmd { return nil }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.genreList.SetSize(msg.Width-4, msg.Height-6)
		m.albumList.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		if m.filtering() {
			return m.updateLists(msg)
		}
		if key.Matches(msg, m.keys.quit) {
			return m.handleQuit()
		}
		m.confirmQuit = false
		if key.Matches(msg, m.keys.save) {
			return m, m.saveSnapshot()
		}

		switch m.view {
		case GenreListView:
			return m.handleGenreKeys(msg)
		case AlbumListView:
			return m.handleAlbumKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) filtering() bool {
	switch m.view {
	case GenreListView:
		return m.genreList.FilterState() == list.Filtering
	case AlbumListView:
		return m.albumList.FilterState() == list.Filtering
	}
	return false
}

func (m *Model) handleQuit() (tea.Model, tea.Cmd) {
	if m.dirty && !m.confirmQuit {
		m.confirmQuit = true
		m.status = "Unsaved marks: press s to save or q again to quit"
		return m, nil
	}
	return m, tea.Quit
}

func (m *Model) handleGenreKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.enter) {
		if item, ok := m.genreList.SelectedItem().(genreItem); ok {
			m.genre = item.genre
			m.albumList = newList(m.albumItems(item.genre), item.genre)
			m.albumList.SetSize(m.width-4, m.height-6)
			m.view = AlbumListView
			m.status = ""
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.genreList, cmd = m.genreList.Update(msg)
	return m, cmd
}

func (m *Model) handleAlbumKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = GenreListView
		m.genreList.SetItems(m.genreItems())
		return m, nil
	case key.Matches(msg, m.keys.listened):
		m.toggleSelected()
		return m, nil
	case key.Matches(msg, m.keys.open):
		if item, ok := m.albumList.SelectedItem().(albumItem); ok {
			return m, m.openURL(item.album.URL)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.albumList, cmd = m.albumList.Update(msg)
	return m, cmd
}

func (m *Model) toggleSelected() {
	item, ok := m.albumList.SelectedItem().(albumItem)
	if !ok {
		return
	}
	if item.id == "" {
		m.status = "This release has no player id and cannot be marked"
		return
	}

	if item.listened {
		delete(m.listened[m.genre], item.id)
	} else {
		if m.listened[m.genre] == nil {
			m.listened[m.genre] = map[string]struct{}{}
		}
		m.listened[m.genre][item.id] = struct{}{}
	}
	m.dirty = true

	// every record sharing the id flips together
	for i, li := range m.albumList.Items() {
		if a, ok := li.(albumItem); ok && a.id == item.id {
			a.listened = !item.listened
			m.albumList.SetItem(i, a)
		}
	}
	m.status = fmt.Sprintf("%d of %d listened", m.listenedIn(m.genre), len(m.collection[m.genre]))
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgOpened:
		data := msg.data.(openedData)
		if data.err != nil {
			m.err = fmt.Errorf("failed to open %s: %w", data.url, data.err)
		} else {
			m.err = nil
			m.status = "Opened " + data.url
		}
	case MsgSaved:
		data := msg.data.(savedData)
		if data.err != nil {
			m.err = fmt.Errorf("failed to save marks: %w", data.err)
		} else {
			m.err = nil
			m.dirty = false
			m.status = fmt.Sprintf("Saved %d listened marks to %s", data.count, data.path)
		}
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case GenreListView:
		m.genreList, cmd = m.genreList.Update(msg)
	case AlbumListView:
		m.albumList, cmd = m.albumList.Update(msg)
	}
	return m, cmd
}

func (m *Model) openURL(url string) tea.Cmd {
	open := m.open
	return func() tea.Msg {
		if open == nil {
			return openedMsg(url, fmt.Errorf("no browser opener configured"))
		}
		return openedMsg(url, open(url))
	}
}

func (m *Model) saveSnapshot() tea.Cmd {
	snapshot := m.Snapshot()
	path, save := m.snapshotPath, m.save
	return func() tea.Msg {
		count := 0
		for _, ids := range snapshot {
			count += len(ids)
		}
		if save == nil || path == "" {
			return savedMsg(path, count, fmt.Errorf("no snapshot path configured"))
		}
		return savedMsg(path, count, save(path, snapshot))
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	var keys []key.Binding
	switch m.view {
	case GenreListView:
		body, keys = m.genreList.View(), m.keys.genreHelp()
	case AlbumListView:
		body, keys = m.albumList.View(), m.keys.albumHelp()
	}

	footer := m.help.ShortHelpView(keys)
	switch {
	case m.err != nil:
		footer = styles.err.Render(m.err.Error()) + "\n" + footer
	case m.confirmQuit:
		footer = styles.warn.Render(m.status) + "\n" + footer
	case m.status != "":
		footer = styles.status.Render(m.status) + "\n" + footer
	}
	return fmt.Sprintf("%s\n\n%s", body, footer)
}
