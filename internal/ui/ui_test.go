package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bcx/internal/models"
	tu "github.com/desertthunder/bcx/internal/testing"
)

const prefix = "bandcamp_listened_"

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

type harness struct {
	model  *Model
	opened []string
	saved  []models.ListenedSnapshot
	path   string
}

func newHarness(t *testing.T, snapshot models.ListenedSnapshot) *harness {
	t.Helper()
	h := &harness{}
	h.model = NewModel(Options{
		Collection: models.Collection{
			"Hip Hop": {tu.Album("Hip Hop", "album", "1"), tu.Album("Hip Hop", "album", "2")},
			"Jazz":    {tu.Album("Jazz", "track", "3"), {URL: "https://artist.bandcamp.com/album/none", Subject: "No player"}},
		},
		Snapshot:     snapshot,
		Prefix:       prefix,
		SnapshotPath: "browser_data.json",
		Open: func(url string) error {
			h.opened = append(h.opened, url)
			return nil
		},
		Save: func(path string, s models.ListenedSnapshot) error {
			h.path = path
			h.saved = append(h.saved, s)
			return nil
		},
	})
	h.send(tea.WindowSizeMsg{Width: 100, Height: 40})
	return h
}

// send delivers msg and runs any returned command once, feeding its message back.
func (h *harness) send(msg tea.Msg) tea.Cmd {
	_, cmd := h.model.Update(msg)
	if cmd == nil {
		return nil
	}
	if out, ok := cmd().(Msg); ok {
		h.model.Update(out)
		return nil
	}
	return cmd
}

func TestModel(t *testing.T) {
	t.Run("Lists Genres With Counts", func(t *testing.T) {
		h := newHarness(t, models.ListenedSnapshot{prefix + "Hip_Hop": {"album_2"}})

		items := h.model.genreList.Items()
		if len(items) != 2 {
			t.Fatalf("expected 2 genres, got %d", len(items))
		}
		first := items[0].(genreItem)
		if first.genre != "Hip Hop" || first.total != 2 || first.listened != 1 {
			t.Errorf("unexpected first genre %+v", first)
		}
		if !strings.Contains(h.model.View(), "Bandcamp Genres") {
			t.Error("genre view missing title")
		}
	})

	t.Run("Toggles Listened", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		if h.model.view != AlbumListView || h.model.genre != "Hip Hop" {
			t.Fatalf("expected Hip Hop albums, got view %v genre %q", h.model.view, h.model.genre)
		}

		h.send(runes("l"))
		if !h.model.listened.Has("Hip Hop", "album_1") {
			t.Fatal("expected album_1 marked")
		}
		if !h.model.Dirty() {
			t.Error("expected unsaved changes")
		}
		if item := h.model.albumList.Items()[0].(albumItem); !item.listened {
			t.Error("list item was not updated")
		}

		h.send(runes("l"))
		if h.model.listened.Has("Hip Hop", "album_1") {
			t.Error("expected album_1 unmarked")
		}
	})

	t.Run("Cannot Mark Without Identifier", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send(tea.KeyMsg{Type: tea.KeyDown})
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		if h.model.genre != "Jazz" {
			t.Fatalf("expected Jazz, got %q", h.model.genre)
		}

		h.send(tea.KeyMsg{Type: tea.KeyDown})
		h.send(runes("l"))
		if h.model.Dirty() {
			t.Error("record without an identifier should not be marked")
		}
		if !strings.Contains(h.model.status, "cannot be marked") {
			t.Errorf("unexpected status %q", h.model.status)
		}
	})

	t.Run("Opens URL", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		h.send(runes("o"))

		if len(h.opened) != 1 || h.opened[0] != "https://artist.bandcamp.com/album/1" {
			t.Errorf("unexpected opened urls %v", h.opened)
		}
		if !strings.Contains(h.model.status, "Opened") {
			t.Errorf("unexpected status %q", h.model.status)
		}
	})

	t.Run("Saves Snapshot", func(t *testing.T) {
		h := newHarness(t, models.ListenedSnapshot{prefix + "Polka": {"album_9"}})
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		h.send(runes("l"))
		h.send(runes("s"))

		if len(h.saved) != 1 || h.path != "browser_data.json" {
			t.Fatalf("expected one save to browser_data.json, got %d to %q", len(h.saved), h.path)
		}
		s := h.saved[0]
		if ids := s[prefix+"Hip_Hop"]; len(ids) != 1 || ids[0] != "album_1" {
			t.Errorf("unexpected Hip Hop marks %v", ids)
		}
		if ids := s[prefix+"Polka"]; len(ids) != 1 {
			t.Error("marks for unknown genres should be kept")
		}
		if h.model.Dirty() {
			t.Error("expected clean state after save")
		}
	})

	t.Run("Accepts Exact Genre Keys", func(t *testing.T) {
		h := newHarness(t, models.ListenedSnapshot{prefix + "Hip Hop": {"album_1"}})
		if !h.model.listened.Has("Hip Hop", "album_1") {
			t.Fatal("exact key should resolve to the genre")
		}
		if _, ok := h.model.Snapshot()[prefix+"Hip_Hop"]; !ok {
			t.Error("expected marks saved under the storage key")
		}
	})

	t.Run("Save Error", func(t *testing.T) {
		h := newHarness(t, nil)
		h.model.save = func(string, models.ListenedSnapshot) error { return errors.New("disk full") }
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		h.send(runes("l"))
		h.send(runes("s"))

		if !h.model.Dirty() {
			t.Error("failed save should leave changes pending")
		}
		if !strings.Contains(h.model.View(), "disk full") {
			t.Error("error not rendered")
		}
	})

	t.Run("Confirms Quit With Unsaved Marks", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		h.send(runes("l"))

		if cmd := h.send(runes("q")); cmd != nil {
			t.Fatal("first quit should ask for confirmation")
		}
		if !h.model.confirmQuit {
			t.Error("expected confirmation state")
		}
		_, cmd := h.model.Update(runes("q"))
		if cmd == nil {
			t.Fatal("second quit should exit")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})

	t.Run("Back Refreshes Counts", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
		h.send(runes("l"))
		h.send(tea.KeyMsg{Type: tea.KeyEsc})

		if h.model.view != GenreListView {
			t.Fatal("expected genre view")
		}
		if item := h.model.genreList.Items()[0].(genreItem); item.listened != 1 {
			t.Errorf("expected 1 listened, got %d", item.listened)
		}
	})
}
