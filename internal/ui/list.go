package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/bcx/internal/models"
)

var (
	_ list.Item = genreItem{}
	_ list.Item = albumItem{}
)

// genreItem is one genre row with its listened progress.
type genreItem struct {
	genre    string
	total    int
	listened int
}

func (i genreItem) FilterValue() string { return i.genre }
func (i genreItem) Title() string       { return i.genre }
func (i genreItem) Description() string {
	return fmt.Sprintf("%d releases • %d listened", i.total, i.listened)
}

// albumItem wraps [models.Album] to implement [list.Item].
type albumItem struct {
	album    models.Album
	id       string
	listened bool
}

func (i albumItem) FilterValue() string { return i.album.Subject }
func (i albumItem) Title() string {
	title := i.album.Subject
	if title == "" {
		title = i.album.URL
	}
	if i.listened {
		return styles.listened.Render("✓ " + title)
	}
	return title
}

func (i albumItem) Description() string {
	desc := i.album.URL
	if i.album.Date != "" {
		desc = fmt.Sprintf("%s • %s", i.album.Date, desc)
	}
	if i.id == "" {
		desc += " • no player id"
	}
	return desc
}
