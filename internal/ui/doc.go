// Package ui implements the terminal collection browser using bubbletea's Elm architecture.
//
// The browser has two views:
//  1. [GenreListView] : genres with release and listened counts
//  2. [AlbumListView] : the releases of one genre, newest first as stored
//
// Toggling a release marks its player identifier listened in that genre. Saving writes the marks
// in the same shape the generated site's sync tools export, so the file can be passed straight to
// `bcx sync --listened`. Browser and URL opening are injected through [Options] so the model can
// be driven in tests without side effects.
package ui
