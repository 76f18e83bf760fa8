package tasks

import (
	"sort"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
)

// KeyTable maps listened snapshot keys back to collection genres.
//
// Each genre registers two keys: prefix+genre and prefix+SanitizeGenre(genre). The generated site
// writes the sanitized form; the exact form is accepted for hand-written snapshots. Genre names
// are matched case-sensitively. When two genres claim the same key, the exact registration wins,
// then the lexically first genre.
type KeyTable struct {
	prefix string
	byKey  map[string]string
}

// NewKeyTable builds the lookup table for genres.
func NewKeyTable(prefix string, genres []string) KeyTable {
	sorted := append([]string(nil), genres...)
	sort.Strings(sorted)

	t := KeyTable{prefix: prefix, byKey: make(map[string]string, len(sorted)*2)}
	for _, g := range sorted {
		if _, taken := t.byKey[prefix+g]; !taken {
			t.byKey[prefix+g] = g
		}
	}
	for _, g := range sorted {
		key := t.StorageKey(g)
		if _, taken := t.byKey[key]; !taken {
			t.byKey[key] = g
		}
	}
	return t
}

// Genre resolves a snapshot key.
func (t KeyTable) Genre(key string) (string, bool) {
	g, ok := t.byKey[key]
	return g, ok
}

// StorageKey is the key the generated site uses for genre.
func (t KeyTable) StorageKey(genre string) string {
	return t.prefix + shared.SanitizeGenre(genre)
}

// Prefix returns the key prefix.
func (t KeyTable) Prefix() string { return t.prefix }

// ListenedSet holds listened identifiers grouped by genre.
type ListenedSet map[string]map[string]struct{}

// Has reports whether id was marked listened in genre.
func (l ListenedSet) Has(genre, id string) bool {
	_, ok := l[genre][id]
	return ok
}

// ListenedSetFrom builds a set from identifiers grouped by genre, as returned by the tracker.
func ListenedSetFrom(ids map[string][]string) ListenedSet {
	set := ListenedSet{}
	for genre, list := range ids {
		for _, id := range list {
			set.add(genre, id)
		}
	}
	return set
}

func (l ListenedSet) add(genre, id string) {
	if l[genre] == nil {
		l[genre] = map[string]struct{}{}
	}
	l[genre][id] = struct{}{}
}

// Resolve groups the snapshot's identifiers by genre. It returns the keys that matched no genre
// and, per genre, the keys that resolved to it.
func (t KeyTable) Resolve(snapshot models.ListenedSnapshot) (set ListenedSet, unmatched []string, matched map[string][]string) {
	set = ListenedSet{}
	matched = map[string][]string{}
	for _, key := range snapshot.Keys(t.prefix) {
		genre, ok := t.Genre(key)
		if !ok {
			unmatched = append(unmatched, key)
			continue
		}
		matched[genre] = append(matched[genre], key)
		for _, id := range snapshot[key] {
			set.add(genre, id)
		}
	}
	return set, unmatched, matched
}
