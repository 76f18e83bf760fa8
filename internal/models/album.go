package models

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	albumIDPattern = regexp.MustCompile(`album=(\d+)`)
	trackIDPattern = regexp.MustCompile(`track=(\d+)`)
)

// Album is a single release announced by a Bandcamp notification email.
type Album struct {
	URL       string `json:"url"`
	Embed     string `json:"embed"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
	Sender    string `json:"sender"`
	EmailID   string `json:"email_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Folder    string `json:"folder,omitempty"`
	Genre     string `json:"genre,omitempty"`
	DateISO   string `json:"date_obj,omitempty"` // RFC 3339 copy of Date
}

// ExtractBandcampID derives the stable identifier of a release from its embed markup.
//
// Album players yield "album_<n>" and track players "track_<n>". Album ids win when both are present.
func ExtractBandcampID(embed string) (string, bool) {
	if m := albumIDPattern.FindStringSubmatch(embed); m != nil {
		return "album_" + m[1], true
	}
	if m := trackIDPattern.FindStringSubmatch(embed); m != nil {
		return "track_" + m[1], true
	}
	return "", false
}

// Identifier returns the album's stable identifier, if its embed carries one.
func (a Album) Identifier() (string, bool) {
	return ExtractBandcampID(a.Embed)
}

// PublishedAt parses the mail date, falling back to the ISO copy. The zero time is returned when neither parses.
func (a Album) PublishedAt() time.Time {
	if a.Date != "" {
		if t, err := mail.ParseDate(a.Date); err == nil {
			return t
		}
	}
	if a.DateISO != "" {
		if t, err := time.Parse(time.RFC3339, a.DateISO); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Collection maps a genre name to its ordered album records.
type Collection map[string][]Album

// Genres returns the collection's genre names in sorted order.
func (c Collection) Genres() []string {
	genres := make([]string, 0, len(c))
	for g := range c {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres
}

// Total counts records across all genres.
func (c Collection) Total() int {
	n := 0
	for _, albums := range c {
		n += len(albums)
	}
	return n
}

// Clone copies the collection so callers can mutate the result freely.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for g, albums := range c {
		out[g] = append([]Album(nil), albums...)
	}
	return out
}

// SortNewestFirst orders albums by publication date, newest first. Undated records sink to the end.
func SortNewestFirst(albums []Album) {
	sort.SliceStable(albums, func(i, j int) bool {
		return albums[i].PublishedAt().After(albums[j].PublishedAt())
	})
}

// ListenedSnapshot is the browser export: storage key to listened identifiers.
type ListenedSnapshot map[string][]string

// Keys returns the snapshot keys having the given prefix, sorted.
func (s ListenedSnapshot) Keys(prefix string) []string {
	keys := []string{}
	for k := range s {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
