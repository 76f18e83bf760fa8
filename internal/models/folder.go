package models

import (
	"fmt"
	"strings"
)

// FolderSpec pairs a mailbox path with the genre its messages belong to.
type FolderSpec struct {
	Path  string
	Genre string
}

// ParseFolderSpec parses "path:genre". Without a colon the genre is the last path segment,
// so "Bandcamp/Ambient" feeds "Ambient".
func ParseFolderSpec(s string) (FolderSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FolderSpec{}, fmt.Errorf("empty folder spec")
	}

	if i := strings.Index(s, ":"); i >= 0 {
		path := strings.TrimSpace(s[:i])
		genre := strings.TrimSpace(s[i+1:])
		if path == "" || genre == "" {
			return FolderSpec{}, fmt.Errorf("folder spec %q needs both a path and a genre", s)
		}
		return FolderSpec{Path: path, Genre: genre}, nil
	}

	segments := strings.Split(strings.Trim(s, "/"), "/")
	return FolderSpec{Path: s, Genre: segments[len(segments)-1]}, nil
}

// ParseFolderSpecs parses each spec, failing on the first invalid one.
func ParseFolderSpecs(specs []string) ([]FolderSpec, error) {
	out := make([]FolderSpec, 0, len(specs))
	for _, s := range specs {
		spec, err := ParseFolderSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func (f FolderSpec) String() string {
	return f.Path + ":" + f.Genre
}
