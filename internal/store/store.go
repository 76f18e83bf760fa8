// Package store reads and writes the JSON documents exchanged between bcx commands:
// the collection document and the listened snapshot exported from the generated site.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
)

// LoadCollection reads and parses the collection document at path.
func LoadCollection(path string) (models.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", path, err)
	}
	c, err := ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCollection decodes a collection document. The top level must be an object of arrays.
func ParseCollection(data []byte) (models.Collection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top level must be a JSON object", shared.ErrMalformedDocument)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedDocument, err)
	}

	c := make(models.Collection, len(raw))
	for genre, value := range raw {
		var albums []models.Album
		if err := json.Unmarshal(value, &albums); err != nil {
			return nil, fmt.Errorf("%w: genre %q: %v", shared.ErrMalformedDocument, genre, err)
		}
		if albums == nil {
			albums = []models.Album{}
		}
		c[genre] = albums
	}
	return c, nil
}

// SaveCollection writes the collection atomically with two-space indentation.
func SaveCollection(path string, c models.Collection) error {
	if c == nil {
		c = models.Collection{}
	}
	data, err := shared.MarshalJSON(c, true)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	return shared.WriteFileAtomic(path, data, 0644)
}

// LoadSnapshot reads and parses the listened snapshot at path.
func LoadSnapshot(path, prefix string) (models.ListenedSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	s, err := ParseSnapshot(data, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSnapshot decodes a listened snapshot.
//
// Keys without prefix belong to unrelated local storage entries and are ignored whatever their
// value. Prefixed values are either arrays of identifiers or, as browsers store them, strings
// holding a JSON array.
func ParseSnapshot(data []byte, prefix string) (models.ListenedSnapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top level must be a JSON object", shared.ErrMalformedSnapshot)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedSnapshot, err)
	}

	s := models.ListenedSnapshot{}
	for key, value := range raw {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		ids, err := decodeIDs(value)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", shared.ErrMalformedSnapshot, key, err)
		}
		s[key] = ids
	}
	return s, nil
}

func decodeIDs(value json.RawMessage) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(value, &ids); err == nil {
		if ids == nil {
			ids = []string{}
		}
		return ids, nil
	}

	var encoded string
	if err := json.Unmarshal(value, &encoded); err != nil {
		return nil, fmt.Errorf("expected an array of identifiers")
	}
	if encoded == "" {
		return []string{}, nil
	}
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, fmt.Errorf("string value is not a JSON array of identifiers")
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SaveSnapshot writes a snapshot in the array form accepted by [ParseSnapshot].
func SaveSnapshot(path string, s models.ListenedSnapshot) error {
	data, err := shared.MarshalJSON(s, true)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return shared.WriteFileAtomic(path, data, 0644)
}
