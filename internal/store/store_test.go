package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
	tu "github.com/desertthunder/bcx/internal/testing"
)

const prefix = "bandcamp_listened_"

func TestCollectionDocuments(t *testing.T) {
	t.Run("ParseCollection", func(t *testing.T) {
		data := []byte(`{
			"Rock": [{"url": "https://a.bandcamp.com/album/x", "embed": "album=1", "subject": "New", "date": "Mon, 01 Jan 2024 10:00:00 +0000", "sender": "Bandcamp"}],
			"Jazz": [],
			"Empty": null
		}`)
		c, err := ParseCollection(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(c) != 3 || len(c["Rock"]) != 1 || c["Rock"][0].Subject != "New" {
			t.Errorf("unexpected collection %+v", c)
		}
		if c["Empty"] == nil {
			t.Error("null genres should decode to an empty slice")
		}
	})

	t.Run("ParseCollection malformed", func(t *testing.T) {
		for name, doc := range map[string]string{
			"empty":           "",
			"array":           `[{"url": "x"}]`,
			"null":            "null",
			"genre not array": `{"Rock": {"url": "x"}}`,
			"record not obj":  `{"Rock": ["x"]}`,
			"truncated":       `{"Rock": [`,
		} {
			t.Run(name, func(t *testing.T) {
				if _, err := ParseCollection([]byte(doc)); !errors.Is(err, shared.ErrMalformedDocument) {
					t.Errorf("expected ErrMalformedDocument, got %v", err)
				}
			})
		}
	})

	t.Run("Save and Load round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bandcamp_data.json")
		embed := `<iframe src="https://bandcamp.com/EmbeddedPlayer/album=9/size=large/" seamless></iframe>`
		want := models.Collection{"Rock": {{URL: "https://a.bandcamp.com/album/x", Embed: embed, Genre: "Rock"}}}

		if err := SaveCollection(path, want); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		content := tu.MustReadFile(t, path)
		if !strings.Contains(content, `<iframe src=\"https://bandcamp.com`) {
			t.Errorf("embed markup should be written unescaped: %s", content)
		}

		got, err := LoadCollection(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got["Rock"][0].Embed != embed {
			t.Errorf("embed changed across round trip: %q", got["Rock"][0].Embed)
		}
	})

	t.Run("SaveCollection nil writes empty object", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		if err := SaveCollection(path, nil); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if strings.TrimSpace(tu.MustReadFile(t, path)) != "{}" {
			t.Error("expected empty object")
		}
	})

	t.Run("LoadCollection missing file", func(t *testing.T) {
		if _, err := LoadCollection(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestSnapshotDocuments(t *testing.T) {
	t.Run("ParseSnapshot accepts arrays and encoded strings", func(t *testing.T) {
		data := []byte(`{
			"bandcamp_listened_Rock": ["album_1", "track_2"],
			"bandcamp_listened_Jazz": "[\"album_3\"]",
			"bandcamp_listened_Ambient": "",
			"theme": {"dark": true}
		}`)
		s, err := ParseSnapshot(data, prefix)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(s) != 3 {
			t.Fatalf("expected 3 prefixed keys, got %v", s)
		}
		if len(s["bandcamp_listened_Rock"]) != 2 || s["bandcamp_listened_Jazz"][0] != "album_3" {
			t.Errorf("unexpected values %v", s)
		}
		if s["bandcamp_listened_Ambient"] == nil || len(s["bandcamp_listened_Ambient"]) != 0 {
			t.Errorf("empty string should decode to an empty list")
		}
		if _, ok := s["theme"]; ok {
			t.Error("unprefixed keys must be ignored")
		}
	})

	t.Run("ParseSnapshot malformed", func(t *testing.T) {
		for name, doc := range map[string]string{
			"not object":     `["album_1"]`,
			"number value":   `{"bandcamp_listened_Rock": 4}`,
			"numeric ids":    `{"bandcamp_listened_Rock": [1, 2]}`,
			"bad string":     `{"bandcamp_listened_Rock": "album_1"}`,
			"invalid syntax": `{"bandcamp_listened_Rock": [}`,
		} {
			t.Run(name, func(t *testing.T) {
				if _, err := ParseSnapshot([]byte(doc), prefix); !errors.Is(err, shared.ErrMalformedSnapshot) {
					t.Errorf("expected ErrMalformedSnapshot, got %v", err)
				}
			})
		}
	})

	t.Run("Save and Load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "browser_data.json")
		want := models.ListenedSnapshot{"bandcamp_listened_Rock": {"album_1"}}
		if err := SaveSnapshot(path, want); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		got, err := LoadSnapshot(path, prefix)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(got["bandcamp_listened_Rock"]) != 1 {
			t.Errorf("unexpected snapshot %v", got)
		}
	})

	t.Run("LoadSnapshot reports path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		os.WriteFile(path, []byte("nope"), 0644)
		_, err := LoadSnapshot(path, prefix)
		if err == nil || !strings.Contains(err.Error(), "bad.json") {
			t.Errorf("expected error mentioning the file, got %v", err)
		}
	})
}
