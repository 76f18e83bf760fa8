package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/bcx/internal/models"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// TrackerRepository remembers which albums entered each genre and which the user removed,
// so listened albums stay out of the collection after the browser snapshot is cleared.
type TrackerRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTrackerRepository creates a new TrackerRepository with the given database connection
func NewTrackerRepository(db *sql.DB) *TrackerRepository {
	return &TrackerRepository{db: db, now: time.Now}
}

// MarkAdded records an album as active in genre. Known albums keep their original row.
func (r *TrackerRepository) MarkAdded(genre, albumID, url string) error {
	return r.markAdded(r.db, genre, albumID, url)
}

func (r *TrackerRepository) markAdded(ex execer, genre, albumID, url string) error {
	album := &models.TrackedAlbum{Genre: genre, AlbumID: albumID, URL: url, Status: models.TrackActive, AddedAt: r.now()}
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := ex.Exec(`
		INSERT INTO tracked_albums (genre, album_id, url, status, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (genre, album_id) DO NOTHING
	`, album.Genre, album.AlbumID, album.URL, string(album.Status), utc(album.AddedAt))
	if err != nil {
		return fmt.Errorf("failed to track album: %w", err)
	}
	return nil
}

// MarkRemoved records an album as removed from genre, creating the row when the album was
// never tracked as added.
func (r *TrackerRepository) MarkRemoved(genre, albumID string) error {
	return r.markRemoved(r.db, genre, albumID)
}

func (r *TrackerRepository) markRemoved(ex execer, genre, albumID string) error {
	if genre == "" || albumID == "" {
		return fmt.Errorf("validation failed: genre and album id are required")
	}
	now := utc(r.now())

	_, err := ex.Exec(`
		INSERT INTO tracked_albums (genre, album_id, status, added_at, removed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (genre, album_id)
		DO UPDATE SET status = excluded.status, removed_at = excluded.removed_at
	`, genre, albumID, string(models.TrackRemoved), now, now)
	if err != nil {
		return fmt.Errorf("failed to mark album removed: %w", err)
	}
	return nil
}

// Apply records one sync outcome in a single transaction. urls maps album ids to page URLs
// for the added albums.
func (r *TrackerRepository) Apply(added, removed map[string][]string, urls map[string]string) error {
	return inTx(r.db, func(tx *sql.Tx) error {
		for genre, ids := range added {
			for _, id := range ids {
				if err := r.markAdded(tx, genre, id, urls[id]); err != nil {
					return err
				}
			}
		}
		for genre, ids := range removed {
			for _, id := range ids {
				if err := r.markRemoved(tx, genre, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Get returns the tracked album, or [ErrNoRows].
func (r *TrackerRepository) Get(genre, albumID string) (*models.TrackedAlbum, error) {
	var (
		album     = &models.TrackedAlbum{Genre: genre, AlbumID: albumID}
		status    string
		removedAt sql.NullTime
	)
	err := r.db.QueryRow(
		`SELECT url, status, added_at, removed_at FROM tracked_albums WHERE genre = ? AND album_id = ?`,
		genre, albumID,
	).Scan(&album.URL, &status, &album.AddedAt, &removedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoRows, albumID, genre)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked album: %w", err)
	}

	album.Status = models.TrackStatus(status)
	if removedAt.Valid {
		album.RemovedAt = &removedAt.Time
	}
	return album, nil
}

// WasRemoved reports whether the user removed albumID from genre in an earlier run.
func (r *TrackerRepository) WasRemoved(genre, albumID string) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM tracked_albums WHERE genre = ? AND album_id = ? AND status = ?`,
		genre, albumID, string(models.TrackRemoved),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check tracked album: %w", err)
	}
	return n > 0, nil
}

// RemovedIDs returns every removed album id grouped by genre, sorted.
func (r *TrackerRepository) RemovedIDs() (map[string][]string, error) {
	rows, err := r.db.Query(
		`SELECT genre, album_id FROM tracked_albums WHERE status = ? ORDER BY genre, album_id`,
		string(models.TrackRemoved),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list removed albums: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var genre, id string
		if err := rows.Scan(&genre, &id); err != nil {
			return nil, fmt.Errorf("failed to scan removed album: %w", err)
		}
		out[genre] = append(out[genre], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate removed albums: %w", err)
	}
	return out, nil
}

// ActiveCount counts active albums in genre, or in every genre when genre is empty.
func (r *TrackerRepository) ActiveCount(genre string) (int, error) {
	query := `SELECT COUNT(*) FROM tracked_albums WHERE status = ?`
	args := []any{string(models.TrackActive)}
	if genre != "" {
		query += ` AND genre = ?`
		args = append(args, genre)
	}

	var n int
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active albums: %w", err)
	}
	return n, nil
}

// Genres returns the tracked genres, sorted.
func (r *TrackerRepository) Genres() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT genre FROM tracked_albums`)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()

	var genres []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres, rows.Err()
}
