package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/bcx/internal/models"
)

// CacheStats summarizes the message cache.
type CacheStats struct {
	Total    int
	Servers  int
	Accounts int
	Folders  int
	Oldest   *time.Time
	Newest   *time.Time
}

// MessageCacheRepository stores processed emails with their resolved album.
//
// Implements tasks.MessageCache.
type MessageCacheRepository struct {
	db *sql.DB
}

// NewMessageCacheRepository creates a new MessageCacheRepository with the given database connection
func NewMessageCacheRepository(db *sql.DB) *MessageCacheRepository {
	return &MessageCacheRepository{db: db}
}

// Get returns the cached message for key, or nil when the message was never processed.
func (r *MessageCacheRepository) Get(key models.CacheKey) (*models.CachedMessage, error) {
	query := `
		SELECT album_json, processed_at
		FROM cached_messages
		WHERE server = ? AND account = ? AND folder = ? AND message_id = ?
	`

	var (
		albumJSON   string
		processedAt time.Time
	)
	err := r.db.QueryRow(query, key.Server, key.Account, key.Folder, key.MessageID).Scan(&albumJSON, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached message: %w", err)
	}

	msg := &models.CachedMessage{Key: key, ProcessedAt: processedAt}
	if err := json.Unmarshal([]byte(albumJSON), &msg.Album); err != nil {
		return nil, fmt.Errorf("failed to decode cached album %s: %w", key, err)
	}
	return msg, nil
}

// Has reports whether key is cached.
func (r *MessageCacheRepository) Has(key models.CacheKey) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM cached_messages WHERE server = ? AND account = ? AND folder = ? AND message_id = ?`,
		key.Server, key.Account, key.Folder, key.MessageID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check cached message: %w", err)
	}
	return n > 0, nil
}

// Put inserts or replaces a cached message.
func (r *MessageCacheRepository) Put(msg *models.CachedMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if msg.ProcessedAt.IsZero() {
		msg.ProcessedAt = time.Now()
	}

	albumJSON, err := json.Marshal(msg.Album)
	if err != nil {
		return fmt.Errorf("failed to encode album: %w", err)
	}

	query := `
		INSERT INTO cached_messages (server, account, folder, message_id, album_json, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (server, account, folder, message_id)
		DO UPDATE SET album_json = excluded.album_json, processed_at = excluded.processed_at
	`
	k := msg.Key
	if _, err := r.db.Exec(query, k.Server, k.Account, k.Folder, k.MessageID, string(albumJSON), utc(msg.ProcessedAt)); err != nil {
		return fmt.Errorf("failed to cache message: %w", err)
	}
	return nil
}

// Stats counts cached messages and the distinct servers, accounts and folders they came from.
func (r *MessageCacheRepository) Stats() (*CacheStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT server),
			COUNT(DISTINCT server || ':' || account),
			COUNT(DISTINCT server || ':' || account || ':' || folder)
		FROM cached_messages
	`

	stats := &CacheStats{}
	if err := r.db.QueryRow(query).Scan(&stats.Total, &stats.Servers, &stats.Accounts, &stats.Folders); err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	if stats.Total == 0 {
		return stats, nil
	}

	oldest, err := r.edge(false)
	if err != nil {
		return nil, err
	}
	newest, err := r.edge(true)
	if err != nil {
		return nil, err
	}
	stats.Oldest, stats.Newest = oldest, newest
	return stats, nil
}

// edge selects the oldest or newest row; MIN and MAX would lose the column type.
func (r *MessageCacheRepository) edge(newest bool) (*time.Time, error) {
	order := "ASC"
	if newest {
		order = "DESC"
	}
	var t time.Time
	err := r.db.QueryRow(`SELECT processed_at FROM cached_messages ORDER BY processed_at ` + order + ` LIMIT 1`).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache timestamps: %w", err)
	}
	return &t, nil
}

// Prune deletes messages processed more than days ago and returns how many were removed.
func (r *MessageCacheRepository) Prune(days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("prune age must be positive, got %d", days)
	}
	cutoff := utc(time.Now().AddDate(0, 0, -days))

	result, err := r.db.Exec(`DELETE FROM cached_messages WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return result.RowsAffected()
}

// Clear deletes every cached message.
func (r *MessageCacheRepository) Clear() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM cached_messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return result.RowsAffected()
}
