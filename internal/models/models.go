package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for persistent rows.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

var (
	_ Model = (*CachedMessage)(nil)
	_ Model = (*TrackedAlbum)(nil)
	_ Model = (*SyncRun)(nil)
)

// CacheKey identifies a processed email across servers and accounts.
type CacheKey struct {
	Server    string
	Account   string
	Folder    string
	MessageID string
}

// String renders the key as server:account:folder:message-id.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Server, k.Account, k.Folder, k.MessageID)
}

// CachedMessage is an email whose album has already been resolved.
type CachedMessage struct {
	Key         CacheKey
	Album       Album
	ProcessedAt time.Time
}

func (m *CachedMessage) ID() string           { return m.Key.String() }
func (m *CachedMessage) CreatedAt() time.Time { return m.ProcessedAt }
func (m *CachedMessage) UpdatedAt() time.Time { return m.ProcessedAt }

func (m *CachedMessage) Validate() error {
	if m.Key.Server == "" || m.Key.Account == "" || m.Key.Folder == "" {
		return fmt.Errorf("cache key requires server, account and folder")
	}
	if m.Key.MessageID == "" {
		return fmt.Errorf("cache key requires a message id")
	}
	return nil
}

// TrackStatus is the lifecycle state of a [TrackedAlbum].
type TrackStatus string

const (
	TrackActive  TrackStatus = "active"
	TrackRemoved TrackStatus = "removed"
)

// TrackedAlbum records when an album entered and left a genre.
type TrackedAlbum struct {
	Genre     string
	AlbumID   string
	URL       string
	Status    TrackStatus
	AddedAt   time.Time
	RemovedAt *time.Time
}

func (t *TrackedAlbum) ID() string           { return t.Genre + ":" + t.AlbumID }
func (t *TrackedAlbum) CreatedAt() time.Time { return t.AddedAt }

func (t *TrackedAlbum) UpdatedAt() time.Time {
	if t.RemovedAt != nil {
		return *t.RemovedAt
	}
	return t.AddedAt
}

func (t *TrackedAlbum) Validate() error {
	if t.Genre == "" {
		return fmt.Errorf("tracked album requires a genre")
	}
	if t.AlbumID == "" {
		return fmt.Errorf("tracked album requires an album id")
	}
	switch t.Status {
	case TrackActive, TrackRemoved:
		return nil
	default:
		return fmt.Errorf("unknown track status %q", t.Status)
	}
}

// SyncRun is one execution of the sync command.
type SyncRun struct {
	RunID      string
	InputPath  string
	OutputPath string
	Fetched    bool
	Kept       int
	Added      int
	Removed    int
	Total      int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *SyncRun) ID() string           { return r.RunID }
func (r *SyncRun) CreatedAt() time.Time { return r.StartedAt }
func (r *SyncRun) UpdatedAt() time.Time { return r.FinishedAt }

func (r *SyncRun) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("sync run requires an id")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("sync run finished before it started")
	}
	if r.Kept+r.Added > r.Total {
		return fmt.Errorf("sync run totals do not add up: %d kept + %d added > %d", r.Kept, r.Added, r.Total)
	}
	return nil
}
