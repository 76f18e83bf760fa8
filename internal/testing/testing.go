// Package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/services"
)

// Album builds a record whose embed yields the identifier "<kind>_<id>".
func Album(genre, kind, id string) models.Album {
	return models.Album{
		URL:     fmt.Sprintf("https://artist.bandcamp.com/%s/%s", kind, id),
		Embed:   services.BuildEmbed(kind, id),
		Subject: "Release " + id,
		Date:    "Mon, 02 Jan 2006 15:04:05 +0000",
		Sender:  "Bandcamp",
		Genre:   genre,
	}
}

// MockMailbox is a test double for [services.Mailbox] serving canned messages per folder.
type MockMailbox struct {
	Server   string
	Username string
	Folders  map[string][]services.Message
	Errs     map[string]error // Fetch error per folder
	MarkErr   error
	DeleteErr error

	mu      sync.Mutex
	Marked  map[string][]uint32
	Deleted map[string][]uint32
	Filters []services.Filter
	Closed  bool
}

func NewMockMailbox(folders map[string][]services.Message) *MockMailbox {
	return &MockMailbox{
		Server:   "imap.example.com",
		Username: "me@example.com",
		Folders:  folders,
		Errs:     map[string]error{},
		Marked:   map[string][]uint32{},
		Deleted:  map[string][]uint32{},
	}
}

func (m *MockMailbox) Account() (string, string) { return m.Server, m.Username }

func (m *MockMailbox) ListFolders(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.Folders))
	for name := range m.Folders {
		names = append(names, name)
	}
	return names, nil
}

func (m *MockMailbox) Fetch(ctx context.Context, folder string, filter services.Filter) ([]services.Message, error) {
	m.mu.Lock()
	m.Filters = append(m.Filters, filter)
	m.mu.Unlock()

	if err := m.Errs[folder]; err != nil {
		return nil, err
	}
	msgs, ok := m.Folders[folder]
	if !ok {
		return nil, fmt.Errorf("no such folder %s", folder)
	}
	return msgs, nil
}

func (m *MockMailbox) MarkSeen(ctx context.Context, folder string, uids []uint32) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Marked[folder] = append(m.Marked[folder], uids...)
	return nil
}

func (m *MockMailbox) Delete(ctx context.Context, folder string, uids []uint32) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted[folder] = append(m.Deleted[folder], uids...)
	return nil
}

func (m *MockMailbox) Close() error {
	m.Closed = true
	return nil
}

// MockResolver is a test double for embed resolution keyed by page URL.
type MockResolver struct {
	Embeds map[string]string
	Errs   map[string]error

	mu    sync.Mutex
	Calls []string
}

func NewMockResolver() *MockResolver {
	return &MockResolver{Embeds: map[string]string{}, Errs: map[string]error{}}
}

func (r *MockResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, pageURL)
	r.mu.Unlock()

	if err := r.Errs[pageURL]; err != nil {
		return "", err
	}
	if embed, ok := r.Embeds[pageURL]; ok {
		return embed, nil
	}
	return "", errors.New("unexpected url " + pageURL)
}

// MemoryCache is an in-memory message cache.
type MemoryCache struct {
	mu    sync.Mutex
	Items map[string]*models.CachedMessage
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{Items: map[string]*models.CachedMessage{}}
}

func (c *MemoryCache) Get(key models.CacheKey) (*models.CachedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Items[key.String()], nil
}

func (c *MemoryCache) Put(msg *models.CachedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Items[msg.Key.String()] = msg
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}
