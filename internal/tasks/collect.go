package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/services"
	"github.com/desertthunder/bcx/internal/shared"
	"golang.org/x/sync/errgroup"
)

// MailSource lists and flags notification emails.
type MailSource interface {
	Account() (server, username string)
	Fetch(ctx context.Context, folder string, filter services.Filter) ([]services.Message, error)
	MarkSeen(ctx context.Context, folder string, uids []uint32) error
	Delete(ctx context.Context, folder string, uids []uint32) error
}

// EmbedResolver turns a Bandcamp page URL into embeddable player markup.
type EmbedResolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// MessageCache remembers emails whose album was already resolved.
// Get returns nil without error when the key is unknown.
type MessageCache interface {
	Get(key models.CacheKey) (*models.CachedMessage, error)
	Put(msg *models.CachedMessage) error
}

// RecordError describes one message that could not become an album.
type RecordError struct {
	Folder  string
	UID     uint32
	Subject string
	URL     string
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s uid %d (%q): %v", e.Folder, e.UID, e.Subject, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// FolderError records a folder that could not be fetched.
type FolderError struct {
	Spec models.FolderSpec
	Err  error
}

func (e *FolderError) Error() string { return fmt.Sprintf("%s: %v", e.Spec.Path, e.Err) }
func (e *FolderError) Unwrap() error { return e.Err }

// CollectOpts configures a collection run.
type CollectOpts struct {
	Filter  services.Filter
	NoCache bool // ignore and do not populate the message cache
	Workers int  // concurrent embed resolutions (default 4, max 16)
}

// SettleOpts says what happens to processed messages once their albums are stored.
type SettleOpts struct {
	MarkSeen bool // flag processed messages \Seen
	Delete   bool // flag processed messages \Deleted and expunge them
}

// Processed lists the UIDs in one folder whose messages became albums.
type Processed struct {
	Folder string
	UIDs   []uint32
}

// CollectResult is the outcome of [Collector.Collect], completed by [Collector.Settle].
type CollectResult struct {
	Albums       []models.Album
	Processed    []Processed
	Messages     int
	Cached       int
	Resolved     int
	NoLink       int
	Marked       int
	Deleted      int
	Failures     []*RecordError
	FolderErrors []*FolderError
	MarkErrors   []error
	DeleteErrors []error
}

// Collection groups the albums by genre, newest first.
func (r *CollectResult) Collection() models.Collection {
	c := models.Collection{}
	for _, a := range r.Albums {
		c[a.Genre] = append(c[a.Genre], a)
	}
	for g := range c {
		models.SortNewestFirst(c[g])
	}
	return c
}

// Collector turns mailbox folders into album records.
type Collector struct {
	source   MailSource
	resolver EmbedResolver
	cache    MessageCache
	now      func() time.Time
}

// NewCollector creates a Collector. cache may be nil.
func NewCollector(source MailSource, resolver EmbedResolver, cache MessageCache) *Collector {
	return &Collector{source: source, resolver: resolver, cache: cache, now: time.Now}
}

// sendProgress sends a progress update through the channel without blocking.
func (c *Collector) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

type pendingMessage struct {
	msg  services.Message
	key  models.CacheKey
	link string
}

// Collect fetches every folder in turn. Failures of single messages or folders are recorded in
// the result; the call itself fails only when the context ends or no folder could be read.
// Messages are left untouched on the server; see [Collector.Settle].
func (c *Collector) Collect(ctx context.Context, progress chan<- ProgressUpdate, folders []models.FolderSpec, opts CollectOpts) (*CollectResult, error) {
	if c.source == nil || c.resolver == nil {
		return nil, fmt.Errorf("%w: collector needs a mail source and an embed resolver", shared.ErrMailSource)
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("%w: no folders given", shared.ErrMissingArgument)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Workers > 16 {
		opts.Workers = 16
	}

	result := &CollectResult{}
	for i, spec := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.sendProgress(progress, fetchFolderUpdate(i+1, len(folders), spec))
		if err := c.collectFolder(ctx, progress, spec, opts, result); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.FolderErrors = append(result.FolderErrors, &FolderError{Spec: spec, Err: err})
			c.sendProgress(progress, folderFailedUpdate(i+1, len(folders), spec, err))
		}
	}

	if len(result.FolderErrors) == len(folders) {
		errs := make([]error, 0, len(result.FolderErrors))
		for _, fe := range result.FolderErrors {
			errs = append(errs, fe)
		}
		return result, fmt.Errorf("%w: every folder failed: %w", shared.ErrMailSource, errors.Join(errs...))
	}

	c.sendProgress(progress, collectDoneUpdate(result))
	return result, nil
}

func (c *Collector) collectFolder(ctx context.Context, progress chan<- ProgressUpdate, spec models.FolderSpec, opts CollectOpts, result *CollectResult) error {
	messages, err := c.source.Fetch(ctx, spec.Path, opts.Filter)
	if err != nil {
		return err
	}
	result.Messages += len(messages)

	server, account := c.source.Account()
	var pending []pendingMessage
	var processed []uint32

	for _, msg := range messages {
		if msg.Err != nil {
			result.Failures = append(result.Failures, &RecordError{
				Folder: spec.Path, UID: msg.UID, Subject: msg.Subject, Err: msg.Err,
			})
			continue
		}

		key := models.CacheKey{Server: server, Account: account, Folder: spec.Path, MessageID: messageKey(msg)}

		if !opts.NoCache && c.cache != nil {
			if cached, err := c.cache.Get(key); err == nil && cached != nil {
				album := cached.Album
				album.Folder, album.Genre = spec.Path, spec.Genre
				result.Albums = append(result.Albums, album)
				result.Cached++
				processed = append(processed, msg.UID)
				continue
			}
		}

		link, ok := services.ExtractBandcampLink(msg.Body)
		if !ok {
			result.NoLink++
			continue
		}
		pending = append(pending, pendingMessage{msg: msg, key: key, link: link})
	}

	embeds := make([]string, len(pending))
	errs := make([]error, len(pending))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, p := range pending {
		g.Go(func() error {
			embed, err := c.resolver.Resolve(gctx, p.link)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			embeds[i], errs[i] = embed, err

			mu.Lock()
			done++
			step := done
			mu.Unlock()
			c.sendProgress(progress, resolveEmbedUpdate(step, len(pending), p.link))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range pending {
		if errs[i] != nil {
			result.Failures = append(result.Failures, &RecordError{
				Folder: spec.Path, UID: p.msg.UID, Subject: p.msg.Subject, URL: p.link, Err: errs[i],
			})
			continue
		}

		album := newAlbum(p.msg, p.link, embeds[i], spec)
		result.Albums = append(result.Albums, album)
		result.Resolved++
		processed = append(processed, p.msg.UID)

		if !opts.NoCache && c.cache != nil {
			if err := c.cache.Put(&models.CachedMessage{Key: p.key, Album: album, ProcessedAt: c.now()}); err != nil {
				result.Failures = append(result.Failures, &RecordError{
					Folder: spec.Path, UID: p.msg.UID, Subject: p.msg.Subject, URL: p.link, Err: fmt.Errorf("cache write: %w", err),
				})
			}
		}
	}

	if len(processed) > 0 {
		result.Processed = append(result.Processed, Processed{Folder: spec.Path, UIDs: processed})
	}
	return nil
}

// Settle marks or deletes the messages recorded in result.Processed. Call it only once the
// albums are stored, so an aborted run leaves its messages to be fetched again. Server
// failures are recorded in result; the call fails only when the context ends.
func (c *Collector) Settle(ctx context.Context, progress chan<- ProgressUpdate, result *CollectResult, opts SettleOpts) error {
	if result == nil || (!opts.MarkSeen && !opts.Delete) {
		return nil
	}

	for _, p := range result.Processed {
		if err := ctx.Err(); err != nil {
			return err
		}

		if opts.MarkSeen {
			if err := c.source.MarkSeen(ctx, p.Folder, p.UIDs); err != nil {
				result.MarkErrors = append(result.MarkErrors, fmt.Errorf("%s: %w", p.Folder, err))
			} else {
				result.Marked += len(p.UIDs)
				c.sendProgress(progress, markSeenUpdate(len(p.UIDs), p.Folder))
			}
		}

		if opts.Delete {
			if err := c.source.Delete(ctx, p.Folder, p.UIDs); err != nil {
				result.DeleteErrors = append(result.DeleteErrors, fmt.Errorf("%s: %w", p.Folder, err))
			} else {
				result.Deleted += len(p.UIDs)
				c.sendProgress(progress, deleteUpdate(len(p.UIDs), p.Folder))
			}
		}
	}
	return ctx.Err()
}

// messageKey prefers the Message-ID header, which survives folder moves, over the UID.
func messageKey(msg services.Message) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	return "uid:" + strconv.FormatUint(uint64(msg.UID), 10)
}

func newAlbum(msg services.Message, link, embed string, spec models.FolderSpec) models.Album {
	album := models.Album{
		URL:       link,
		Embed:     embed,
		Subject:   msg.Subject,
		Date:      msg.RawDate,
		Sender:    msg.From,
		EmailID:   strconv.FormatUint(uint64(msg.UID), 10),
		MessageID: msg.MessageID,
		Folder:    spec.Path,
		Genre:     spec.Genre,
	}
	if !msg.Date.IsZero() {
		album.Date = msg.Date.Format(time.RFC1123Z)
		album.DateISO = msg.Date.Format(time.RFC3339)
	}
	return album
}
