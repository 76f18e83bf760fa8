package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/desertthunder/bcx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	embedPlayerURL = "https://bandcamp.com/EmbeddedPlayer/%s=%s/size=large/bgcol=333333/linkcol=9a64ff/tracklist=false/artwork=small/transparent=true/"
	embedIframe    = `<iframe style="border: 0; width: 400px; height: 120px;" src="%s" seamless></iframe>`
	maxPageSize    = 8 << 20
)

// BuildEmbed returns the player iframe for an album or track id.
func BuildEmbed(kind, id string) string {
	return fmt.Sprintf(embedIframe, fmt.Sprintf(embedPlayerURL, kind, id))
}

var (
	tralbumVarRe  = regexp.MustCompile(`(?s)var\s+TralbumData\s*=\s*(\{.+?\});`)
	embedVarRe    = regexp.MustCompile(`(?s)var\s+EmbedData\s*=\s*(\{.+?\});`)
	tralbumAttrRe = regexp.MustCompile(`data-tralbum="([^"]+)"`)
	iframeRe      = regexp.MustCompile(`(?i)<iframe[^>]*src=["']([^"']*EmbeddedPlayer[^"']*)["']`)

	albumIDRe  = regexp.MustCompile(`"?album_id"?\s*:\s*(\d+)`)
	trackIDRe  = regexp.MustCompile(`"?track_id"?\s*:\s*(\d+)`)
	itemTypeRe = regexp.MustCompile(`"?item_type"?\s*:\s*"?(track|album)"?`)
	plainIDRe  = regexp.MustCompile(`"?id"?\s*:\s*(\d+)`)

	generalPatterns = []struct {
		kind string
		re   *regexp.Regexp
	}{
		{"album", regexp.MustCompile(`(?s)data-band-id="\d+".*?data-item-id="(\d+)".*?data-item-type="album"`)},
		{"album", albumIDRe},
		{"album", regexp.MustCompile(`album[=/](\d{8,12})`)},
		{"track", regexp.MustCompile(`(?s)data-band-id="\d+".*?data-item-id="(\d+)".*?data-item-type="track"`)},
		{"track", trackIDRe},
		{"track", regexp.MustCompile(`track[=/](\d{8,12})`)},
	}
)

type tralbumAttr struct {
	ID       json.Number `json:"id"`
	ItemType string      `json:"item_type"`
	Current  struct {
		ID   json.Number `json:"id"`
		Type string      `json:"type"`
	} `json:"current"`
}

// ExtractEmbed finds the album or track id in a Bandcamp page and returns its player markup.
//
// Sources are tried in order: the TralbumData script variable, the data-tralbum attribute,
// the EmbedData script variable, loose id patterns anywhere in the page and finally an
// EmbeddedPlayer iframe already present in the page.
func ExtractEmbed(page string) (string, bool) {
	if m := tralbumVarRe.FindStringSubmatch(page); m != nil {
		if id := firstGroup(albumIDRe, m[1]); id != "" {
			return BuildEmbed("album", id), true
		}
		if t := firstGroup(itemTypeRe, m[1]); t == "track" {
			if id := firstGroup(plainIDRe, m[1]); id != "" {
				return BuildEmbed("track", id), true
			}
		}
	}

	if m := tralbumAttrRe.FindStringSubmatch(page); m != nil {
		var data tralbumAttr
		if err := json.Unmarshal([]byte(html.UnescapeString(m[1])), &data); err == nil {
			kind, id := data.ItemType, data.ID.String()
			if kind == "" {
				kind, id = data.Current.Type, data.Current.ID.String()
			}
			if (kind == "album" || kind == "track") && id != "" {
				return BuildEmbed(kind, id), true
			}
		}
	}

	if m := embedVarRe.FindStringSubmatch(page); m != nil {
		if id := firstGroup(albumIDRe, m[1]); id != "" {
			return BuildEmbed("album", id), true
		}
		if id := firstGroup(trackIDRe, m[1]); id != "" {
			return BuildEmbed("track", id), true
		}
	}

	for _, p := range generalPatterns {
		if id := firstGroup(p.re, page); id != "" {
			return BuildEmbed(p.kind, id), true
		}
	}

	if m := iframeRe.FindStringSubmatch(page); m != nil {
		src := m[1]
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		return fmt.Sprintf(embedIframe, src), true
	}

	return "", false
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// BandcampClient fetches Bandcamp pages and resolves their embed markup.
//
// A single client is shared by all collector workers; its limiter paces every request.
type BandcampClient struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	retries    int
	retryDelay time.Duration
}

// BandcampOpt configures a [BandcampClient].
type BandcampOpt func(*BandcampClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) BandcampOpt {
	return func(c *BandcampClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewBandcampClient creates a client from the bandcamp config section.
func NewBandcampClient(cfg shared.BandcampConfig, opts ...BandcampOpt) *BandcampClient {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}

	c := &BandcampClient{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(limit, 1),
		retries:    retries,
		retryDelay: cfg.RetryDelay(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve downloads pageURL and extracts the player embed.
//
// Transport errors, server errors and pages without an embed are retried. A 404 fails at once
// with [shared.ErrNotFound].
func (c *BandcampClient) Resolve(ctx context.Context, pageURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		page, err := c.GetString(ctx, pageURL)
		if err == nil {
			if embed, ok := ExtractEmbed(page); ok {
				return embed, nil
			}
			err = fmt.Errorf("%w: %s", shared.ErrNoEmbed, pageURL)
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d attempts: %w", c.retries, lastErr)
}

// GetString performs a rate-limited GET and returns the body.
func (c *BandcampClient) GetString(ctx context.Context, pageURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", shared.ErrNotFound, pageURL)
	case resp.StatusCode != http.StatusOK:
		return "", &StatusError{Code: resp.StatusCode, URL: pageURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

// StatusError is a non-OK HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL) }
func (e *StatusError) Unwrap() error { return shared.ErrHTTP }

func retryable(err error) bool {
	if errors.Is(err, shared.ErrNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}
