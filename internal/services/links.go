package services

import (
	"regexp"
	"strings"
)

// linkPatterns are tried in order; the first producing a valid album or track URL wins.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)check\s+it\s+out\s+here.*?href=["']([^"']+bandcamp\.com[^"']*)["']`),
	regexp.MustCompile(`(?is)href=["']([^"']+bandcamp\.com[^"']*)["'].*?check\s+it\s+out\s+here`),
	regexp.MustCompile(`(?is)check\s+it\s+out\s+here[^\n]*?(https?://[^\s<]+bandcamp\.com[^\s<]*)`),
	regexp.MustCompile(`(?is)href=["']([^"']*bandcamp\.com/(?:album|track)/[^"']+)["']`),
	regexp.MustCompile(`(?is)(https?://[^\s<]+bandcamp\.com/(?:album|track)/[^\s<]+)`),
}

var entityReplacer = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">")

// ExtractBandcampLink finds the album or track page a notification email points to.
func ExtractBandcampLink(body string) (string, bool) {
	for _, re := range linkPatterns {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if link, ok := cleanLink(m[1]); ok {
			return link, true
		}
	}
	return "", false
}

// cleanLink strips punctuation, entities and the tracking query string.
func cleanLink(raw string) (string, bool) {
	link := strings.TrimRight(strings.TrimSpace(raw), ".,;!?>")
	link = entityReplacer.Replace(link)
	if i := strings.IndexByte(link, '?'); i >= 0 {
		link = link[:i]
	}
	if fields := strings.Fields(link); len(fields) > 0 {
		link = fields[0]
	}
	if strings.HasPrefix(link, "/") {
		return "", false
	}
	if !strings.Contains(link, "bandcamp.com") {
		return "", false
	}
	if !strings.Contains(link, "/album/") && !strings.Contains(link, "/track/") {
		return "", false
	}
	return link, true
}
