package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mailbox defines the operations bcx needs from a mail provider.
type Mailbox interface {
	// Account returns the server and user name identifying this mailbox in caches.
	Account() (server, username string)

	// ListFolders returns every selectable mailbox name.
	ListFolders(ctx context.Context) ([]string, error)

	// Fetch returns the messages in folder matching filter, bodies included.
	Fetch(ctx context.Context, folder string, filter Filter) ([]Message, error)

	// MarkSeen adds the \Seen flag to the given UIDs.
	MarkSeen(ctx context.Context, folder string, uids []uint32) error

	// Delete flags the given UIDs \Deleted and expunges them.
	Delete(ctx context.Context, folder string, uids []uint32) error

	// Close logs out and releases the connection.
	Close() error
}

// Message is a notification email reduced to what album extraction needs.
type Message struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string    // display name, or address when the name is empty
	Address   string    // sender address
	Date      time.Time // zero when the header could not be parsed
	RawDate   string
	Body      string // text and HTML parts concatenated
	Seen      bool
	Err       error // set when the server response for this message could not be read
}

// Filter selects messages client-side after the server search.
type Filter struct {
	Senders     []string // case-insensitive substrings of the sender name or address
	Subjects    []string // regular expressions, any must match
	IncludeRead bool
	Since       time.Time
	Limit       int // most recent N matches, 0 for all

	subjects []*regexp.Regexp
}

// Compile validates the subject patterns. It is called by [Filter.Match] on first use, so
// calling it up front only serves to surface configuration errors early.
func (f *Filter) Compile() error {
	if f.subjects != nil || len(f.Subjects) == 0 {
		return nil
	}
	compiled := make([]*regexp.Regexp, 0, len(f.Subjects))
	for _, pattern := range f.Subjects {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("invalid subject pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	f.subjects = compiled
	return nil
}

// Match reports whether a message header passes the sender and subject filters.
// Empty filter lists match everything.
func (f *Filter) Match(from, address, subject string) bool {
	if len(f.Senders) > 0 {
		ok := false
		for _, s := range f.Senders {
			needle := strings.ToLower(s)
			if strings.Contains(strings.ToLower(from), needle) || strings.Contains(strings.ToLower(address), needle) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if len(f.Subjects) == 0 {
		return true
	}
	if err := f.Compile(); err != nil {
		return false
	}
	for _, re := range f.subjects {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}
