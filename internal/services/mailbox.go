package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/bcx/internal/shared"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// IMAPMailbox implements [Mailbox] over a single IMAP connection, opened on first use.
type IMAPMailbox struct {
	cfg      shared.MailConfig
	password string
	tokens   oauth2.TokenSource

	mu     sync.Mutex
	client *imapclient.Client
}

// NewPasswordMailbox creates a mailbox authenticating with LOGIN.
func NewPasswordMailbox(cfg shared.MailConfig, password string) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg, password: password}
}

// NewOAuthMailbox creates a mailbox authenticating with SASL OAUTHBEARER, drawing access
// tokens from tokens.
func NewOAuthMailbox(cfg shared.MailConfig, tokens oauth2.TokenSource) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg, tokens: tokens}
}

func (m *IMAPMailbox) Account() (string, string) {
	return m.cfg.Server, m.cfg.Username
}

// connect dials and authenticates unless a connection is already open. Callers hold m.mu.
func (m *IMAPMailbox) connect(ctx context.Context) (*imapclient.Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := m.cfg.Address()
	var (
		client *imapclient.Client
		err    error
	)
	switch m.cfg.Security {
	case "starttls":
		client, err = imapclient.DialStartTLS(addr, nil)
	case "insecure":
		client, err = imapclient.DialInsecure(addr, nil)
	default:
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", shared.ErrMailSource, addr, err)
	}

	if err := m.authenticate(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	m.client = client
	return client, nil
}

func (m *IMAPMailbox) authenticate(ctx context.Context, client *imapclient.Client) error {
	if m.tokens != nil {
		token, err := m.tokens.Token()
		if err != nil {
			return fmt.Errorf("%w: refreshing access token: %v", shared.ErrAuthFailed, err)
		}
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: m.cfg.Username,
			Token:    token.AccessToken,
		})
		if err := client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, m.cfg.Username, err)
		}
		return nil
	}

	if err := client.Login(m.cfg.Username, m.password).Wait(); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, m.cfg.Username, err)
	}
	return ctx.Err()
}

// ListFolders returns every selectable mailbox, sorted.
func (m *IMAPMailbox) ListFolders(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}

	list, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: listing folders: %v", shared.ErrMailSource, err)
	}

	names := make([]string, 0, len(list))
	for _, data := range list {
		if hasAttr(data.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		names = append(names, data.Mailbox)
	}
	sort.Strings(names)
	return names, nil
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if strings.EqualFold(string(a), string(want)) {
			return true
		}
	}
	return false
}

// Fetch searches folder, filters envelopes client-side and downloads the bodies of the matches
// without setting \Seen.
func (m *IMAPMailbox) Fetch(ctx context.Context, folder string, filter Filter) ([]Message, error) {
	if err := filter.Compile(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.selectFolder(ctx, folder)
	if err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{Since: filter.Since}
	if !filter.IncludeRead {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %v", shared.ErrMailSource, folder, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	headers, err := fetchEnvelopes(client, uids)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching envelopes in %s: %v", shared.ErrMailSource, folder, err)
	}

	var matched, failed []Message
	for _, h := range headers {
		switch {
		case h.Err != nil:
			failed = append(failed, h)
		case filter.Match(h.From, h.Address, h.Subject):
			matched = append(matched, h)
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return failed, nil
	}

	orphans, err := fetchBodies(client, matched)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching bodies in %s: %v", shared.ErrMailSource, folder, err)
	}
	return append(append(matched, failed...), orphans...), nil
}

func fetchEnvelopes(client *imapclient.Client, uids []imap.UID) ([]Message, error) {
	cmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})
	defer cmd.Close()

	var out []Message
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		m := messageFromBuffer(buf)
		if err != nil {
			m.Err = fmt.Errorf("reading envelope: %w", err)
		}
		out = append(out, m)
	}
	if err := cmd.Close(); err != nil {
		return out, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// fetchBodies fills in the bodies of messages. A response that fails before its UID arrives
// cannot be matched to a message and is returned as a separate failed Message.
func fetchBodies(client *imapclient.Client, messages []Message) ([]Message, error) {
	index := make(map[uint32]int, len(messages))
	uids := make([]imap.UID, 0, len(messages))
	for i, msg := range messages {
		index[msg.UID] = i
		uids = append(uids, imap.UID(msg.UID))
	}

	section := &imap.FetchItemBodySection{Peek: true}
	cmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer cmd.Close()

	var orphans []Message
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		i, ok := index[uint32(buf.UID)]
		if err != nil {
			err = fmt.Errorf("reading body: %w", err)
			if ok {
				messages[i].Err = err
			} else {
				orphans = append(orphans, Message{UID: uint32(buf.UID), Err: err})
			}
			continue
		}
		if !ok {
			continue
		}
		if raw := buf.FindBodySection(section); raw != nil {
			body, rawDate := ParseBody(raw)
			messages[i].Body = body
			if messages[i].RawDate == "" {
				messages[i].RawDate = rawDate
			}
		}
	}
	return orphans, cmd.Close()
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	msg := Message{UID: uint32(buf.UID)}

	if env := buf.Envelope; env != nil {
		msg.MessageID = env.MessageID
		msg.Subject = env.Subject
		msg.Date = env.Date
		if len(env.From) > 0 {
			from := env.From[0]
			msg.Address = from.Addr()
			msg.From = from.Name
			if msg.From == "" {
				msg.From = msg.Address
			}
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			msg.Seen = true
		}
	}
	return msg
}

// ParseBody decodes a raw RFC 5322 message and returns its text and HTML parts concatenated,
// plus the Date header. Attachments are skipped. Unparseable messages are returned verbatim.
func ParseBody(raw []byte) (body, date string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return string(raw), ""
	}
	defer mr.Close()

	date = mr.Header.Get("Date")

	var sb strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "text/plain" && contentType != "text/html" {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String(), date
}

// MarkSeen adds \Seen to the given UIDs in folder.
func (m *IMAPMailbox) MarkSeen(ctx context.Context, folder string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.selectFolder(ctx, folder)
	if err != nil {
		return err
	}
	if err := storeFlag(client, uids, imap.FlagSeen); err != nil {
		return fmt.Errorf("%w: flagging messages in %s: %v", shared.ErrMailSource, folder, err)
	}
	return nil
}

// Delete flags the given UIDs \Deleted in folder and expunges them. Servers without UIDPLUS get
// a plain EXPUNGE, which also removes messages other clients flagged \Deleted.
func (m *IMAPMailbox) Delete(ctx context.Context, folder string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.selectFolder(ctx, folder)
	if err != nil {
		return err
	}
	if err := storeFlag(client, uids, imap.FlagDeleted); err != nil {
		return fmt.Errorf("%w: flagging messages deleted in %s: %v", shared.ErrMailSource, folder, err)
	}

	var expunge *imapclient.ExpungeCommand
	if client.Caps().Has(imap.CapUIDPlus) {
		expunge = client.UIDExpunge(uidSet(uids))
	} else {
		expunge = client.Expunge()
	}
	if err := expunge.Close(); err != nil {
		return fmt.Errorf("%w: expunging %s: %v", shared.ErrMailSource, folder, err)
	}
	return nil
}

// selectFolder connects and selects folder. Callers hold m.mu.
func (m *IMAPMailbox) selectFolder(ctx context.Context, folder string) (*imapclient.Client, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("%w: selecting %s: %v", shared.ErrMailSource, folder, err)
	}
	return client, nil
}

func storeFlag(client *imapclient.Client, uids []uint32, flag imap.Flag) error {
	return client.Store(uidSet(uids), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{flag},
	}, nil).Close()
}

func uidSet(uids []uint32) imap.UIDSet {
	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}
	return imap.UIDSetNum(set...)
}

// Close logs out when a connection is open.
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	err := m.client.Logout().Wait()
	_ = m.client.Close()
	m.client = nil
	return err
}
