package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/model"
)

// IMAPClient wraps go-imap v2 for connecting to and querying the inbound
// mailbox.
type IMAPClient struct {
	cfg    model.MailboxConfig
	logger *zap.Logger
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(cfg model.MailboxConfig, logger *zap.Logger) *IMAPClient {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IMAPClient{cfg: cfg, logger: logger.Named("mailbox")}
}

// Configured reports whether host and credentials are present.
func (c *IMAPClient) Configured() bool {
	return c.cfg.Configured()
}

func (c *IMAPClient) addr() string {
	return net.JoinHostPort(c.cfg.Host, c.cfg.Port)
}

// connect establishes a connection to the IMAP server and authenticates.
// The connection is closed if ctx is cancelled before the caller logs out.
func (c *IMAPClient) connect(ctx context.Context) (*imapclient.Client, func() bool, error) {
	addr := c.addr()
	opts := &imapclient.Options{
		TLSConfig:   &tls.Config{ServerName: c.cfg.Host},
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var client *imapclient.Client
	var err error

	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, nil, &ConnectionError{
			Op:   "login",
			Addr: addr,
			Err:  fmt.Errorf("authentication failed for %s: %w", c.cfg.Username, err),
		}
	}

	return client, stop, nil
}

// Open connects, authenticates and selects the configured folder. The
// caller must Close the returned session.
func (c *IMAPClient) Open(ctx context.Context) (Session, error) {
	client, stop, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := client.Select(c.cfg.Folder, nil).Wait(); err != nil {
		stop()
		_ = client.Logout().Wait()
		return nil, &ConnectionError{
			Op:   "select " + c.cfg.Folder,
			Addr: c.addr(),
			Err:  err,
		}
	}

	return &imapSession{client: client, stop: stop, addr: c.addr(), logger: c.logger}, nil
}

// Probe verifies credentials by connecting, listing mailboxes and selecting
// the configured folder.
func (c *IMAPClient) Probe(ctx context.Context) (*Probe, error) {
	client, stop, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		stop()
		_ = client.Logout().Wait()
	}()

	list, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, &ConnectionError{Op: "list", Addr: c.addr(), Err: err}
	}

	probe := &Probe{Folder: c.cfg.Folder}
	for _, mbox := range list {
		probe.Mailboxes = append(probe.Mailboxes, mbox.Mailbox)
	}

	data, err := client.Select(c.cfg.Folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, &ConnectionError{Op: "select " + c.cfg.Folder, Addr: c.addr(), Err: err}
	}
	probe.Messages = data.NumMessages

	return probe, nil
}

// imapSession is a logged-in client with the folder selected.
type imapSession struct {
	client *imapclient.Client
	stop   func() bool
	addr   string
	logger *zap.Logger
}

// Search runs UID SEARCH with the criteria, then fetches the full message
// of every match with BODY.PEEK[] so the \Seen flag is left untouched.
func (s *imapSession) Search(ctx context.Context, c Criteria) ([]Message, error) {
	searchData, err := s.client.UIDSearch(toSearchCriteria(c), nil).Wait()
	if err != nil {
		return nil, &ConnectionError{Op: "search", Addr: s.addr, Err: err}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	// Take the most recent matches.
	if c.Limit > 0 && len(uids) > c.Limit {
		uids = uids[len(uids)-c.Limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts)

	var messages []Message
	for {
		if err := ctx.Err(); err != nil {
			_ = fetchCmd.Close()
			return nil, err
		}

		fetched := fetchCmd.Next()
		if fetched == nil {
			break
		}

		buf, err := fetched.Collect()
		if err != nil {
			if buf == nil || buf.UID == 0 {
				s.logger.Warn("collecting fetched message", zap.Error(err))
				continue
			}
			messages = append(messages, s.undecodable(buf, nil, err))
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			messages = append(messages, s.undecodable(buf, nil, errNoBody))
			continue
		}

		msg, err := ParseMessage(uint32(buf.UID), raw)
		if err != nil {
			messages = append(messages, s.undecodable(buf, raw, err))
			continue
		}
		if msg.Date.IsZero() {
			msg.Date = buf.InternalDate.UTC()
		}
		messages = append(messages, msg)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &ConnectionError{Op: "fetch", Addr: s.addr, Err: err}
	}

	return messages, nil
}

// undecodable returns a placeholder so the message is still reported and
// audited by the caller.
func (s *imapSession) undecodable(buf *imapclient.FetchMessageBuffer, raw []byte, err error) Message {
	s.logger.Warn("undecodable message", zap.Uint32("uid", uint32(buf.UID)), zap.Error(err))
	msg := UndecodableMessage(uint32(buf.UID), raw, err)
	msg.Date = buf.InternalDate.UTC()
	return msg
}

// MarkSeen adds the \Seen flag to a message.
func (s *imapSession) MarkSeen(_ context.Context, uid uint32) error {
	return s.storeSeen(uid, imap.StoreFlagsAdd)
}

// MarkUnseen removes the \Seen flag so the message is picked up again.
func (s *imapSession) MarkUnseen(_ context.Context, uid uint32) error {
	return s.storeSeen(uid, imap.StoreFlagsDel)
}

func (s *imapSession) storeSeen(uid uint32, op imap.StoreFlagsOp) error {
	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return &ConnectionError{Op: "store flags", Addr: s.addr, Err: err}
	}
	return nil
}

// Close logs out and releases the connection.
func (s *imapSession) Close() error {
	s.stop()
	if err := s.client.Logout().Wait(); err != nil {
		_ = s.client.Close()
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// toSearchCriteria converts Criteria into an IMAP search key. Several
// subject substrings become a chain of ORs.
func toSearchCriteria(c Criteria) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if c.Unseen {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	subjects := make([]imap.SearchCriteria, 0, len(c.SubjectAny))
	for _, s := range c.SubjectAny {
		subjects = append(subjects, imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: s}},
		})
	}

	switch len(subjects) {
	case 0:
	case 1:
		criteria.Header = append(criteria.Header, subjects[0].Header...)
	default:
		or := subjects[len(subjects)-1]
		for i := len(subjects) - 2; i >= 0; i-- {
			or = imap.SearchCriteria{Or: [][2]imap.SearchCriteria{{subjects[i], or}}}
		}
		criteria.Or = append(criteria.Or, or.Or...)
	}

	return criteria
}
