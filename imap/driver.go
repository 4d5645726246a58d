package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/auth"
	"github.com/tern-mail/mailcore/cache"
	"github.com/tern-mail/mailcore/conn"
	"github.com/tern-mail/mailcore/mailbox"
	"github.com/tern-mail/mailcore/metrics"
)

// Client adapts a Session to mailbox.Driver (SPEC_FULL.md §4.H), owning
// the account's connection, its header cache, and the currently selected
// mailbox's sequence-number-to-UID index the untagged EXPUNGE/FETCH
// bookkeeping needs to keep MsgOpen/MsgClose addressable by UID even
// though the wire protocol mostly talks in sequence numbers.
type Client struct {
	account *mailcore.Account
	session *Session
	bodies  *cache.BodyCache
	headers cache.HeaderCache
	logger  *slog.Logger

	// uidToSeq/seqToUID mirror the selected mailbox's current ordering,
	// rebuilt on Open, renumbered by the OnExpunge hook, and rebuilt again
	// by Check when new mail has arrived.
	uidToSeq map[string]uint32
	seqToUID map[uint32]string

	metrics *metrics.Metrics
}

// SetMetrics attaches optional Prometheus instrumentation to c, its live
// session, and its body cache; nil disables it.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
	c.session.SetMetrics(m)
	c.bodies.SetMetrics(m)
	c.headers.SetMetrics(m)
}

// Dial opens a connection to account and authenticates, returning a ready
// Client. cacheRoot is the body/header cache directory
// (SPEC_FULL.md §4.D).
func Dial(ctx context.Context, account *mailcore.Account, cacheRoot string, tlsConfig *tls.Config, logger *slog.Logger) (*Client, error) {
	var (
		c   *conn.Conn
		err error
	)
	addr := account.Addr()
	if mailcore.Scheme(account.Scheme).IsSSL() {
		c, err = conn.DialTLS(addr, tlsConfig, logger)
	} else {
		c, err = conn.Dial(addr, logger)
	}
	if err != nil {
		return nil, err
	}

	sess, err := NewSession(c, logger)
	if err != nil {
		return nil, err
	}

	if !mailcore.Scheme(account.Scheme).IsSSL() && sess.Caps.Has(CapStartTLS) {
		if err := sess.StartTLS(tlsConfig); err != nil {
			return nil, err
		}
	}

	if err := authenticateAccount(ctx, sess, account); err != nil {
		return nil, err
	}

	bodies := cache.Open(cacheRoot, account.Host, account.Mailbox)
	headers, err := cache.OpenFileHeaderCache(cacheRoot, account.Host+"/"+account.Mailbox)
	if err != nil {
		return nil, fmt.Errorf("%w: opening header cache: %v", mailcore.ErrCache, err)
	}

	cl := &Client{
		account: account,
		session: sess,
		bodies:  bodies,
		headers: headers,
		logger:  logger,
	}
	sess.OnExpunge = cl.onExpunge
	sess.OnExists = cl.onExists
	return cl, nil
}

func authenticateAccount(ctx context.Context, sess *Session, account *mailcore.Account) error {
	password, err := account.ResolvePassword(ctx)
	if err != nil {
		return err
	}
	creds := auth.Credentials{
		Username: account.User,
		AuthzID:  account.Login,
		Password: password,
		Host:     account.Host,
		Port:     strconv.Itoa(account.Port),
	}
	if account.OAuthRefreshCmd != "" {
		token, err := account.ResolveOAuthToken(ctx)
		if err != nil {
			return err
		}
		creds.Token = token
	}

	var offered []string
	for _, c := range sess.Caps.All() {
		if strings.HasPrefix(string(c), "AUTH=") {
			offered = append(offered, strings.TrimPrefix(string(c), "AUTH="))
		}
	}

	if len(offered) > 0 {
		_, mech, err := auth.Negotiate(offered, creds)
		if err == nil {
			return sess.Authenticate(mech)
		}
	}
	if sess.Caps.Has(CapLogindisabled) {
		return fmt.Errorf("%w: server disabled LOGIN and offers no usable SASL mechanism", mailcore.ErrAuthFailure)
	}
	return sess.Login(account.User, password)
}

// OwnsPath reports whether path names an IMAP mailbox on account.
func (c *Client) OwnsPath(account *mailcore.Account, path string) bool {
	return account == c.account && mailcore.Scheme(account.Scheme).IsIMAP()
}

// Add is a no-op for IMAP: the server owns mailbox existence, so there is
// nothing local to register beyond what Open already does.
func (c *Client) Add(ctx context.Context, account *mailcore.Account, mailboxPath string) error {
	return nil
}

// Open selects mailboxPath and rebuilds the sequence-number/UID index from
// a full UID FETCH.
func (c *Client) Open(ctx context.Context, mailboxPath string) (mailbox.OpenResult, error) {
	if err := c.session.Select(mailboxPath); err != nil {
		return mailbox.OpenErr, err
	}
	if c.session.Mailbox.NumMessages == 0 {
		c.uidToSeq = map[string]uint32{}
		c.seqToUID = map[uint32]string{}
		return mailbox.OpenNoMail, nil
	}
	if err := c.rebuildIndex(); err != nil {
		return mailbox.OpenErr, err
	}
	return mailbox.OpenOK, nil
}

func (c *Client) rebuildIndex() error {
	set := &SeqSet{}
	set.AddRange(1, 0)
	msgs, err := c.session.Fetch(set, "(UID)", false)
	if err != nil {
		return err
	}
	c.uidToSeq = make(map[string]uint32, len(msgs))
	c.seqToUID = make(map[uint32]string, len(msgs))
	for _, m := range msgs {
		uid := strconv.FormatUint(uint64(m.UID), 10)
		c.uidToSeq[uid] = m.SeqNum
		c.seqToUID[m.SeqNum] = uid
	}
	return nil
}

// Check issues NOOP and reports whether NumMessages grew since the last
// Open/Check.
func (c *Client) Check(ctx context.Context) (mailbox.CheckResult, error) {
	before := c.session.Mailbox.NumMessages
	if _, _, err := c.session.Command(CommandNoop, ""); err != nil {
		return mailbox.CheckErr, err
	}
	if c.session.Mailbox.NumMessages > before {
		if err := c.rebuildIndex(); err != nil {
			return mailbox.CheckErr, err
		}
		return mailbox.CheckNewMail, nil
	}
	return mailbox.CheckOK, nil
}

// Sync is a no-op beyond what Store already pushes synchronously: IMAP has
// no separate local-to-server flush step the way POP's DELE/QUIT does.
func (c *Client) Sync(ctx context.Context) error {
	return nil
}

// Close issues CLOSE (expunging \Deleted messages) and returns to the
// authenticated state.
func (c *Client) Close(ctx context.Context) error {
	if err := c.session.Close(); err != nil {
		return err
	}
	return c.headers.Close()
}

// MsgOpen fetches uid's body, serving it from the body cache when present
// and populating the cache on a miss.
func (c *Client) MsgOpen(ctx context.Context, uid string) (*mailbox.Message, error) {
	if c.bodies != nil {
		if ok, _ := c.bodies.Exists(uid); ok {
			r, err := c.bodies.Get(uid)
			if err != nil {
				return nil, err
			}
			defer r.Close()
			f, err := os.CreateTemp("", "mailcore-imap-*.eml")
			if err != nil {
				return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
			}
			if _, err := io.Copy(f, r); err != nil {
				f.Close()
				os.Remove(f.Name())
				return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
			}
			f.Seek(0, 0)
			header, _ := c.headers.Fetch(uid)
			msg := &mailbox.Message{UID: uid, Body: f}
			if header != nil {
				msg.Header = *header
			}
			return msg, nil
		}
	}

	set := &UIDSet{}
	n, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid uid %q", mailcore.ErrProtocol, uid)
	}
	set.AddNum(UID(n))
	msgs, err := c.session.Fetch(set, "(BODY.PEEK[] UID)", true)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: uid %s not found", mailcore.ErrProtocol, uid)
	}
	raw := msgs[0].BodySection["BODY[]"]

	if c.bodies != nil {
		if w, err := c.bodies.Put(uid); err == nil {
			w.Write(raw)
			w.Close()
			c.bodies.Commit(uid)
		}
	}

	f, err := os.CreateTemp("", "mailcore-imap-*.eml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	f.Write(raw)
	f.Seek(0, 0)
	return &mailbox.Message{UID: uid, Body: f}, nil
}

// MsgClose releases the temp file MsgOpen created.
func (c *Client) MsgClose(ctx context.Context, msg *mailbox.Message) error {
	if msg.Body == nil {
		return nil
	}
	name := msg.Body.Name()
	msg.Body.Close()
	return os.Remove(name)
}

// MsgSaveHCache persists msg's header to the header cache.
func (c *Client) MsgSaveHCache(ctx context.Context, msg *mailbox.Message) error {
	h := msg.Header
	h.Key = msg.UID
	return c.headers.Store(&h)
}

// PathProbe always reports TypeIMAP: the IMAP driver only ever serves IMAP
// mailboxes.
func (c *Client) PathProbe(path string, stat os.FileInfo) mailbox.Type {
	return mailbox.TypeIMAP
}

// PathCanon returns path in modified UTF-7 form, quoted as an IMAP command
// argument (INBOX, in any case, is returned bare as "INBOX").
func (c *Client) PathCanon(path string) (string, error) {
	return mailboxNameArg(path), nil
}

// PathParent returns the part of path before its last "/". The server's
// hierarchy delimiter is not consulted; "/" is always used.
func (c *Client) PathParent(path string) (string, error) {
	delim := "/"
	idx := strings.LastIndex(path, delim)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q has no parent", mailcore.ErrProtocol, path)
	}
	return path[:idx], nil
}

func (c *Client) onExpunge(seqNum uint32) {
	uid, ok := c.seqToUID[seqNum]
	if !ok {
		return
	}
	delete(c.seqToUID, seqNum)
	delete(c.uidToSeq, uid)
	renumbered := make(map[uint32]string, len(c.seqToUID))
	for s, u := range c.seqToUID {
		if s > seqNum {
			renumbered[s-1] = u
			c.uidToSeq[u] = s - 1
		} else {
			renumbered[s] = u
		}
	}
	c.seqToUID = renumbered
}

func (c *Client) onExists(n uint32) {
	// Newly arrived messages are picked up by the next Check's
	// rebuildIndex call; nothing to do synchronously here.
}

var _ mailbox.Driver = (*Client)(nil)
