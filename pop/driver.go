package pop

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/cache"
	"github.com/tern-mail/mailcore/conn"
	"github.com/tern-mail/mailcore/mailbox"
	"github.com/tern-mail/mailcore/metrics"
)

// Client adapts a Session to mailbox.Driver (SPEC_FULL.md §4.H). POP has
// no mailbox hierarchy to select — a Client always addresses the single
// inbox a POP account names — so most of its Driver surface is UIDL/STAT
// bookkeeping rather than a path-aware operation.
type Client struct {
	account   *mailcore.Account
	tlsConfig *tls.Config
	session   *Session
	bodies    *cache.BodyCache
	headers   cache.HeaderCache
	logger    *slog.Logger

	// uidToRefno/refnoToUID mirror the current session's UIDL response;
	// refno is only meaningful within one connection's lifetime.
	uidToRefno map[string]int
	refnoToUID map[int]string
	deleted    map[string]bool

	count   int
	size    int64
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

// Dial opens a connection to account, runs the full handshake (greeting,
// capability discovery, optional STLS, the authenticator chain, and the
// post-auth capability recheck), and returns a ready Client.
func Dial(ctx context.Context, account *mailcore.Account, cacheRoot string, tlsConfig *tls.Config, logger *slog.Logger) (*Client, error) {
	var (
		raw *conn.Conn
		err error
	)
	addr := account.Addr()
	if mailcore.Scheme(account.Scheme).IsSSL() {
		raw, err = conn.DialTLS(addr, tlsConfig, logger)
	} else {
		raw, err = conn.Dial(addr, logger)
	}
	if err != nil {
		return nil, err
	}

	sess, err := NewSession(raw, logger)
	if err != nil {
		return nil, err
	}
	if err := sess.Capa(false); err != nil {
		return nil, err
	}
	if !mailcore.Scheme(account.Scheme).IsSSL() && sess.Caps.STLS {
		if err := sess.STLS(tlsConfig); err != nil {
			return nil, err
		}
	}
	if err := Authenticate(ctx, sess, account); err != nil {
		return nil, err
	}
	if err := sess.RecheckPostAuth(); err != nil {
		return nil, err
	}

	bodies := cache.Open(cacheRoot, account.Host, account.Mailbox)
	headers, err := cache.OpenPOPHeaderCache(cacheRoot, account.Host+"/"+account.User)
	if err != nil {
		return nil, fmt.Errorf("%w: opening header cache: %v", mailcore.ErrCache, err)
	}

	return &Client{
		account:   account,
		tlsConfig: tlsConfig,
		session:   sess,
		bodies:    bodies,
		headers:   headers,
		logger:    logger,
		deleted:   make(map[string]bool),
	}, nil
}

// OwnsPath reports whether path names account's POP inbox.
func (c *Client) OwnsPath(account *mailcore.Account, path string) bool {
	return account == c.account && mailcore.Scheme(account.Scheme).IsPOP()
}

// Add is a no-op: POP has exactly one server-side mailbox, already
// implied by the account.
func (c *Client) Add(ctx context.Context, account *mailcore.Account, mailboxPath string) error {
	return nil
}

// Open runs STAT and the UIDL-driven header fetch (spec.md §4.F step 7
// plus pop_fetch_headers).
func (c *Client) Open(ctx context.Context, mailboxPath string) (mailbox.OpenResult, error) {
	var result mailbox.OpenResult
	err := c.withReconnect(ctx, func() error {
		count, size, err := c.session.Stat()
		if err != nil {
			return err
		}
		c.count, c.size = count, size
		if count == 0 {
			result = mailbox.OpenNoMail
			return nil
		}
		if err := c.fetchHeaders(); err != nil {
			return err
		}
		c.pruneBodyCache()
		result = mailbox.OpenOK
		return nil
	})
	if err != nil {
		return mailbox.OpenErr, err
	}
	return result, nil
}

// Check re-runs STAT and reports whether the message count grew.
func (c *Client) Check(ctx context.Context) (mailbox.CheckResult, error) {
	var result mailbox.CheckResult
	err := c.withReconnect(ctx, func() error {
		before := c.count
		count, size, err := c.session.Stat()
		if err != nil {
			return err
		}
		c.count, c.size = count, size
		if count > before {
			if err := c.fetchHeaders(); err != nil {
				return err
			}
			result = mailbox.CheckNewMail
			return nil
		}
		result = mailbox.CheckOK
		return nil
	})
	if err != nil {
		return mailbox.CheckErr, err
	}
	return result, nil
}

// Sync flushes pending deletions (spec.md §4.F "Sync").
func (c *Client) Sync(ctx context.Context) error {
	return c.withReconnect(ctx, c.sync)
}

// Close flushes pending deletions and, if that succeeds, logs out.
func (c *Client) Close(ctx context.Context) error {
	if err := c.Sync(ctx); err != nil {
		c.session.Close()
		c.headers.Close()
		return err
	}
	return c.headers.Close()
}

// MsgOpen serves uid's body from the body cache when present, else issues
// RETR and populates the cache.
func (c *Client) MsgOpen(ctx context.Context, uid string) (*mailbox.Message, error) {
	if c.bodies != nil {
		if ok, _ := c.bodies.Exists(uid); ok {
			r, err := c.bodies.Get(uid)
			if err != nil {
				return nil, err
			}
			defer r.Close()
			f, err := os.CreateTemp("", "mailcore-pop-*.eml")
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

	refno, ok := c.uidToRefno[uid]
	if !ok {
		return nil, fmt.Errorf("%w: uid %s not found", mailcore.ErrProtocol, uid)
	}

	var raw []byte
	err := c.withReconnect(ctx, func() error {
		r, err := c.session.Retr(refno)
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.bodies != nil {
		if w, err := c.bodies.Put(uid); err == nil {
			w.Write(raw)
			w.Close()
			c.bodies.Commit(uid)
		}
	}

	f, err := os.CreateTemp("", "mailcore-pop-*.eml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	f.Write(raw)
	f.Seek(0, 0)

	header, _ := c.headers.Fetch(uid)
	msg := &mailbox.Message{UID: uid, Body: f}
	if header != nil {
		msg.Header = *header
	}
	return msg, nil
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

// MsgSaveHCache persists msg's header back to the header cache.
func (c *Client) MsgSaveHCache(ctx context.Context, msg *mailbox.Message) error {
	h := msg.Header
	h.Key = msg.UID
	return c.headers.Store(&h)
}

// PathProbe always reports TypePOP: POP has no local path concept.
func (c *Client) PathProbe(path string, stat os.FileInfo) mailbox.Type {
	return mailbox.TypePOP
}

// PathCanon returns the single canonical mailbox name every POP account
// exposes; POP has no path hierarchy to canonicalize into.
func (c *Client) PathCanon(path string) (string, error) {
	return "INBOX", nil
}

// PathParent always errors: POP's one mailbox has no parent.
func (c *Client) PathParent(path string) (string, error) {
	return "", fmt.Errorf("%w: POP mailbox %q has no parent", mailcore.ErrProtocol, path)
}

// Count returns the message count from the most recent STAT.
func (c *Client) Count() int { return c.count }

// Size returns the total octet size from the most recent STAT.
func (c *Client) Size() int64 { return c.size }

// UID returns the UID addressed by sequence number n (1-based, per LIST
// and RETR's own numbering), or "" if n is out of range for the current
// session.
func (c *Client) UID(n int) string {
	return c.refnoToUID[n]
}

var _ mailbox.Driver = (*Client)(nil)
