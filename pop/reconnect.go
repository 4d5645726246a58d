package pop

import (
	"context"
	"errors"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/conn"
)

// reconnect implements spec.md §4.F's "Reconnect": close and reopen the
// connection, re-run the handshake and authenticator chain, then re-issue
// UIDL to rebuild the UID→refno map without re-fetching any headers —
// cached headers from before the drop are still valid, only the
// ephemeral refnos need refreshing.
func (c *Client) reconnect(ctx context.Context) error {
	c.session.Close()

	var (
		raw *conn.Conn
		err error
	)
	addr := c.account.Addr()
	if mailcore.Scheme(c.account.Scheme).IsSSL() {
		raw, err = conn.DialTLS(addr, c.tlsConfig, c.logger)
	} else {
		raw, err = conn.Dial(addr, c.logger)
	}
	if err != nil {
		return err
	}
	raw.SetMetrics(c.metrics)

	sess, err := NewSession(raw, c.logger)
	if err != nil {
		return err
	}
	if err := sess.Capa(false); err != nil {
		return err
	}
	if !mailcore.Scheme(c.account.Scheme).IsSSL() && sess.Caps.STLS {
		if err := sess.STLS(c.tlsConfig); err != nil {
			return err
		}
	}
	if err := Authenticate(ctx, sess, c.account); err != nil {
		return err
	}
	if err := sess.RecheckPostAuth(); err != nil {
		return err
	}
	c.session = sess

	entries, err := sess.Uidl()
	if err != nil {
		return err
	}
	c.uidToRefno = make(map[string]int, len(entries))
	c.refnoToUID = make(map[int]string, len(entries))
	for _, e := range entries {
		c.uidToRefno[e.UID] = e.Refno
		c.refnoToUID[e.Refno] = e.UID
	}
	return nil
}

// withReconnect runs op, retrying exactly once via reconnect if op fails
// with a connection-lost error, per spec.md §4.F ("retry the outer
// operation" after a successful reconnect).
func (c *Client) withReconnect(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !errors.Is(err, mailcore.ErrIoLost) {
		return err
	}
	if rerr := c.reconnect(ctx); rerr != nil {
		return rerr
	}
	return op()
}
