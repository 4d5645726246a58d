package pop

import (
	"fmt"

	"github.com/tern-mail/mailcore"
)

// MarkDeleted schedules uid for deletion on the next Sync. It is POP-
// specific surface beyond mailbox.Driver — IMAP expresses the same intent
// through Session.Store(\Deleted), which has no POP analogue since DELE
// has no "unset" short of RSET.
func (c *Client) MarkDeleted(uid string) {
	if c.deleted == nil {
		c.deleted = make(map[string]bool)
	}
	c.deleted[uid] = true
}

// sync implements spec.md §4.F's "Sync (delete committed messages)": send
// DELE for every message marked deleted with a known refno, drop its
// cache entries on success, and only send QUIT if every DELE succeeded —
// a single failure leaves the whole session's messages intact, since the
// server only commits deletions on a graceful QUIT.
func (c *Client) sync() error {
	allOK := true
	for uid := range c.deleted {
		refno, ok := c.uidToRefno[uid]
		if !ok {
			continue // already gone from this session's index
		}
		if err := c.session.Dele(refno); err != nil {
			allOK = false
			continue
		}
		delete(c.deleted, uid)
		if c.bodies != nil {
			c.bodies.Del(uid)
		}
		c.headers.Delete(uid)
	}

	if !allOK {
		return fmt.Errorf("%w: pop: one or more DELE commands failed, QUIT suppressed to leave messages intact", mailcore.ErrProtocol)
	}
	if err := c.session.Quit(); err != nil {
		return err
	}
	return nil
}
