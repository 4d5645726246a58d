package pop

import (
	"bufio"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/cache"
)

func init() {
	// Registering the charset package's decoders lets message.Read handle
	// non-UTF-8 header encodings without every caller importing it just
	// for its side effect.
	message.CharsetReader = charset.Reader
}

// fetchHeaders implements spec.md §4.F's pop_fetch_headers: rebuild the
// UID↔refno index from a fresh UIDL, then fetch and cache the header of
// every message this session hasn't seen before.
func (c *Client) fetchHeaders() error {
	entries, err := c.session.Uidl()
	if err != nil {
		return err
	}

	previous := c.uidToRefno
	newUIDToRefno := make(map[string]int, len(entries))
	newRefnoToUID := make(map[int]string, len(entries))
	var fresh []UIDLEntry
	for _, e := range entries {
		newUIDToRefno[e.UID] = e.Refno
		newRefnoToUID[e.Refno] = e.UID
		if _, known := previous[e.UID]; !known {
			fresh = append(fresh, e)
		}
	}
	c.uidToRefno = newUIDToRefno
	c.refnoToUID = newRefnoToUID

	for _, e := range fresh {
		if h, _ := c.headers.Fetch(e.UID); h != nil {
			continue // header-cache hit: nothing to fetch over the wire
		}
		if err := c.fetchOneHeader(e); err != nil {
			return err
		}
	}
	return nil
}

// fetchOneHeader issues LIST (for the reported total length) and TOP n 0
// (for the header block), parses the header via go-message, and stores
// the resulting CachedHeader — the per-message body of step 3.
func (c *Client) fetchOneHeader(e UIDLEntry) error {
	total, err := c.session.ListOne(e.Refno)
	if err != nil {
		return err
	}
	raw, err := c.session.Top(e.Refno, 0)
	if err != nil {
		return err
	}

	entity, err := message.Read(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("%w: parsing headers for uid %s: %v", mailcore.ErrDecode, e.UID, err)
	}

	bodySize := total - int64(len(raw))
	if bodySize < 0 {
		bodySize = 0
	}

	h := &mailcore.CachedHeader{
		Key:       e.UID,
		Envelope:  envelopeFromHeader(entity.Header),
		BodySize:  bodySize,
		BodyLines: countLines(raw),
	}
	return c.headers.Store(h)
}

// envelopeFromHeader builds an Envelope from a parsed RFC 5322 header,
// mirroring the address/date handling foxcpp-maddy's submission pipeline
// uses (net/mail.ParseAddressList over message.Header.Get).
func envelopeFromHeader(h message.Header) mailcore.Envelope {
	env := mailcore.Envelope{
		Subject:    h.Get("Subject"),
		MessageID:  strings.Trim(h.Get("Message-Id"), "<>"),
		InReplyTo:  strings.Trim(h.Get("In-Reply-To"), "<>"),
		From:       addressList(h.Get("From")),
		Sender:     addressList(h.Get("Sender")),
		ReplyTo:    addressList(h.Get("Reply-To")),
		To:         addressList(h.Get("To")),
		Cc:         addressList(h.Get("Cc")),
		Bcc:        addressList(h.Get("Bcc")),
	}
	if refs := h.Get("References"); refs != "" {
		env.References = strings.Fields(refs)
	}
	if d, err := mail.ParseDate(h.Get("Date")); err == nil {
		env.Date = d
	} else {
		env.Date = time.Time{}
	}
	return env
}

func addressList(value string) []mailcore.Address {
	if value == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(value)
	if err != nil {
		return nil
	}
	addrs := make([]mailcore.Address, 0, len(parsed))
	for _, a := range parsed {
		mailbox, host, ok := strings.Cut(a.Address, "@")
		if !ok {
			mailbox = a.Address
		}
		addrs = append(addrs, mailcore.Address{Name: a.Name, Mailbox: mailbox, Host: host})
	}
	return addrs
}

func countLines(b []byte) int {
	n := 0
	scanner := bufio.NewScanner(strings.NewReader(string(b)))
	for scanner.Scan() {
		n++
	}
	return n
}

// pruneBodyCache deletes any committed body-cache entry whose id no
// longer appears in the current UIDL listing (spec.md §4.F step 5, "clean
// message cache").
func (c *Client) pruneBodyCache() {
	if c.bodies == nil {
		return
	}
	c.bodies.List(func(id string, bc *cache.BodyCache) bool {
		if _, ok := c.uidToRefno[id]; !ok {
			bc.Del(id)
		}
		return false
	})
}

// IsRead reports whether uid's body is already cached locally — the proxy
// spec.md §4.F step 4 uses for the "read" flag ("a message is read iff
// its body is cached").
func (c *Client) IsRead(uid string) bool {
	if c.bodies == nil {
		return false
	}
	ok, _ := c.bodies.Exists(uid)
	return ok
}
