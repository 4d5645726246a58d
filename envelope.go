package mailcore

import (
	"net/mail"
	"time"
)

// ParseDate parses an RFC 5322 Date header value, the format IMAP's
// ENVELOPE date field and POP/IMAP message headers both carry.
func ParseDate(s string) (time.Time, error) {
	return mail.ParseDate(s)
}

// Address is a single RFC 5322 mailbox, split the way the original
// program's envelope parser always has: display name plus local-part and
// domain rather than one opaque string.
type Address struct {
	Name    string
	Mailbox string
	Host    string
}

// String renders "Name <mailbox@host>", or just "mailbox@host" if Name is
// empty.
func (a Address) String() string {
	addr := a.Mailbox + "@" + a.Host
	if a.Name != "" {
		return a.Name + " <" + addr + ">"
	}
	return addr
}

// Envelope carries the RFC 5322 header fields the root of every message
// (POP or IMAP) exposes, independent of how that message's body is
// decoded.
type Envelope struct {
	Date       time.Time
	Subject    string
	From       []Address
	Sender     []Address
	ReplyTo    []Address
	To         []Address
	Cc         []Address
	Bcc        []Address
	MessageID  string
	InReplyTo  string
	References []string
}

// CachedHeader is the unit of storage in the header cache: a parsed
// envelope plus the bookkeeping needed to avoid re-fetching a message
// body whose length is already known (SPEC_FULL.md §4.D).
type CachedHeader struct {
	// Key is the UID (POP) or mailbox-specific identifier (IMAP) this
	// entry is stored under.
	Key      string
	Envelope Envelope
	// BodyLines/BodySize mirror what pop_fetch_headers computes from
	// LIST+TOP: total octets reported by LIST minus the header portion.
	BodySize  int64
	BodyLines int
}
