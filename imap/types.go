// Package imap implements the IMAP4rev1/IMAP4rev2 client side of the
// mailcore access core: a single-threaded command pipeline (SPEC_FULL.md
// §4.G), the untagged-response bookkeeping that keeps MSN/UID state
// coherent across EXISTS/EXPUNGE/FETCH, and the driver that adapts it to
// mailcore's mailbox.Driver interface.
package imap

import (
	"fmt"
	"strings"
	"time"

	"github.com/tern-mail/mailcore"
)

// ConnState is the IMAP session state machine position (RFC 9051 §3).
type ConnState int

const (
	ConnStateNotAuthenticated ConnState = iota
	ConnStateAuthenticated
	ConnStateSelected
	ConnStateLogout
)

func (s ConnState) String() string {
	switch s {
	case ConnStateNotAuthenticated:
		return "not authenticated"
	case ConnStateAuthenticated:
		return "authenticated"
	case ConnStateSelected:
		return "selected"
	case ConnStateLogout:
		return "logout"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Flag is an IMAP message flag (RFC 9051 §2.3.2).
type Flag string

const (
	FlagSeen     Flag = "\\Seen"
	FlagAnswered Flag = "\\Answered"
	FlagFlagged  Flag = "\\Flagged"
	FlagDeleted  Flag = "\\Deleted"
	FlagDraft    Flag = "\\Draft"
	FlagRecent   Flag = "\\Recent"
	FlagWildcard Flag = "\\*"
)

// MailboxAttr is a mailbox attribute reported by LIST/LSUB.
type MailboxAttr string

const (
	MailboxAttrNoInferiors   MailboxAttr = "\\Noinferiors"
	MailboxAttrNoSelect      MailboxAttr = "\\Noselect"
	MailboxAttrMarked        MailboxAttr = "\\Marked"
	MailboxAttrUnmarked      MailboxAttr = "\\Unmarked"
	MailboxAttrHasChildren   MailboxAttr = "\\HasChildren"
	MailboxAttrHasNoChildren MailboxAttr = "\\HasNoChildren"
	MailboxAttrNonExistent   MailboxAttr = "\\NonExistent"
	MailboxAttrSubscribed    MailboxAttr = "\\Subscribed"
	MailboxAttrRemote        MailboxAttr = "\\Remote"

	MailboxAttrAll     MailboxAttr = "\\All"
	MailboxAttrArchive MailboxAttr = "\\Archive"
	MailboxAttrDrafts  MailboxAttr = "\\Drafts"
	MailboxAttrFlagged MailboxAttr = "\\Flagged"
	MailboxAttrJunk    MailboxAttr = "\\Junk"
	MailboxAttrSent    MailboxAttr = "\\Sent"
	MailboxAttrTrash   MailboxAttr = "\\Trash"
)

// BodySectionName is a BODY[...] section specifier for FETCH.
type BodySectionName struct {
	Specifier string
	Part      []int
	Fields    []string
	NotFields bool
	Peek      bool
	Partial   *SectionPartial
}

// SectionPartial is the <offset.count> suffix of a BODY section.
type SectionPartial struct {
	Offset int64
	Count  int64
}

// BodyStructure is the parsed BODYSTRUCTURE of a message, mirroring the
// MIME tree mailcore/mime builds from the fetched bytes, without requiring
// a body fetch.
type BodyStructure struct {
	Type              string
	Subtype           string
	Params            map[string]string
	ID                string
	Description       string
	Encoding          string
	Size              uint32
	Envelope          *mailcore.Envelope
	BodyStructure     *BodyStructure
	Lines             uint32
	MD5               string
	Disposition       string
	DispositionParams map[string]string
	Language          []string
	Location          string
	Children          []BodyStructure
}

// IsMultipart reports whether this node is a multipart/* container.
func (bs *BodyStructure) IsMultipart() bool {
	return strings.EqualFold(bs.Type, "multipart")
}

// InternalDate is the server-assigned delivery timestamp (RFC 9051 §2.3.3).
type InternalDate time.Time

const InternalDateLayout = "02-Jan-2006 15:04:05 -0700"

func (d InternalDate) String() string {
	return time.Time(d).Format(InternalDateLayout)
}

// CreateOptions configures a CREATE command (RFC 6154 special-use hint).
type CreateOptions struct {
	SpecialUse MailboxAttr
}
