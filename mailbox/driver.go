// Package mailbox defines the polymorphic storage surface both the POP and
// IMAP protocol packages implement, so the higher-level send/resend and
// viewer pipelines never need to know which wire protocol backs a given
// account (SPEC_FULL.md §4.H).
package mailbox

import (
	"context"
	"os"

	"github.com/tern-mail/mailcore"
)

// OpenResult is the outcome of opening a mailbox.
type OpenResult int

const (
	OpenOK OpenResult = iota
	OpenNoMail
	OpenErr
)

// CheckResult is the outcome of polling a mailbox for new activity.
type CheckResult int

const (
	CheckOK CheckResult = iota
	CheckNewMail
	CheckErr
)

// Type is the storage kind path_probe identifies.
type Type int

const (
	TypeUnknown Type = iota
	TypePOP
	TypeIMAP
	TypeMbox
	TypeMaildir
	TypeMH
)

// Message is the minimal per-message handle a Driver hands back from
// MsgOpen: enough to let send/resend and the mime pipeline read the
// message's bytes and merge an updated cached header back in.
type Message struct {
	UID    string
	Header mailcore.CachedHeader
	Body   *os.File
}

// Driver is the storage interface both pop.Client and imap.Client
// implement (SPEC_FULL.md §4.H / spec.md's ac_owns_path family). A local
// mbox/Maildir/MH driver would implement it too, but one isn't built here
// — local mailbox formats are a Non-goal; only TestDriver exists, to give
// the send package something to exercise in tests.
type Driver interface {
	// OwnsPath reports whether this driver is responsible for path under
	// account.
	OwnsPath(account *mailcore.Account, path string) bool
	// Add registers a new mailbox for account, creating server/local state
	// as needed.
	Add(ctx context.Context, account *mailcore.Account, mailboxPath string) error

	// Open prepares mailboxPath for reading (SELECT for IMAP, a fresh
	// STAT/UIDL round-trip for POP).
	Open(ctx context.Context, mailboxPath string) (OpenResult, error)
	// Check polls for new activity without a full re-open.
	Check(ctx context.Context) (CheckResult, error)
	// Sync flushes pending flag/deletion changes to the server.
	Sync(ctx context.Context) error
	// Close releases the mailbox, expunging if the protocol requires it.
	Close(ctx context.Context) error

	// MsgOpen prepares message uid for reading, returning a handle whose
	// Body is positioned at the start of the raw RFC 5322 bytes.
	MsgOpen(ctx context.Context, uid string) (*Message, error)
	// MsgClose releases resources MsgOpen acquired (temp files, server
	// handles).
	MsgClose(ctx context.Context, msg *Message) error
	// MsgSaveHCache persists msg's header back to the header cache, used
	// after a flag change or a first successful body fetch populates
	// BodySize/BodyLines.
	MsgSaveHCache(ctx context.Context, msg *Message) error

	// PathProbe classifies path without committing to opening it.
	PathProbe(path string, stat os.FileInfo) Type
	// PathCanon returns path in the driver's canonical form (e.g. IMAP's
	// modified-UTF-7 mailbox name, or an absolute local path).
	PathCanon(path string) (string, error)
	// PathParent returns the parent of path in the driver's hierarchy, or
	// an error if path is already a hierarchy root.
	PathParent(path string) (string, error)
}
