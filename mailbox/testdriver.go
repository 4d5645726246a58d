package mailbox

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/tern-mail/mailcore"
)

// TestDriver is a minimal in-memory Driver, existing only so the send
// package has something to exercise in tests without a live POP/IMAP
// server (SPEC_FULL.md §4.H). It is not a general-purpose local mailbox
// format — local mbox/Maildir/MH drivers remain out of scope.
type TestDriver struct {
	Account   *mailcore.Account
	Messages  map[string][]byte
	Headers   map[string]mailcore.CachedHeader
	closed    bool
}

// NewTestDriver returns an empty TestDriver.
func NewTestDriver(account *mailcore.Account) *TestDriver {
	return &TestDriver{
		Account:  account,
		Messages: make(map[string][]byte),
		Headers:  make(map[string]mailcore.CachedHeader),
	}
}

// PutMessage seeds uid's raw message bytes and header for later MsgOpen.
func (d *TestDriver) PutMessage(uid string, rfc822 []byte, header mailcore.CachedHeader) {
	d.Messages[uid] = rfc822
	d.Headers[uid] = header
}

func (d *TestDriver) OwnsPath(account *mailcore.Account, p string) bool {
	return account == d.Account && strings.HasPrefix(p, "test:")
}

func (d *TestDriver) Add(ctx context.Context, account *mailcore.Account, mailboxPath string) error {
	return nil
}

func (d *TestDriver) Open(ctx context.Context, mailboxPath string) (OpenResult, error) {
	if len(d.Messages) == 0 {
		return OpenNoMail, nil
	}
	return OpenOK, nil
}

func (d *TestDriver) Check(ctx context.Context) (CheckResult, error) {
	return CheckOK, nil
}

func (d *TestDriver) Sync(ctx context.Context) error {
	return nil
}

func (d *TestDriver) Close(ctx context.Context) error {
	d.closed = true
	return nil
}

func (d *TestDriver) MsgOpen(ctx context.Context, uid string) (*Message, error) {
	raw, ok := d.Messages[uid]
	if !ok {
		return nil, fmt.Errorf("%w: no such message %q", mailcore.ErrProtocol, uid)
	}
	f, err := os.CreateTemp("", "mailcore-testdriver-*.eml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	return &Message{UID: uid, Header: d.Headers[uid], Body: f}, nil
}

func (d *TestDriver) MsgClose(ctx context.Context, msg *Message) error {
	if msg.Body == nil {
		return nil
	}
	name := msg.Body.Name()
	msg.Body.Close()
	return os.Remove(name)
}

func (d *TestDriver) MsgSaveHCache(ctx context.Context, msg *Message) error {
	d.Headers[msg.UID] = msg.Header
	return nil
}

func (d *TestDriver) PathProbe(p string, stat os.FileInfo) Type {
	return TypeUnknown
}

func (d *TestDriver) PathCanon(p string) (string, error) {
	return path.Clean(p), nil
}

func (d *TestDriver) PathParent(p string) (string, error) {
	parent := path.Dir(p)
	if parent == p {
		return "", fmt.Errorf("%w: %q has no parent", mailcore.ErrProtocol, p)
	}
	return parent, nil
}

var _ Driver = (*TestDriver)(nil)
