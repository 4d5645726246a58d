package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/imap/wire/utf7"
)

// ListEntry is one line of a LIST/LSUB response.
type ListEntry struct {
	Attrs     []MailboxAttr
	Delimiter string
	Name      string
}

// StatusAttr is one STATUS data item the caller may request.
type StatusAttr string

const (
	StatusAttrMessages      StatusAttr = "MESSAGES"
	StatusAttrRecent        StatusAttr = "RECENT"
	StatusAttrUIDNext       StatusAttr = "UIDNEXT"
	StatusAttrUIDValidity   StatusAttr = "UIDVALIDITY"
	StatusAttrUnseen        StatusAttr = "UNSEEN"
	StatusAttrSize          StatusAttr = "SIZE"
	StatusAttrHighestModSeq StatusAttr = "HIGHESTMODSEQ"
)

// StatusResult holds the attribute values a STATUS command returned.
type StatusResult struct {
	Mailbox       string
	Messages      uint32
	Recent        uint32
	UIDNext       uint32
	UIDValidity   uint32
	Unseen        uint32
	Size          uint64
	HighestModSeq uint64
}

// Select opens mailbox in read-write mode (RFC 9051 §6.3.1), replacing any
// previously selected mailbox state.
func (s *Session) Select(mailbox string) error {
	return s.selectOrExamine(CommandSelect, mailbox)
}

// Examine opens mailbox read-only (RFC 9051 §6.3.2).
func (s *Session) Examine(mailbox string) error {
	return s.selectOrExamine(CommandExamine, mailbox)
}

func (s *Session) selectOrExamine(verb, mailbox string) error {
	s.Mailbox = MailboxStatus{Name: mailbox}
	s.ReopenFlags = 0
	sr, _, err := s.Command(verb, mailboxNameArg(mailbox))
	if err != nil {
		return err
	}
	if sr.Code == ResponseCodeReadOnly {
		s.Mailbox.ReadOnly = true
	}
	s.State = ConnStateSelected
	return nil
}

// Close issues CLOSE, which expunges \Deleted messages and returns to the
// authenticated state (RFC 9051 §6.4.2).
func (s *Session) Close() error {
	if _, _, err := s.Command(CommandClose, ""); err != nil {
		return err
	}
	s.State = ConnStateAuthenticated
	s.Mailbox = MailboxStatus{}
	s.ReopenFlags = 0
	return nil
}

// Unselect is CLOSE without the implicit expunge (RFC 3691).
func (s *Session) Unselect() error {
	if !s.Caps.Has(CapUnselect) {
		return fmt.Errorf("%w: server does not advertise UNSELECT", mailcore.ErrServerRefused)
	}
	if _, _, err := s.Command(CommandUnselect, ""); err != nil {
		return err
	}
	s.State = ConnStateAuthenticated
	s.Mailbox = MailboxStatus{}
	s.ReopenFlags = 0
	return nil
}

// Expunge permanently removes \Deleted messages from the selected mailbox.
// The resulting EXPUNGE untagged responses drive OnExpunge as they arrive.
func (s *Session) Expunge() error {
	_, _, err := s.Command(CommandExpunge, "")
	return err
}

// Create creates a new mailbox, optionally with a special-use hint
// (RFC 6154).
func (s *Session) Create(mailbox string, opts *CreateOptions) error {
	args := mailboxNameArg(mailbox)
	if opts != nil && opts.SpecialUse != "" {
		args += fmt.Sprintf(" (USE (%s))", opts.SpecialUse)
	}
	_, _, err := s.Command(CommandCreate, args)
	return err
}

// Delete removes a mailbox.
func (s *Session) Delete(mailbox string) error {
	_, _, err := s.Command(CommandDelete, mailboxNameArg(mailbox))
	return err
}

// Rename renames a mailbox.
func (s *Session) Rename(oldName, newName string) error {
	args := mailboxNameArg(oldName) + " " + mailboxNameArg(newName)
	_, _, err := s.Command(CommandRename, args)
	return err
}

// Subscribe adds mailbox to the subscribed set.
func (s *Session) Subscribe(mailbox string) error {
	_, _, err := s.Command(CommandSubscribe, mailboxNameArg(mailbox))
	return err
}

// Unsubscribe removes mailbox from the subscribed set.
func (s *Session) Unsubscribe(mailbox string) error {
	_, _, err := s.Command(CommandUnsubscribe, mailboxNameArg(mailbox))
	return err
}

// List returns the mailboxes matching reference/pattern (RFC 9051 §6.3.9).
func (s *Session) List(reference, pattern string) ([]ListEntry, error) {
	args := mailboxNameArg(reference) + " " + mailboxNameArg(pattern)
	_, untagged, err := s.Command(CommandList, args)
	if err != nil {
		return nil, err
	}
	return parseListLines(untagged, "LIST "), nil
}

// Lsub is List restricted to the subscribed set (superseded by LIST
// RETURN (SUBSCRIBED) in IMAP4rev2, kept for IMAP4rev1 servers).
func (s *Session) Lsub(reference, pattern string) ([]ListEntry, error) {
	args := mailboxNameArg(reference) + " " + mailboxNameArg(pattern)
	_, untagged, err := s.Command(CommandLsub, args)
	if err != nil {
		return nil, err
	}
	return parseListLines(untagged, "LSUB "), nil
}

func parseListLines(lines []string, prefix string) []ListEntry {
	var entries []ListEntry
	for _, line := range lines {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		rest := strings.TrimPrefix(line, prefix)
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, "(") {
			continue
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			continue
		}
		attrList := rest[1:end]
		var attrs []MailboxAttr
		for _, a := range strings.Fields(attrList) {
			attrs = append(attrs, MailboxAttr(a))
		}
		rest = strings.TrimSpace(rest[end+1:])
		delim, name := parseDelimiterAndName(rest)
		entries = append(entries, ListEntry{Attrs: attrs, Delimiter: delim, Name: name})
	}
	return entries
}

func parseDelimiterAndName(s string) (delim, name string) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "NIL") {
		rest := strings.TrimSpace(s[3:])
		return "", unquoteMailboxName(rest)
	}
	if strings.HasPrefix(s, "\"") {
		end := strings.IndexByte(s[1:], '"')
		if end >= 0 {
			delim = s[1 : end+1]
			rest := strings.TrimSpace(s[end+2:])
			return delim, unquoteMailboxName(rest)
		}
	}
	fields := strings.SplitN(s, " ", 2)
	if len(fields) == 2 {
		return fields[0], unquoteMailboxName(fields[1])
	}
	return "", unquoteMailboxName(s)
}

func unquoteMailboxName(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	decoded, err := utf7.Decode(s)
	if err != nil {
		return s
	}
	return decoded
}

// Status requests mailbox attributes without selecting it (RFC 9051
// §6.3.10).
func (s *Session) Status(mailbox string, attrs []StatusAttr) (*StatusResult, error) {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = string(a)
	}
	args := mailboxNameArg(mailbox) + " (" + strings.Join(names, " ") + ")"
	_, untagged, err := s.Command(CommandStatus, args)
	if err != nil {
		return nil, err
	}
	result := &StatusResult{Mailbox: mailbox}
	for _, line := range untagged {
		if !strings.HasPrefix(line, "STATUS ") {
			continue
		}
		rest := strings.TrimPrefix(line, "STATUS ")
		start := strings.IndexByte(rest, '(')
		end := strings.LastIndexByte(rest, ')')
		if start < 0 || end < 0 {
			continue
		}
		fields := strings.Fields(rest[start+1 : end])
		for i := 0; i+1 < len(fields); i += 2 {
			parseStatusAttr(result, StatusAttr(fields[i]), fields[i+1])
		}
	}
	return result, nil
}

func parseStatusAttr(r *StatusResult, attr StatusAttr, val string) {
	switch attr {
	case StatusAttrMessages:
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			r.Messages = uint32(n)
		}
	case StatusAttrRecent:
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			r.Recent = uint32(n)
		}
	case StatusAttrUIDNext:
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			r.UIDNext = uint32(n)
		}
	case StatusAttrUIDValidity:
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			r.UIDValidity = uint32(n)
		}
	case StatusAttrUnseen:
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			r.Unseen = uint32(n)
		}
	case StatusAttrSize:
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			r.Size = n
		}
	case StatusAttrHighestModSeq:
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			r.HighestModSeq = n
		}
	}
}

// Search runs a SEARCH and returns the matching sequence numbers
// (RFC 9051 §6.4.4). Pass uid=true to issue UID SEARCH instead.
func (s *Session) Search(criteria string, uid bool) ([]uint32, error) {
	verb, args := CommandSearch, criteria
	if uid {
		verb, args = CommandUID, CommandSearch+" "+criteria
	}
	_, untagged, err := s.Command(verb, args)
	if err != nil {
		return nil, err
	}
	var nums []uint32
	for _, line := range untagged {
		if !strings.HasPrefix(line, "SEARCH") {
			continue
		}
		for _, f := range strings.Fields(strings.TrimPrefix(line, "SEARCH")) {
			if n, err := strconv.ParseUint(f, 10, 32); err == nil {
				nums = append(nums, uint32(n))
			}
		}
	}
	return nums, nil
}

// Store applies a flag change to set (RFC 9051 §6.4.6), returning the
// FETCH lines the server sent back so the caller can update local flag
// state; pass silent=true to request .SILENT and suppress them.
func (s *Session) Store(set NumSet, mode StoreMode, flags []Flag, silent bool, uid bool) ([]string, error) {
	item := string(mode)
	if silent {
		item += ".SILENT"
	}
	flagStrs := make([]string, len(flags))
	for i, f := range flags {
		flagStrs[i] = string(f)
	}
	args := fmt.Sprintf("%s %s (%s)", set.String(), item, strings.Join(flagStrs, " "))
	verb := CommandStore
	if uid {
		verb, args = CommandUID, CommandStore+" "+args
	}
	_, untagged, err := s.Command(verb, args)
	if err != nil {
		return nil, err
	}
	return untagged, nil
}

// StoreMode is the flag-update verb for STORE.
type StoreMode string

const (
	StoreModeSet   StoreMode = "FLAGS"
	StoreModeAdd   StoreMode = "+FLAGS"
	StoreModeRemove StoreMode = "-FLAGS"
)

// Copy copies set into dest (RFC 9051 §6.4.7).
func (s *Session) Copy(set NumSet, dest string, uid bool) error {
	args := set.String() + " " + mailboxNameArg(dest)
	verb := CommandCopy
	if uid {
		verb, args = CommandUID, CommandCopy+" "+args
	}
	_, _, err := s.Command(verb, args)
	return err
}

// Move moves set into dest (RFC 6851).
func (s *Session) Move(set NumSet, dest string, uid bool) error {
	if !s.Caps.Has(CapMove) {
		return fmt.Errorf("%w: server does not advertise MOVE", mailcore.ErrServerRefused)
	}
	args := set.String() + " " + mailboxNameArg(dest)
	verb := CommandMove
	if uid {
		verb, args = CommandUID, CommandMove+" "+args
	}
	_, _, err := s.Command(verb, args)
	return err
}

// Append uploads a new message into mailbox via a synchronizing literal
// (RFC 9051 §6.3.11). The server's continuation request is awaited before
// the literal bytes are sent.
func (s *Session) Append(mailbox string, flags []Flag, when time.Time, body []byte) error {
	flagStrs := make([]string, len(flags))
	for i, f := range flags {
		flagStrs[i] = string(f)
	}
	var b strings.Builder
	b.WriteString(mailboxNameArg(mailbox))
	if len(flagStrs) > 0 {
		b.WriteString(" (" + strings.Join(flagStrs, " ") + ")")
	}
	if !when.IsZero() {
		b.WriteString(" \"" + when.Format(InternalDateLayout) + "\"")
	}
	b.WriteString(fmt.Sprintf(" {%d}", len(body)))

	tag, err := s.queue(CommandAppend, b.String())
	if err != nil {
		return err
	}
	if _, err := s.ReadContinuation(tag); err != nil {
		return err
	}
	if err := s.conn.Write(body); err != nil {
		return err
	}
	if err := s.SendLine(""); err != nil {
		return err
	}
	sr, _, err := s.awaitTag(tag)
	if err != nil {
		return err
	}
	if sr.Type == StatusResponseTypeNO || sr.Type == StatusResponseTypeBAD {
		return &IMAPError{sr}
	}
	return nil
}

// Namespace queries the personal/other-users/shared namespace roots
// (RFC 2342).
func (s *Session) Namespace() ([]string, error) {
	if !s.Caps.Has(CapNamespace) {
		return nil, fmt.Errorf("%w: server does not advertise NAMESPACE", mailcore.ErrServerRefused)
	}
	_, untagged, err := s.Command(CommandNamespace, "")
	if err != nil {
		return nil, err
	}
	return untagged, nil
}

// GetQuotaRoot looks up the quota roots governing mailbox (RFC 9208).
func (s *Session) GetQuotaRoot(mailbox string) ([]string, error) {
	if !s.Caps.Has(CapQuota) {
		return nil, fmt.Errorf("%w: server does not advertise QUOTA", mailcore.ErrServerRefused)
	}
	_, untagged, err := s.Command(CommandGetQuotaRoot, mailboxNameArg(mailbox))
	return untagged, err
}

// SetACL grants identifier the given rights on mailbox (RFC 4314).
func (s *Session) SetACL(mailbox, identifier, rights string) error {
	if !s.Caps.Has(CapACL) {
		return fmt.Errorf("%w: server does not advertise ACL", mailcore.ErrServerRefused)
	}
	args := mailboxNameArg(mailbox) + " " + quoteArg(identifier) + " " + quoteArg(rights)
	_, _, err := s.Command(CommandSetACL, args)
	return err
}

// GetMetadata retrieves server/mailbox annotations (RFC 5464).
func (s *Session) GetMetadata(mailbox string, entries []string) ([]string, error) {
	if !s.Caps.Has(CapMetadata) {
		return nil, fmt.Errorf("%w: server does not advertise METADATA", mailcore.ErrServerRefused)
	}
	args := mailboxNameArg(mailbox) + " (" + strings.Join(entries, " ") + ")"
	_, untagged, err := s.Command(CommandGetMetadata, args)
	return untagged, err
}

func mailboxNameArg(name string) string {
	if strings.EqualFold(name, "INBOX") {
		return "INBOX"
	}
	return quoteArg(utf7.Encode(name))
}
