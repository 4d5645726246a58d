package imap

import (
	"strconv"
	"strings"
)

// dispatchUntaggedLine handles one untagged response body (the text after
// "* "). cur is the command currently at the front of the ring, or nil if
// none is outstanding (as for the server greeting); during IDLE it is the
// IDLE command itself. Lines
// this function doesn't fully interpret itself are appended to cur's
// untagged list verbatim, for the issuing command (LIST, STATUS, SEARCH,
// ...) to parse once it gets control back.
func (s *Session) dispatchUntaggedLine(line string, cur *pendingCmd) {
	if line == "" {
		return
	}

	if spaceIdx := strings.IndexByte(line, ' '); spaceIdx > 0 {
		if num, err := strconv.ParseUint(line[:spaceIdx], 10, 32); err == nil {
			s.dispatchNumeric(uint32(num), line[spaceIdx+1:], cur)
			return
		}
	}

	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "OK"), strings.HasPrefix(upper, "NO"),
		strings.HasPrefix(upper, "BAD"), strings.HasPrefix(upper, "PREAUTH"):
		s.dispatchResponseCode(line)
	case strings.HasPrefix(upper, "BYE"):
		s.State = ConnStateLogout
		s.logger.Info("imap: server sent BYE", "text", line)
	case strings.HasPrefix(upper, "CAPABILITY "):
		s.setCapabilities(line[len("CAPABILITY "):])
	case strings.HasPrefix(upper, "FLAGS "):
		s.Mailbox.Flags = parseFlagList(line[len("FLAGS "):])
	case strings.HasPrefix(upper, "ENABLED "):
		for _, name := range strings.Fields(line[len("ENABLED "):]) {
			s.Enabled[strings.ToUpper(name)] = true
		}
	case strings.HasPrefix(upper, "MYRIGHTS "):
		// Updates the ACL set whether or not a MYRIGHTS command is
		// outstanding (RFC 4314 §3.7 lets a server send this any time
		// rights change), and still surfaces the raw line to a pending
		// MYRIGHTS command's own untagged-line parser (Session.MyRights).
		s.applyMyRights(line[len("MYRIGHTS "):])
		if cur != nil {
			cur.untagged = append(cur.untagged, line)
		}
	default:
		if cur != nil {
			cur.untagged = append(cur.untagged, line)
		}
	}
}

func (s *Session) dispatchNumeric(num uint32, rest string, cur *pendingCmd) {
	upper := strings.ToUpper(rest)
	switch {
	case upper == "EXISTS":
		s.applyExists(num)
		if s.OnExists != nil {
			s.OnExists(num)
		}
	case upper == "RECENT":
		s.Mailbox.Recent = num
	case upper == "EXPUNGE":
		// Every MSN above the expunged one shifts down by one. The session
		// doesn't track individual message records (that's driver.go's
		// job, keyed off live fetches), so it only decrements the live
		// count here and lets driver.go's expunge handler (Client.onExpunge)
		// renumber its own MSN index from the same OnExpunge hook. ExpungePending stays
		// set until cmdFinish runs, so an EXISTS arriving in the same
		// batch doesn't commit a new-mail count computed against a
		// pre-expunge message total.
		if s.Mailbox.NumMessages > 0 {
			s.Mailbox.NumMessages--
		}
		s.ReopenFlags |= ReopenFlagExpungePending
		if s.OnExpunge != nil {
			s.OnExpunge(num)
		}
	case strings.HasPrefix(upper, "FETCH "):
		data := rest[len("FETCH "):]
		if cur != nil && !s.idling {
			cur.untagged = append(cur.untagged, strconv.FormatUint(uint64(num), 10)+" FETCH "+data)
			return
		}
		// No command claims this line (none is outstanding, or only IDLE
		// is) — an unsolicited FETCH, typically
		// another client's STORE observed during IDLE. Pull FLAGS out
		// directly rather than dropping the notification.
		if flags, ok := parseFetchFlags(data); ok && s.OnFlags != nil {
			s.OnFlags(flags)
		}
	default:
		if cur != nil {
			cur.untagged = append(cur.untagged, strconv.FormatUint(uint64(num), 10)+" "+rest)
		}
	}
}

// applyExists implements the three-way EXISTS comparison against the
// mailbox's last known message count: a restatement of the current count
// is ignored, a count that dropped with no expunge pending is logged (some
// servers under-count) rather than applied, and only a genuine increase
// with no expunge pending schedules a new-mail count for cmdFinish to
// commit.
func (s *Session) applyExists(num uint32) {
	switch {
	case num == s.Mailbox.NumMessages:
	case num < s.Mailbox.NumMessages:
		if !s.ReopenFlags.Has(ReopenFlagExpungePending) {
			s.logger.Warn("imap: EXISTS count below known message count", "got", num, "have", s.Mailbox.NumMessages)
		}
	case !s.ReopenFlags.Has(ReopenFlagExpungePending):
		s.pendingNewMailCount = num
		s.ReopenFlags |= ReopenFlagNewmailPending
	}
}

// parseFetchFlags pulls a FLAGS (...) sub-list out of a FETCH data-item
// parenthesized list, e.g. "(FLAGS (\Seen \Answered))".
func parseFetchFlags(fetchData string) ([]Flag, bool) {
	upper := strings.ToUpper(fetchData)
	idx := strings.Index(upper, "FLAGS (")
	if idx < 0 {
		return nil, false
	}
	rest := fetchData[idx+len("FLAGS ("):]
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return nil, false
	}
	return parseFlagList("(" + rest[:end] + ")"), true
}

// dispatchResponseCode updates session-level state from an untagged
// OK/NO/BAD/PREAUTH response code, e.g. "* OK [UIDVALIDITY 1] ..." sent
// during SELECT.
func (s *Session) dispatchResponseCode(line string) {
	start := strings.IndexByte(line, '[')
	if start < 0 {
		return
	}
	end := strings.IndexByte(line[start:], ']')
	if end < 0 {
		return
	}
	inner := line[start+1 : start+end]
	code, arg, _ := strings.Cut(inner, " ")
	switch ResponseCode(strings.ToUpper(code)) {
	case ResponseCodeUIDValidity:
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			s.Mailbox.UIDValidity = uint32(n)
		}
	case ResponseCodeUIDNext:
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			s.Mailbox.UIDNext = uint32(n)
		}
	case ResponseCodeUnseen:
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			s.Mailbox.Unseen = uint32(n)
		}
	case ResponseCodePermanentFlags:
		s.Mailbox.PermanentFlags = parseFlagList(arg)
	case ResponseCodeReadOnly:
		s.Mailbox.ReadOnly = true
	case ResponseCodeReadWrite:
		s.Mailbox.ReadOnly = false
	case ResponseCodeCapability:
		s.setCapabilities(arg)
	case ResponseCodeHighestModSeq:
		if n, err := strconv.ParseUint(arg, 10, 64); err == nil {
			s.Mailbox.HighestModSeq = n
		}
	}
}

// applyMyRights updates the in-memory ACL set from an unsolicited untagged
// "* MYRIGHTS <mailbox> <rights>" line (RFC 4314 §3.7 — a server may send
// this any time a mailbox's effective rights change, not only in reply to
// a client-issued MYRIGHTS). The synchronous reply to a client's own
// MYRIGHTS command (Session.MyRights, extensions.go) parses the same shape
// out of its command's untagged lines; this is the path for a rights
// change no command asked for.
func (s *Session) applyMyRights(rest string) {
	rest = strings.TrimSpace(rest)
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return
	}
	mailbox := unquoteMailboxName(rest[:sp])
	rights := strings.TrimSpace(rest[sp+1:])
	if rights == "" {
		return
	}
	s.ACL[mailbox] = ACLRights(rights)
}

func (s *Session) setCapabilities(list string) {
	s.Caps = NewCapSet()
	for _, tok := range strings.Fields(list) {
		s.Caps.Add(Cap(tok))
	}
}

// parseFlagList parses a parenthesized flag list like "(\Seen \Answered)".
func parseFlagList(s string) []Flag {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil
	}
	fields := strings.Fields(s)
	flags := make([]Flag, len(fields))
	for i, f := range fields {
		flags[i] = Flag(f)
	}
	return flags
}
