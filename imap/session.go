package imap

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/conn"
	"github.com/tern-mail/mailcore/imap/wire"
	"github.com/tern-mail/mailcore/metrics"
)

// cmdRingSize bounds how many commands may be outstanding at once.
// Queuing a command past this bound drains the oldest pending command
// first, per SPEC_FULL.md §4.G ("single-outstanding-command-drains-queue-
// when-full"). Most driver operations queue one command and await it
// immediately; bulk UID FETCH is the one caller that pipelines more than
// one.
const cmdRingSize = 16

// tagWrapAt bounds the tag counter so tags stay short indefinitely on a
// long-lived connection.
const tagWrapAt = 10000

// MailboxStatus is the selected-mailbox state the untagged dispatcher
// keeps current across EXISTS/EXPUNGE/RECENT/FLAGS/STATUS responses.
type MailboxStatus struct {
	Name           string
	NumMessages    uint32
	Recent         uint32
	UIDValidity    uint32
	UIDNext        uint32
	Unseen         uint32
	Flags          []Flag
	PermanentFlags []Flag
	ReadOnly       bool
	HighestModSeq  uint64
}

// ReopenFlag records why the untagged dispatcher deferred applying an
// EXISTS/EXPUNGE update until the command ring drains (spec's reopen_flags
// bitset, cmd_finish's input).
type ReopenFlag int

const (
	ReopenFlagExpungePending ReopenFlag = 1 << iota
	ReopenFlagNewmailPending
	ReopenFlagExpungeExpected
	ReopenFlagAllow
)

// Has reports whether flag is set.
func (rf ReopenFlag) Has(flag ReopenFlag) bool { return rf&flag != 0 }

// pendingCmd is one outstanding command in the ring: its tag, the raw
// untagged response lines the server sent while it was executing, and its
// eventual tagged result.
type pendingCmd struct {
	tag          string
	verb         string
	untagged     []string
	continuation []string
	result       *StatusResponse
}

// Session is the single-threaded IMAP client state machine (SPEC_FULL.md
// §4.G / §5). It never spawns a goroutine: every blocking read happens
// inside Command, awaitTag, or an explicit ReadContinuation call, all
// driven by the caller's own call stack — the cooperative concurrency
// model spec.md §5 requires, in place of the teacher's background-reader
// goroutine (client/reader.go) feeding a channel-based pendingCommands map.
type Session struct {
	conn    *conn.Conn
	enc     *wire.Encoder
	dec     *wire.Decoder
	logger  *slog.Logger
	metrics *metrics.Metrics

	State ConnState
	Caps  *CapSet

	tagCounter int
	cmds       []*pendingCmd
	completed  map[string]*pendingCmd

	Mailbox Mailbox
	Enabled map[string]bool

	// ReopenFlags and pendingNewMailCount hold EXISTS/EXPUNGE bookkeeping
	// that dispatchNumeric defers until cmdFinish runs (the command ring
	// fully drains) — spec's reopen_flags/new_mail_count/cmd_finish.
	ReopenFlags         ReopenFlag
	pendingNewMailCount uint32

	// ACL mirrors the caller's own rights per mailbox name, kept current by
	// both the synchronous MYRIGHTS reply (MyRights) and an unsolicited
	// untagged MYRIGHTS update.
	ACL map[string]ACLRights

	idling bool

	// OnExists/OnExpunge/OnFlags are invoked synchronously whenever the
	// corresponding untagged response is dispatched, whether or not a
	// command is currently outstanding — IDLE notifications arrive this
	// way while the IDLE command itself is the only one pending.
	OnExists  func(n uint32)
	OnExpunge func(n uint32)
	OnFlags   func(flags []Flag)
}

// Mailbox is an alias kept distinct from MailboxStatus so session.go reads
// naturally (s.Mailbox.NumMessages) without stuttering.
type Mailbox = MailboxStatus

// NewSession reads the server greeting over c and returns a ready Session.
func NewSession(c *conn.Conn, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		conn:      c,
		logger:    logger,
		Caps:      NewCapSet(),
		Enabled:   make(map[string]bool),
		ACL:       make(map[string]ACLRights),
		completed: make(map[string]*pendingCmd),
	}
	s.rebuildCodec()

	line, err := s.readResponseLine()
	if err != nil {
		return nil, fmt.Errorf("%w: reading greeting: %v", mailcore.ErrIoLost, err)
	}
	switch {
	case strings.HasPrefix(line, "* OK"):
		s.State = ConnStateNotAuthenticated
	case strings.HasPrefix(line, "* PREAUTH"):
		s.State = ConnStateAuthenticated
	case strings.HasPrefix(line, "* BYE"):
		return nil, fmt.Errorf("%w: server rejected connection: %s", mailcore.ErrServerRefused, line)
	default:
		return nil, fmt.Errorf("%w: unexpected greeting: %s", mailcore.ErrProtocol, line)
	}
	s.dispatchUntaggedLine(strings.TrimPrefix(line, "* "), nil)
	return s, nil
}

// SetMetrics attaches optional Prometheus instrumentation to s and its
// underlying connection; nil disables it.
func (s *Session) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.conn.SetMetrics(m)
}

// rebuildCodec (re)wraps the connection's current reader/writer. Callers
// must invoke this again after the connection's StartTLS, which replaces
// the underlying bufio.Reader.
func (s *Session) rebuildCodec() {
	s.enc = wire.NewEncoder(s.conn.Writer())
	s.dec = wire.NewDecoder(s.conn.Reader())
}

func (s *Session) nextTag() string {
	s.tagCounter++
	if s.tagCounter >= tagWrapAt {
		s.tagCounter = 1
	}
	return fmt.Sprintf("A%04d", s.tagCounter)
}

// queue writes one tagged command line and registers it in the ring,
// draining the oldest pending command first if the ring is full.
func (s *Session) queue(verb, args string) (string, error) {
	for len(s.cmds) >= cmdRingSize {
		if err := s.step(); err != nil {
			return "", err
		}
	}

	if required, mismatched := checkCommandState(verb, s.State); mismatched {
		s.logger.Warn("imap: command issued before required state", "verb", verb, "state", s.State, "required", required)
	}

	tag := s.nextTag()
	s.metrics.CommandIssued("imap")
	s.enc.Tag(tag).SP().Atom(verb)
	if args != "" {
		s.enc.SP().RawString(args)
	}
	s.enc.CRLF()
	if err := s.enc.Flush(); err != nil {
		return "", fmt.Errorf("%w: %v", mailcore.ErrIoLost, err)
	}
	s.logger.Debug("imap send", "tag", tag, "verb", verb, "args", args)
	s.cmds = append(s.cmds, &pendingCmd{tag: tag, verb: verb})
	return tag, nil
}

// cmdFinish applies deferred EXISTS/EXPUNGE bookkeeping once the command
// ring is fully drained — spec's cmd_finish. A pending new-mail count only
// lands in Mailbox.NumMessages here, after any expunge coalescing from the
// same batch has already cleared ExpungePending; committing it earlier
// could overwrite a count an interleaved EXPUNGE had just shifted down
// (the S4 scenario: EXPUNGE then a now-stale EXISTS restatement).
func (s *Session) cmdFinish() {
	switch {
	case s.ReopenFlags.Has(ReopenFlagNewmailPending) && !s.ReopenFlags.Has(ReopenFlagExpungePending):
		s.Mailbox.NumMessages = s.pendingNewMailCount
		s.ReopenFlags &^= ReopenFlagNewmailPending
	case s.ReopenFlags.Has(ReopenFlagExpungePending):
		s.ReopenFlags &^= ReopenFlagExpungePending
	}
}

// step reads and dispatches exactly one response line.
func (s *Session) step() error {
	line, err := s.readResponseLine()
	if err != nil {
		s.failAll(err)
		return fmt.Errorf("%w: %v", mailcore.ErrIoLost, err)
	}
	return s.dispatchLine(line)
}

func (s *Session) dispatchLine(line string) error {
	if line == "" {
		return nil
	}
	switch {
	case line[0] == '+':
		if len(s.cmds) > 0 {
			cur := s.cmds[0]
			cur.continuation = append(cur.continuation, line)
		}
		return nil
	case strings.HasPrefix(line, "* "):
		var cur *pendingCmd
		if len(s.cmds) > 0 {
			cur = s.cmds[0]
		}
		s.dispatchUntaggedLine(line[2:], cur)
		return nil
	default:
		tag, sr, err := parseTagged(line)
		if err != nil {
			return fmt.Errorf("%w: %v", mailcore.ErrProtocol, err)
		}
		if len(s.cmds) == 0 {
			s.logger.Warn("imap: tagged response with no pending command", "tag", tag)
			return nil
		}
		cur := s.cmds[0]
		if cur.tag != tag {
			s.logger.Warn("imap: tagged response out of order", "got", tag, "want", cur.tag)
		}
		cur.result = sr
		s.cmds = s.cmds[1:]
		s.completed[cur.tag] = cur
		if len(s.cmds) == 0 {
			s.cmdFinish()
		}
		return nil
	}
}

// failAll completes every outstanding command with err, used when the
// transport itself is lost mid-read.
func (s *Session) failAll(err error) {
	for _, c := range s.cmds {
		c.result = &StatusResponse{Type: StatusResponseTypeBAD, Text: err.Error()}
		s.completed[c.tag] = c
	}
	s.cmds = nil
}

// awaitTag blocks, dispatching lines, until tag's command has completed.
func (s *Session) awaitTag(tag string) (*StatusResponse, []string, error) {
	for {
		if c, ok := s.completed[tag]; ok {
			delete(s.completed, tag)
			return c.result, c.untagged, nil
		}
		if err := s.step(); err != nil {
			return nil, nil, err
		}
	}
}

// Command sends one tagged command and blocks until its response
// completes, returning the status response and the raw untagged lines
// collected while it was outstanding (for callers like LIST/STATUS/SEARCH
// to parse).
func (s *Session) Command(verb, args string) (*StatusResponse, []string, error) {
	tag, err := s.queue(verb, args)
	if err != nil {
		return nil, nil, err
	}
	sr, untagged, err := s.awaitTag(tag)
	if err != nil {
		return nil, nil, err
	}
	if sr.Type == StatusResponseTypeNO || sr.Type == StatusResponseTypeBAD {
		return sr, untagged, &IMAPError{sr}
	}
	return sr, untagged, nil
}

// QueueCommand sends a command without waiting for its response, for
// pipelined bulk operations (e.g. consecutive UID FETCH ranges). The
// caller must eventually call Await for every tag it queues.
func (s *Session) QueueCommand(verb, args string) (string, error) {
	return s.queue(verb, args)
}

// Await blocks for a command previously started with QueueCommand.
func (s *Session) Await(tag string) (*StatusResponse, []string, error) {
	sr, untagged, err := s.awaitTag(tag)
	if err != nil {
		return nil, nil, err
	}
	if sr.Type == StatusResponseTypeNO || sr.Type == StatusResponseTypeBAD {
		return sr, untagged, &IMAPError{sr}
	}
	return sr, untagged, nil
}

// ReadContinuation blocks for the "+ " continuation line a multi-step
// command (AUTHENTICATE, APPEND, IDLE) expects before its next client
// line. It must be called immediately after queuing such a command,
// before any other command is queued.
func (s *Session) ReadContinuation(tag string) (string, error) {
	for {
		for _, c := range s.cmds {
			if c.tag == tag && len(c.continuation) > 0 {
				line := c.continuation[0]
				c.continuation = c.continuation[1:]
				return strings.TrimPrefix(line, "+ "), nil
			}
		}
		if _, ok := s.completed[tag]; ok {
			return "", fmt.Errorf("%w: command completed without a continuation request", mailcore.ErrProtocol)
		}
		if err := s.step(); err != nil {
			return "", err
		}
	}
}

// SendLine writes a raw client line (no tag), used for continuation
// responses during AUTHENTICATE/APPEND/IDLE.
func (s *Session) SendLine(line string) error {
	s.enc.RawString(line).CRLF()
	if err := s.enc.Flush(); err != nil {
		return fmt.Errorf("%w: %v", mailcore.ErrIoLost, err)
	}
	return nil
}

// StartTLS issues STARTTLS, performs the handshake, and re-probes
// CAPABILITY as RFC 9051 §6.2.1 requires (a pre-TLS capability list is not
// trustworthy).
func (s *Session) StartTLS(cfg *tls.Config) error {
	if _, _, err := s.Command(CommandStartTLS, ""); err != nil {
		return fmt.Errorf("%w: STARTTLS refused: %v", mailcore.ErrEncryptionUnavailable, err)
	}
	if err := s.conn.StartTLS(cfg); err != nil {
		return err
	}
	s.rebuildCodec()
	s.Caps = NewCapSet()
	_, _, err = s.Command(CommandCapability, "")
	return err
}

func parseTagged(line string) (tag string, sr *StatusResponse, err error) {
	spaceIdx := strings.IndexByte(line, ' ')
	if spaceIdx < 0 {
		return "", nil, fmt.Errorf("malformed tagged response: %q", line)
	}
	tag = line[:spaceIdx]
	rest := line[spaceIdx+1:]

	typ, code, arg, text := parseStatusText(rest)
	return tag, &StatusResponse{Type: typ, Code: code, CodeArg: arg, Text: text}, nil
}

func parseStatusText(s string) (typ StatusResponseType, code ResponseCode, arg interface{}, text string) {
	spaceIdx := strings.IndexByte(s, ' ')
	if spaceIdx < 0 {
		return StatusResponseType(strings.ToUpper(s)), "", nil, ""
	}
	typ = StatusResponseType(strings.ToUpper(s[:spaceIdx]))
	rest := s[spaceIdx+1:]

	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 0 {
			inner := rest[1:end]
			if sp := strings.IndexByte(inner, ' '); sp > 0 {
				code = ResponseCode(inner[:sp])
				arg = inner[sp+1:]
			} else {
				code = ResponseCode(inner)
			}
			if end+2 <= len(rest) {
				text = rest[end+2:]
			}
			return typ, code, arg, text
		}
	}
	text = rest
	return typ, code, arg, text
}

var literalSuffixRe = regexp.MustCompile(`\{(\d+)\+?\}$`)

// readResponseLine reads one logical response line, splicing in any
// mid-line literal payloads (e.g. "* 4 FETCH (BODY[] {342}\r\n<raw>)")
// so the rest of the grammar can treat the line as ordinary text.
func (s *Session) readResponseLine() (string, error) {
	var out strings.Builder
	for {
		line, err := s.dec.ReadLine()
		if err != nil {
			return "", err
		}
		m := literalSuffixRe.FindStringSubmatchIndex(line)
		if m == nil {
			out.WriteString(line)
			return out.String(), nil
		}
		size, convErr := strconv.ParseInt(line[m[2]:m[3]], 10, 64)
		if convErr != nil {
			return "", fmt.Errorf("imap: invalid literal size in %q: %w", line, convErr)
		}
		out.WriteString(line[:m[0]])
		data, err := s.dec.ReadLiteralBytes(size)
		if err != nil {
			return "", err
		}
		out.Write(data)
	}
}
