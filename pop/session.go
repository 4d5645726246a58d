// Package pop implements the POP3 client half of SPEC_FULL.md §4.F: greeting
// and capability negotiation, the authenticator chain, UIDL-driven header
// fetch with header-cache integration, reconnect-and-reindex, and
// DELE-then-QUIT sync. It mirrors the IMAP package's single-threaded,
// no-background-goroutine shape (package imap, SPEC_FULL.md §5) rather than
// the teacher's reader-goroutine/channel design, since POP is strictly
// request/response with at most one outstanding command.
package pop

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/conn"
	"github.com/tern-mail/mailcore/metrics"
)

// State is the POP session's connection state (spec.md §4.F: "None →
// Connected → (Authenticated implicit) → [operations] → Disconnected").
type State int

const (
	StateNone State = iota
	StateConnected
	StateAuthenticated
	StateDisconnected
)

var apopTimestampRe = regexp.MustCompile(`<[^>@\s]+@[^>\s]+>`)

// Session is the POP3 protocol state machine: the connection, negotiated
// capabilities, and whatever greeting-time bookkeeping (the APOP timestamp)
// the handshake captured.
type Session struct {
	conn  *conn.Conn
	State State
	Caps  Capabilities

	// ApopTimestamp is the greeting's "<...@...>" banner, if present,
	// required by the APOP authenticator.
	ApopTimestamp string

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// SetMetrics attaches optional Prometheus instrumentation to s and its
// underlying connection; nil disables it.
func (s *Session) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.conn.SetMetrics(m)
}

// NewSession reads the one-line greeting off c and returns a Session in
// StateConnected. A greeting that doesn't start with "+OK" is a protocol
// failure, per spec.md §4.F step 1.
func NewSession(c *conn.Conn, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{conn: c, logger: logger, State: StateNone}

	line, err := c.ReadLine()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "+OK") {
		return nil, fmt.Errorf("%w: greeting: %s", mailcore.ErrProtocol, line)
	}
	if m := apopTimestampRe.FindString(line); m != "" {
		s.ApopTimestamp = m
	}
	s.State = StateConnected
	return s, nil
}

// sendLine writes cmd plus the CRLF terminator.
func (s *Session) sendLine(cmd string) error {
	s.metrics.CommandIssued("pop")
	return s.conn.Write([]byte(cmd + "\r\n"))
}

// command sends cmd and reads a single-line response, returning whether it
// was +OK and the remainder of the line after the status word.
func (s *Session) command(cmd string) (bool, string, error) {
	if err := s.sendLine(cmd); err != nil {
		return false, "", err
	}
	return s.readStatusLine()
}

func (s *Session) readStatusLine() (bool, string, error) {
	line, err := s.conn.ReadLine()
	if err != nil {
		return false, "", err
	}
	switch {
	case strings.HasPrefix(line, "+OK"):
		return true, strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
	case strings.HasPrefix(line, "-ERR"):
		return false, strings.TrimSpace(strings.TrimPrefix(line, "-ERR")), nil
	default:
		return false, "", fmt.Errorf("%w: unexpected response %q", mailcore.ErrProtocol, line)
	}
}

// readMultiline reads a dot-terminated multi-line body, un-stuffing any
// leading "." a data line started with (spec.md §6: "dot-stuffed lines are
// un-stuffed by stripping a leading dot").
func (s *Session) readMultiline() ([]string, error) {
	var lines []string
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "." {
			return lines, nil
		}
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		lines = append(lines, line)
	}
}

// Capa runs CAPA (or, failing that, a bare AUTH) and records the result,
// per spec.md §4.F's three discovery modes. silent suppresses the
// CapaSupported=false fallback-to-AUTH probe, used for the post-STLS rerun
// where a server that lacks CAPA wouldn't suddenly grow it.
func (s *Session) Capa(silent bool) error {
	ok, _, err := s.command("CAPA")
	if err != nil {
		return err
	}
	if ok {
		lines, err := s.readMultiline()
		if err != nil {
			return err
		}
		s.Caps = parseCapaLines(lines)
		s.logger.Debug("pop capa", "stls", s.Caps.STLS, "user", s.Caps.User, "uidl", s.Caps.UIDL, "top", s.Caps.TOP, "sasl", s.Caps.SASL)
		return nil
	}
	if silent {
		return nil
	}
	s.Caps = Capabilities{CapaSupported: false, User: TriUnknown, UIDL: TriUnknown, TOP: TriUnknown}
	ok, _, err = s.command("AUTH")
	if err != nil {
		return err
	}
	if ok {
		lines, err := s.readMultiline()
		if err != nil {
			return err
		}
		s.Caps.SASL = parseAuthLines(lines)
	}
	return nil
}

// RecheckPostAuth verifies TOP and UIDL are present once authenticated,
// per spec.md §4.F step 6 ("fail with a specific message if UIDL or TOP
// are still missing after post-auth recheck").
func (s *Session) RecheckPostAuth() error {
	if err := s.Capa(true); err != nil {
		return err
	}
	if s.Caps.CapaSupported {
		if s.Caps.UIDL != TriYes {
			return fmt.Errorf("%w: server does not support UIDL", mailcore.ErrProtocol)
		}
		if s.Caps.TOP != TriYes {
			return fmt.Errorf("%w: server does not support TOP", mailcore.ErrProtocol)
		}
	}
	return nil
}

// STLS upgrades the connection to TLS if the server advertised it,
// draining any pipelined plaintext first, then silently reruns capability
// discovery (spec.md §4.F step 4, discovery mode "post-STLS").
func (s *Session) STLS(cfg *tls.Config) error {
	if !s.Caps.STLS {
		return fmt.Errorf("%w: server does not advertise STLS", mailcore.ErrEncryptionUnavailable)
	}
	ok, msg, err := s.command("STLS")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: STLS refused: %s", mailcore.ErrEncryptionUnavailable, msg)
	}
	s.conn.Empty()
	if err := s.conn.StartTLS(cfg); err != nil {
		return err
	}
	return s.Capa(true)
}

// Stat issues STAT, returning the message count and total octet size.
func (s *Session) Stat() (count int, size int64, err error) {
	ok, msg, err := s.command("STAT")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("%w: STAT: %s", mailcore.ErrServerRefused, msg)
	}
	fields := strings.Fields(msg)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("%w: malformed STAT response %q", mailcore.ErrProtocol, msg)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: STAT count: %v", mailcore.ErrProtocol, err)
	}
	sz, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: STAT size: %v", mailcore.ErrProtocol, err)
	}
	return n, sz, nil
}

// Last issues LAST, returning the highest message number the client has
// already seen (0 if none).
func (s *Session) Last() (int, error) {
	ok, msg, err := s.command("LAST")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil // not every server implements LAST; treat as "none seen"
	}
	n, err := strconv.Atoi(strings.TrimSpace(msg))
	if err != nil {
		return 0, fmt.Errorf("%w: LAST response: %v", mailcore.ErrProtocol, err)
	}
	return n, nil
}

// ListOne issues "LIST n" and returns the message's reported octet length.
func (s *Session) ListOne(n int) (int64, error) {
	ok, msg, err := s.command(fmt.Sprintf("LIST %d", n))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: LIST %d: %s", mailcore.ErrServerRefused, n, msg)
	}
	fields := strings.Fields(msg)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: malformed LIST response %q", mailcore.ErrProtocol, msg)
	}
	sz, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: LIST %d size: %v", mailcore.ErrProtocol, n, err)
	}
	return sz, nil
}

// UIDLEntry is one line of a UIDL response.
type UIDLEntry struct {
	Refno int
	UID   string
}

// Uidl issues UIDL and parses the "<n> <uid>" lines of its multiline body.
func (s *Session) Uidl() ([]UIDLEntry, error) {
	ok, msg, err := s.command("UIDL")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: UIDL: %s", mailcore.ErrServerRefused, msg)
	}
	lines, err := s.readMultiline()
	if err != nil {
		return nil, err
	}
	entries := make([]UIDLEntry, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: malformed UIDL line %q", mailcore.ErrProtocol, line)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: UIDL refno: %v", mailcore.ErrProtocol, err)
		}
		entries = append(entries, UIDLEntry{Refno: n, UID: fields[1]})
	}
	return entries, nil
}

// Top issues "TOP n lines" and returns the header (and first `lines` body
// lines, conventionally 0) as a single RFC 5322 byte blob.
func (s *Session) Top(n, lines int) ([]byte, error) {
	ok, msg, err := s.command(fmt.Sprintf("TOP %d %d", n, lines))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: TOP %d: %s", mailcore.ErrServerRefused, n, msg)
	}
	body, err := s.readMultiline()
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(body, "\r\n") + "\r\n"), nil
}

// Retr issues "RETR n" and returns the full message body.
func (s *Session) Retr(n int) ([]byte, error) {
	ok, msg, err := s.command(fmt.Sprintf("RETR %d", n))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: RETR %d: %s", mailcore.ErrServerRefused, n, msg)
	}
	body, err := s.readMultiline()
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(body, "\r\n") + "\r\n"), nil
}

// Dele issues "DELE n".
func (s *Session) Dele(n int) error {
	ok, msg, err := s.command(fmt.Sprintf("DELE %d", n))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: DELE %d: %s", mailcore.ErrServerRefused, n, msg)
	}
	return nil
}

// Rset issues RSET, unmarking every message scheduled for deletion this
// session.
func (s *Session) Rset() error {
	ok, msg, err := s.command("RSET")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: RSET: %s", mailcore.ErrServerRefused, msg)
	}
	return nil
}

// Quit sends QUIT, which is also the signal the server uses to commit any
// DELE calls issued this session.
func (s *Session) Quit() error {
	ok, msg, err := s.command("QUIT")
	s.State = StateDisconnected
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: QUIT: %s", mailcore.ErrServerRefused, msg)
	}
	return nil
}

// Close releases the underlying connection without sending QUIT, used
// after a failed DELE where graceful logout must be skipped.
func (s *Session) Close() error {
	s.State = StateDisconnected
	return s.conn.Close()
}
