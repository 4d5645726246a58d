package pop

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/tern-mail/mailcore/conn"
)

type fakeServer struct {
	t *testing.T
	r *bufio.Reader
	w net.Conn
}

func newFakeServer(t *testing.T, raw net.Conn) *fakeServer {
	return &fakeServer{t: t, r: bufio.NewReader(raw), w: raw}
}

func (f *fakeServer) send(line string) {
	if _, err := f.w.Write([]byte(line + "\r\n")); err != nil {
		f.t.Fatalf("fakeServer: write: %v", err)
	}
}

func (f *fakeServer) readLine() string {
	line, err := f.r.ReadString('\n')
	if err != nil {
		f.t.Fatalf("fakeServer: read: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// newTestSession pairs a Session with a fakeServer over net.Pipe, having
// the server send greeting first.
func newTestSession(t *testing.T, greeting string) (*Session, *fakeServer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() {
		clientEnd.Close()
		serverEnd.Close()
	})

	fs := newFakeServer(t, serverEnd)
	done := make(chan struct{})
	go func() {
		fs.send(greeting)
		close(done)
	}()

	sess, err := NewSession(conn.New(clientEnd, nil), nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	<-done
	return sess, fs
}

func TestNewSessionCapturesApopTimestamp(t *testing.T) {
	sess, _ := newTestSession(t, "+OK POP3 server ready <1896.697170952@dbc.mtview.ca.us>")
	if sess.State != StateConnected {
		t.Fatalf("State = %v, want Connected", sess.State)
	}
	if sess.ApopTimestamp != "<1896.697170952@dbc.mtview.ca.us>" {
		t.Fatalf("ApopTimestamp = %q", sess.ApopTimestamp)
	}
}

func TestNewSessionRejectsBadGreeting(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	defer clientEnd.Close()
	defer serverEnd.Close()

	done := make(chan struct{})
	go func() {
		serverEnd.Write([]byte("-ERR go away\r\n"))
		close(done)
	}()

	_, err := NewSession(conn.New(clientEnd, nil), nil)
	<-done
	if err == nil {
		t.Fatal("expected error for non +OK greeting")
	}
}

func TestCapaParsesCapabilities(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Capa(false) }()

	if line := fs.readLine(); line != "CAPA" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK Capability list follows")
	fs.send("STLS")
	fs.send("USER")
	fs.send("UIDL")
	fs.send("TOP")
	fs.send("SASL PLAIN LOGIN")
	fs.send("LOGIN-DELAY 60")
	fs.send(".")

	if err := <-errCh; err != nil {
		t.Fatalf("Capa: %v", err)
	}
	if !sess.Caps.STLS {
		t.Fatal("expected STLS")
	}
	if sess.Caps.User != TriYes || sess.Caps.UIDL != TriYes || sess.Caps.TOP != TriYes {
		t.Fatalf("Caps = %+v", sess.Caps)
	}
	if len(sess.Caps.SASL) != 2 || sess.Caps.SASL[0] != "PLAIN" {
		t.Fatalf("SASL = %v", sess.Caps.SASL)
	}
	if sess.Caps.LoginDelay != 60 {
		t.Fatalf("LoginDelay = %d", sess.Caps.LoginDelay)
	}
}

func TestCapaFallsBackToAuthWhenUnsupported(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Capa(false) }()

	fs.readLine()
	fs.send("-ERR unknown command")
	fs.readLine() // AUTH
	fs.send("+OK")
	fs.send("PLAIN")
	fs.send("LOGIN")
	fs.send(".")

	if err := <-errCh; err != nil {
		t.Fatalf("Capa: %v", err)
	}
	if sess.Caps.CapaSupported {
		t.Fatal("expected CapaSupported = false")
	}
	if sess.Caps.User != TriUnknown || sess.Caps.UIDL != TriUnknown || sess.Caps.TOP != TriUnknown {
		t.Fatalf("Caps = %+v", sess.Caps)
	}
	if len(sess.Caps.SASL) != 2 {
		t.Fatalf("SASL = %v", sess.Caps.SASL)
	}
}

func TestStatParsesCountAndSize(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")

	type result struct {
		count int
		size  int64
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		count, size, err := sess.Stat()
		resultCh <- result{count, size, err}
	}()

	if line := fs.readLine(); line != "STAT" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK 2 320")

	r := <-resultCh
	if r.err != nil {
		t.Fatalf("Stat: %v", r.err)
	}
	if r.count != 2 || r.size != 320 {
		t.Fatalf("Stat = %d, %d", r.count, r.size)
	}
}

func TestUidlParsesEntries(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")

	type result struct {
		entries []UIDLEntry
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		entries, err := sess.Uidl()
		resultCh <- result{entries, err}
	}()

	fs.readLine()
	fs.send("+OK")
	fs.send("1 whqtswO00WBw418f9t5JxYwZ")
	fs.send("2 QhdPYR:00WBw1Ph7x7")
	fs.send(".")

	r := <-resultCh
	if r.err != nil {
		t.Fatalf("Uidl: %v", r.err)
	}
	if len(r.entries) != 2 || r.entries[1].UID != "QhdPYR:00WBw1Ph7x7" {
		t.Fatalf("entries = %+v", r.entries)
	}
}

func TestDotUnstuffingInMultiline(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")

	type result struct {
		lines []string
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		ok, _, err := sess.command("RETR 1")
		if err != nil || !ok {
			resultCh <- result{nil, err}
			return
		}
		lines, err := sess.readMultiline()
		resultCh <- result{lines, err}
	}()

	fs.readLine()
	fs.send("+OK 120 octets")
	fs.send("Subject: test")
	fs.send("")
	fs.send("..this line started with a dot")
	fs.send(".")

	r := <-resultCh
	if r.err != nil {
		t.Fatalf("readMultiline: %v", r.err)
	}
	if len(r.lines) != 3 || r.lines[2] != ".this line started with a dot" {
		t.Fatalf("lines = %v", r.lines)
	}
}

func TestSTLSCommandExchange(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	sess.Caps.STLS = true

	// STLS itself can't complete a real TLS handshake over net.Pipe in a
	// unit test without a certificate; this test only exercises the STLS
	// command/response exchange that Session.STLS performs before it
	// drains pipelined input with Empty() and upgrades.
	errCh := make(chan error, 1)
	go func() {
		ok, _, err := sess.command("STLS")
		errCh <- err
		_ = ok
	}()

	if line := fs.readLine(); line != "STLS" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK Begin TLS negotiation")

	if err := <-errCh; err != nil {
		t.Fatalf("STLS command: %v", err)
	}
}
