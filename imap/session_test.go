package imap

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tern-mail/mailcore/conn"
)

// fakeServer wraps the server end of a net.Pipe with line-oriented helpers
// so tests can script a scripted exchange without a real socket.
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

// sendRaw writes b verbatim, with no added line terminator — used to send
// literal payload bytes immediately following a "{n}" marker, where the
// terminating CRLF belongs to whatever follows the literal on the wire.
func (f *fakeServer) sendRaw(b []byte) {
	if _, err := f.w.Write(b); err != nil {
		f.t.Fatalf("fakeServer: write raw: %v", err)
	}
}

func (f *fakeServer) readLine() string {
	line, err := f.r.ReadString('\n')
	if err != nil {
		f.t.Fatalf("fakeServer: read: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// newTestSession pairs a Session with a fakeServer over net.Pipe, having the
// server already send the greeting given.
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

func TestNewSessionParsesGreetingCapability(t *testing.T) {
	sess, _ := newTestSession(t, "* OK [CAPABILITY IMAP4rev1 STARTTLS AUTH=PLAIN IDLE] Ready")
	if sess.State != ConnStateNotAuthenticated {
		t.Fatalf("State = %v, want not authenticated", sess.State)
	}
	if !sess.Caps.Has(CapStartTLS) {
		t.Fatal("expected STARTTLS capability")
	}
	if !sess.Caps.Has(CapAuthPlain) {
		t.Fatal("expected AUTH=PLAIN capability")
	}
	if !sess.Caps.Has(CapIdle) {
		t.Fatal("expected IDLE capability")
	}
}

func TestNewSessionPreauth(t *testing.T) {
	sess, _ := newTestSession(t, "* PREAUTH Already authenticated as bob")
	if sess.State != ConnStateAuthenticated {
		t.Fatalf("State = %v, want authenticated", sess.State)
	}
}

func TestLogin(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Login("carol", "s3cret") }()

	line := fs.readLine()
	if !strings.HasPrefix(line, "A0001 LOGIN ") {
		t.Fatalf("server saw %q", line)
	}
	if !strings.Contains(line, `"carol"`) || !strings.Contains(line, `"s3cret"`) {
		t.Fatalf("LOGIN args not quoted as expected: %q", line)
	}
	fs.send("A0001 OK LOGIN completed")

	if err := <-errCh; err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.State != ConnStateAuthenticated {
		t.Fatalf("State = %v, want authenticated", sess.State)
	}
}

func TestLoginRejected(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Login("carol", "wrong") }()
	fs.readLine()
	fs.send("A0001 NO [AUTHENTICATIONFAILED] invalid credentials")

	if err := <-errCh; err == nil {
		t.Fatal("expected Login to fail")
	}
}

func TestCommandRingDrainsOnOverflow(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")

	// Queue more commands than cmdRingSize without reading any response;
	// queue must transparently drain the oldest entries by stepping the
	// connection itself, not block forever.
	resultCh := make(chan error, 1)
	go func() {
		for i := 0; i < cmdRingSize+4; i++ {
			if _, err := sess.QueueCommand(CommandNoop, ""); err != nil {
				resultCh <- err
				return
			}
		}
		resultCh <- nil
	}()

	// net.Pipe is unbuffered, so the server only answers once the ring is
	// full: each reply completes the oldest command and frees the slot the
	// client is waiting on for its next write.
	var pending []string
	for i := 0; i < cmdRingSize+4; i++ {
		line := fs.readLine()
		pending = append(pending, strings.SplitN(line, " ", 2)[0])
		if len(pending) == cmdRingSize && i < cmdRingSize+3 {
			fs.send(pending[0] + " OK NOOP completed")
			pending = pending[1:]
		}
	}

	if err := <-resultCh; err != nil {
		t.Fatalf("queueing past ring bound: %v", err)
	}
}

func TestTagWraparound(t *testing.T) {
	sess, _ := newTestSession(t, "* OK Ready")
	sess.tagCounter = tagWrapAt - 2
	first := sess.nextTag()
	if first != fmt.Sprintf("A%04d", tagWrapAt-1) {
		t.Fatalf("tag = %q", first)
	}
	second := sess.nextTag()
	if second != "A0001" {
		t.Fatalf("tag after wraparound = %q, want A0001", second)
	}
}

func TestIdleTerminatesOnStop(t *testing.T) {
	sess, fs := newTestSession(t, "* OK [CAPABILITY IMAP4rev1 IDLE] Ready")

	stop := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- sess.Idle(0, stop) }()

	line := fs.readLine()
	if line != "A0001 IDLE" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+ idling")

	close(stop)

	done := fs.readLine()
	if done != "DONE" {
		t.Fatalf("expected DONE, got %q", done)
	}
	fs.send("A0001 OK IDLE terminated")

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Idle: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Idle did not return after stop")
	}
}

func TestIdleRefusedWithoutCapability(t *testing.T) {
	sess, _ := newTestSession(t, "* OK [CAPABILITY IMAP4rev1] Ready")
	if err := sess.Idle(time.Second, nil); err == nil {
		t.Fatal("expected error when server lacks IDLE")
	}
}
