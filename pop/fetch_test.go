package pop

import (
	"testing"

	"github.com/tern-mail/mailcore/cache"
)

func newTestClient(t *testing.T, sess *Session) *Client {
	t.Helper()
	dir := t.TempDir()
	headers, err := cache.OpenPOPHeaderCache(dir, "mail.example.com/carol")
	if err != nil {
		t.Fatalf("OpenPOPHeaderCache: %v", err)
	}
	return &Client{
		session: sess,
		bodies:  cache.Open(dir, "mail.example.com", ""),
		headers: headers,
		deleted: make(map[string]bool),
	}
}

func TestFetchHeadersFetchesOnlyNewMessages(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	c := newTestClient(t, sess)
	c.uidToRefno = map[string]int{"uid-1": 1}
	c.refnoToUID = map[int]string{1: "uid-1"}

	errCh := make(chan error, 1)
	go func() { errCh <- c.fetchHeaders() }()

	if line := fs.readLine(); line != "UIDL" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK")
	fs.send("1 uid-1")
	fs.send("2 uid-2")
	fs.send(".")

	// Only message 2 is new; the client fetches its length and header.
	if line := fs.readLine(); line != "LIST 2" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK 2 150")
	if line := fs.readLine(); line != "TOP 2 0" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK")
	fs.send("From: alice@example.com")
	fs.send("Subject: hello")
	fs.send("")
	fs.send(".")

	if err := <-errCh; err != nil {
		t.Fatalf("fetchHeaders: %v", err)
	}

	if c.uidToRefno["uid-2"] != 2 {
		t.Fatalf("uidToRefno = %v", c.uidToRefno)
	}
	h, err := c.headers.Fetch("uid-2")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if h == nil || h.Envelope.Subject != "hello" {
		t.Fatalf("header = %+v", h)
	}
	if len(h.Envelope.From) != 1 || h.Envelope.From[0].Mailbox != "alice" {
		t.Fatalf("From = %+v", h.Envelope.From)
	}
}

func TestFetchHeadersSkipsCachedEntries(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	c := newTestClient(t, sess)

	errCh := make(chan error, 1)
	go func() { errCh <- c.fetchHeaders() }()

	fs.readLine()
	fs.send("+OK")
	fs.send("1 uid-1")
	fs.send(".")
	fs.readLine() // LIST 1
	fs.send("+OK 1 50")
	fs.readLine() // TOP 1 0
	fs.send("+OK")
	fs.send("Subject: first")
	fs.send("")
	fs.send(".")

	if err := <-errCh; err != nil {
		t.Fatalf("fetchHeaders: %v", err)
	}

	// Second call with the same UIDL result must not re-fetch — no LIST/TOP
	// round-trip should occur this time.
	errCh2 := make(chan error, 1)
	go func() { errCh2 <- c.fetchHeaders() }()
	fs.readLine()
	fs.send("+OK")
	fs.send("1 uid-1")
	fs.send(".")
	if err := <-errCh2; err != nil {
		t.Fatalf("second fetchHeaders: %v", err)
	}
}
