package pop

import (
	"errors"
	"testing"

	"github.com/tern-mail/mailcore"
)

func TestSyncDeletesAndQuitsOnFullSuccess(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	c := newTestClient(t, sess)
	c.uidToRefno = map[string]int{"uid-1": 1, "uid-2": 2}
	c.MarkDeleted("uid-1")

	errCh := make(chan error, 1)
	go func() { errCh <- c.sync() }()

	if line := fs.readLine(); line != "DELE 1" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK message 1 deleted")
	if line := fs.readLine(); line != "QUIT" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK goodbye")

	if err := <-errCh; err != nil {
		t.Fatalf("sync: %v", err)
	}
	if c.deleted["uid-1"] {
		t.Fatal("uid-1 should have been cleared from the pending-delete set")
	}
}

func TestSyncReturnsErrorAndSuppressesQuitOnDeleFailure(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	c := newTestClient(t, sess)
	c.uidToRefno = map[string]int{"uid-1": 1}
	c.MarkDeleted("uid-1")

	errCh := make(chan error, 1)
	go func() { errCh <- c.sync() }()

	if line := fs.readLine(); line != "DELE 1" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("-ERR locked")

	err := <-errCh
	if err == nil {
		t.Fatal("sync: expected an error after a failed DELE, got nil")
	}
	if !errors.Is(err, mailcore.ErrProtocol) {
		t.Fatalf("sync: error = %v, want it to wrap mailcore.ErrProtocol", err)
	}
	// DELE failed: uid-1 must stay pending and QUIT must never have been sent.
	if !c.deleted["uid-1"] {
		t.Fatal("uid-1 should remain marked deleted after a failed DELE")
	}
}
