package pop

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/tern-mail/mailcore"
)

func testAccount(user, password string) *mailcore.Account {
	return &mailcore.Account{Scheme: string(mailcore.SchemePOP), Host: "mail.example.com", User: user, Password: &password}
}

func TestAuthenticateUserPassFallback(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	sess.Caps = Capabilities{CapaSupported: true, User: TriYes}

	errCh := make(chan error, 1)
	go func() { errCh <- Authenticate(context.Background(), sess, testAccount("carol", "s3cret")) }()

	if line := fs.readLine(); line != "USER carol" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK")
	if line := fs.readLine(); line != "PASS s3cret" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK logged in")

	if err := <-errCh; err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.State != StateAuthenticated {
		t.Fatalf("State = %v, want Authenticated", sess.State)
	}
}

func TestAuthenticateRejectsBadPassword(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	sess.Caps = Capabilities{CapaSupported: true, User: TriYes}

	errCh := make(chan error, 1)
	go func() { errCh <- Authenticate(context.Background(), sess, testAccount("carol", "wrong")) }()

	fs.readLine()
	fs.send("+OK")
	fs.readLine()
	fs.send("-ERR invalid password")

	if err := <-errCh; err == nil {
		t.Fatal("expected Authenticate to fail")
	}
}

func TestAuthenticateAPOP(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	sess.ApopTimestamp = "<1896.697170952@dbc.mtview.ca.us>"
	sess.Caps = Capabilities{CapaSupported: true, User: TriNo}

	errCh := make(chan error, 1)
	go func() { errCh <- Authenticate(context.Background(), sess, testAccount("mrose", "tanstaaf")) }()

	line := fs.readLine()
	sum := md5.Sum([]byte(sess.ApopTimestamp + "tanstaaf"))
	want := "APOP mrose " + hex.EncodeToString(sum[:])
	if line != want {
		t.Fatalf("server saw %q, want %q", line, want)
	}
	fs.send("+OK maildrop has 1 message")

	if err := <-errCh; err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.State != StateAuthenticated {
		t.Fatalf("State = %v, want Authenticated", sess.State)
	}
}

func TestAuthenticateSASLPlain(t *testing.T) {
	sess, fs := newTestSession(t, "+OK Ready")
	sess.Caps = Capabilities{CapaSupported: true, SASL: []string{"PLAIN"}}

	errCh := make(chan error, 1)
	go func() { errCh <- Authenticate(context.Background(), sess, testAccount("carol", "s3cret")) }()

	line := fs.readLine()
	if line != "AUTH PLAIN AGNhcm9sAHMzY3JldA==" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("+OK authenticated")

	if err := <-errCh; err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}
