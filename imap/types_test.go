package imap

import (
	"testing"
	"time"

	"github.com/tern-mail/mailcore"
)

func TestConnStateString(t *testing.T) {
	tests := []struct {
		state ConnState
		want  string
	}{
		{ConnStateNotAuthenticated, "not authenticated"},
		{ConnStateAuthenticated, "authenticated"},
		{ConnStateSelected, "selected"},
		{ConnStateLogout, "logout"},
		{ConnState(99), "unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestFlagValues(t *testing.T) {
	if FlagSeen != "\\Seen" || FlagDeleted != "\\Deleted" {
		t.Fatal("unexpected flag literal")
	}
	// Flag is an open string type: servers are free to advertise custom
	// keywords that aren't among the backslash-prefixed system flags.
	custom := Flag("$Forwarded")
	if custom == FlagSeen {
		t.Fatal("custom flag should not equal a system flag")
	}
}

func TestBodyStructureIsMultipart(t *testing.T) {
	bs := &BodyStructure{Type: "multipart", Subtype: "mixed"}
	if !bs.IsMultipart() {
		t.Error("expected multipart/mixed to report IsMultipart")
	}
	single := &BodyStructure{Type: "text", Subtype: "plain"}
	if single.IsMultipart() {
		t.Error("text/plain should not report IsMultipart")
	}
}

func TestBodyStructureEmbeddedEnvelope(t *testing.T) {
	bs := &BodyStructure{
		Type:    "message",
		Subtype: "rfc822",
		Envelope: &mailcore.Envelope{
			Subject: "fwd",
			From:    []mailcore.Address{{Mailbox: "a", Host: "example.com"}},
		},
	}
	if bs.Envelope.Subject != "fwd" {
		t.Error("embedded envelope not preserved")
	}
}

func TestInternalDateRoundTrip(t *testing.T) {
	d := InternalDate(time.Date(2024, time.March, 5, 10, 30, 0, 0, time.FixedZone("", -5*3600)))
	got := d.String()
	want := "05-Mar-2024 10:30:00 -0500"
	if got != want {
		t.Errorf("InternalDate.String() = %q, want %q", got, want)
	}
}
