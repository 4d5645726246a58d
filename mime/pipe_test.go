package mime

import (
	"strings"
	"testing"
)

func TestIsFlowedDetectsFormatParameter(t *testing.T) {
	flowed := &Part{Type: "text", Subtype: "plain", Params: map[string]string{"format": "flowed"}}
	if !isFlowed(flowed) {
		t.Fatal("expected flowed")
	}

	plain := &Part{Type: "text", Subtype: "plain", Params: map[string]string{}}
	if isFlowed(plain) {
		t.Fatal("expected not flowed")
	}

	html := &Part{Type: "text", Subtype: "html", Params: map[string]string{"format": "flowed"}}
	if isFlowed(html) {
		t.Fatal("format=flowed only applies to text/plain")
	}
}

func TestUnstuffFlowedRemovesOneLeadingSpace(t *testing.T) {
	src := " stuffed line\n  double stuffed\nunstuffed line\n"
	var out strings.Builder
	if err := unstuffFlowed(&out, strings.NewReader(src)); err != nil {
		t.Fatalf("unstuffFlowed: %v", err)
	}
	want := "stuffed line\n double stuffed\nunstuffed line\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}
