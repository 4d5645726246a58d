package mime

import (
	"bytes"
	"strings"
	"testing"
)

func TestReEncodePlainASCIIStaysSevenBit(t *testing.T) {
	const msg = "Content-Type: text/plain; charset=us-ascii\r\n\r\nhello there\r\n"
	root, err := Parse(strings.NewReader(msg))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := root.ReEncode()
	if err != nil {
		t.Fatalf("ReEncode: %v", err)
	}
	if !bytes.Contains(out, []byte("Content-Transfer-Encoding: 7bit")) {
		t.Errorf("expected 7bit encoding, got:\n%s", out)
	}
	if !bytes.Contains(out, []byte("hello there")) {
		t.Errorf("body missing from re-encoded output:\n%s", out)
	}
}

func TestReEncodeNonASCIIUsesQuotedPrintable(t *testing.T) {
	msg := "Content-Type: text/plain; charset=utf-8\r\n\r\ncaf\xc3\xa9\r\n"
	root, err := Parse(strings.NewReader(msg))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := root.ReEncode()
	if err != nil {
		t.Fatalf("ReEncode: %v", err)
	}
	if !bytes.Contains(out, []byte("Content-Transfer-Encoding: quoted-printable")) {
		t.Errorf("expected quoted-printable encoding, got:\n%s", out)
	}
}

func TestReEncodeMultipartPassesThroughRaw(t *testing.T) {
	root, err := Parse(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := root.ReEncode()
	if err != nil {
		t.Fatalf("ReEncode: %v", err)
	}
	if !bytes.Contains(out, []byte("plain body")) || !bytes.Contains(out, []byte("html body")) {
		t.Errorf("expected both alternative parts preserved verbatim, got:\n%s", out)
	}
}
