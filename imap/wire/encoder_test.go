package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func encoderOutput(fn func(e *Encoder)) string {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	fn(e)
	_ = e.Flush()
	return buf.String()
}

func TestEncoderAtom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"OK", "OK"},
		{"INBOX", "INBOX"},
		{"FLAGS", "FLAGS"},
		{"", ""},
	}
	for _, tt := range tests {
		got := encoderOutput(func(e *Encoder) { e.Atom(tt.input) })
		if got != tt.want {
			t.Errorf("Atom(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEncoderSP(t *testing.T) {
	got := encoderOutput(func(e *Encoder) { e.SP() })
	if got != " " {
		t.Errorf("SP() = %q, want %q", got, " ")
	}
}

func TestEncoderCRLF(t *testing.T) {
	got := encoderOutput(func(e *Encoder) { e.CRLF() })
	if got != "\r\n" {
		t.Errorf("CRLF() = %q, want %q", got, "\r\n")
	}
}

func TestEncoderTag(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"A001", "A001"},
		{"TAG1", "TAG1"},
		{"*", "*"},
	}
	for _, tt := range tests {
		got := encoderOutput(func(e *Encoder) { e.Tag(tt.input) })
		if got != tt.want {
			t.Errorf("Tag(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEncoderRawString(t *testing.T) {
	got := encoderOutput(func(e *Encoder) { e.RawString("raw string") })
	if got != "raw string" {
		t.Errorf("RawString() = %q, want %q", got, "raw string")
	}
}

func TestEncoderFluentChaining(t *testing.T) {
	got := encoderOutput(func(e *Encoder) {
		e.Tag("A001").SP().Atom("LOGIN").SP().RawString(`"user" "pass"`).CRLF()
	})
	want := `A001 LOGIN "user" "pass"` + "\r\n"
	if got != want {
		t.Errorf("fluent chain = %q, want %q", got, want)
	}
}

func TestNewEncoderWithBufioWriter(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	e := NewEncoder(bw)
	if e.Writer() != bw {
		t.Error("NewEncoder did not reuse the given *bufio.Writer")
	}
	e.Atom("TEST")
	_ = e.Flush()
	if buf.String() != "TEST" {
		t.Errorf("got %q, want %q", buf.String(), "TEST")
	}
}

func TestEncoderWriter(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	w := e.Writer()
	if w == nil {
		t.Fatal("Writer() returned nil")
	}
	_, _ = w.WriteString("direct")
	_ = w.Flush()
	if buf.String() != "direct" {
		t.Errorf("Writer().WriteString() = %q, want %q", buf.String(), "direct")
	}
}

func TestEncoderFlush(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	e.Atom("DATA")
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if buf.String() != "DATA" {
		t.Errorf("after Flush() = %q, want %q", buf.String(), "DATA")
	}
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "hello", `"hello"`},
		{"empty", "", `""`},
		{"with spaces", "hello world", `"hello world"`},
		{"with quote", `say "hi"`, `"say \"hi\""`},
		{"with backslash", `path\dir`, `"path\\dir"`},
		{"both specials", `a"b\c`, `"a\"b\\c"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuoteString(tt.input)
			if got != tt.want {
				t.Errorf("QuoteString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncoderCommandLine(t *testing.T) {
	got := encoderOutput(func(e *Encoder) {
		e.Tag("A002").SP().Atom("SELECT").SP().RawString(QuoteString("Sent Items")).CRLF()
	})
	want := "A002 SELECT \"Sent Items\"\r\n"
	if got != want {
		t.Errorf("command line = %q, want %q", got, want)
	}
}
