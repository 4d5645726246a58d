package wire

import (
	"bufio"
	"io"
)

// Encoder assembles one IMAP command line at a time and writes it to an
// underlying buffered writer. It only knows the handful of primitives
// Session.queue actually emits (tag, atom, raw argument text, SP, CRLF)
// — the response-side vocabulary (status responses, untagged data,
// continuation prompts) belongs to an IMAP server, which this module never
// is; see DESIGN.md for why that half of the teacher's grammar was dropped
// rather than carried as unused surface.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder wraps w for command writing, reusing an existing *bufio.Writer
// instead of double-buffering when one is already available.
func NewEncoder(w io.Writer) *Encoder {
	if bw, ok := w.(*bufio.Writer); ok {
		return &Encoder{w: bw}
	}
	return &Encoder{w: bufio.NewWriterSize(w, 4096)}
}

// Writer exposes the underlying buffered writer, for callers that need to
// write bytes the encoder's own primitives do not cover.
func (e *Encoder) Writer() *bufio.Writer {
	return e.w
}

// Flush sends everything written so far.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Tag writes a client-chosen command tag with no trailing separator.
func (e *Encoder) Tag(tag string) *Encoder {
	_, _ = e.w.WriteString(tag)
	return e
}

// Atom writes a bare IMAP atom (a command verb, a flag name, ...).
func (e *Encoder) Atom(s string) *Encoder {
	_, _ = e.w.WriteString(s)
	return e
}

// RawString writes argument text the caller has already quoted, UTF-7
// encoded, or otherwise prepared — the command layer builds most argument
// lists this way rather than through typed per-datum encoding.
func (e *Encoder) RawString(s string) *Encoder {
	_, _ = e.w.WriteString(s)
	return e
}

// SP writes a single space separator.
func (e *Encoder) SP() *Encoder {
	_ = e.w.WriteByte(' ')
	return e
}

// CRLF terminates the command line.
func (e *Encoder) CRLF() *Encoder {
	_, _ = e.w.WriteString("\r\n")
	return e
}

// QuoteString renders s as an IMAP quoted-string, backslash-escaping the
// two characters RFC 9051 §4.3 reserves inside quotes. mailboxNameArg and
// the auth commands' quoteArg both call this instead of keeping their own
// copy of the same escaping rule.
func QuoteString(s string) string {
	buf := make([]byte, 0, len(s)+2)
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		if IsQuotedSpecial(s[i]) {
			buf = append(buf, '\\')
		}
		buf = append(buf, s[i])
	}
	buf = append(buf, '"')
	return string(buf)
}
