// Package wire implements the token-level grammar of the IMAP wire format
// (RFC 9051 / RFC 3501): atoms, quoted strings, literals, number and flag
// lists. It has no notion of commands, tags, or connection state — those
// live in the imap package, one layer up, which drives this decoder from
// its single-threaded command loop.
package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Decoder pulls grammar tokens off a buffered byte stream one at a time;
// every Read* method assumes the caller already knows which token is next
// (the response dispatcher peeks a byte to decide) and fails loudly on a
// mismatch rather than trying to resynchronize.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r, reusing an existing *bufio.Reader instead of
// double-buffering when one is already available.
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReaderSize(r, 4096)}
}

// ReadLine reads up to the next CRLF and returns the line without it,
// reassembling lines bufio.Reader.ReadLine had to split across its
// internal buffer boundary.
func (d *Decoder) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, more, err := d.r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if !more {
			return string(line), nil
		}
	}
}

// ReadAtom reads a maximal run of atom characters (RFC 9051 §4.3.1).
func (d *Decoder) ReadAtom() (string, error) {
	var atom bytes.Buffer
	for {
		peeked, err := d.r.Peek(1)
		if err != nil {
			if err == io.EOF && atom.Len() > 0 {
				return atom.String(), nil
			}
			return "", err
		}
		if !isAtomChar(peeked[0]) {
			break
		}
		b, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		atom.WriteByte(b)
	}
	if atom.Len() == 0 {
		return "", fmt.Errorf("imap: expected atom")
	}
	return atom.String(), nil
}

// ReadQuotedString reads a double-quoted string, unescaping the backslash
// escapes RFC 9051 §4.3 allows inside quotes.
func (d *Decoder) ReadQuotedString() (string, error) {
	open, err := d.r.ReadByte()
	if err != nil {
		return "", err
	}
	if open != '"' {
		return "", fmt.Errorf("imap: expected '\"', got %q", open)
	}

	var text bytes.Buffer
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case '"':
			return text.String(), nil
		case '\\':
			escaped, err := d.r.ReadByte()
			if err != nil {
				return "", err
			}
			text.WriteByte(escaped)
		default:
			text.WriteByte(b)
		}
	}
}

// LiteralInfo is a parsed literal header: {n}, {n+}, or ~{n}.
type LiteralInfo struct {
	Size    int64
	NonSync bool // {n+}: sender does not wait for a continuation request
	Binary  bool // ~{n}: RFC 4466 BINARY literal
}

// ReadLiteralInfo parses a literal header up to and including its trailing
// CRLF, leaving the reader positioned at the first byte of the payload.
func (d *Decoder) ReadLiteralInfo() (*LiteralInfo, error) {
	lead, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}

	info := &LiteralInfo{}
	if lead == '~' {
		info.Binary = true
		lead, err = d.r.ReadByte()
		if err != nil {
			return nil, err
		}
	}
	if lead != '{' {
		return nil, fmt.Errorf("imap: expected '{', got %q", lead)
	}

	var digits bytes.Buffer
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch {
		case b == '+':
			info.NonSync = true
		case b == '}':
			size, err := strconv.ParseInt(digits.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("imap: invalid literal size: %w", err)
			}
			info.Size = size
			if err := d.ReadCRLF(); err != nil {
				return nil, fmt.Errorf("imap: expected CRLF after literal header: %w", err)
			}
			return info, nil
		case b >= '0' && b <= '9':
			digits.WriteByte(b)
		default:
			return nil, fmt.Errorf("imap: unexpected character in literal header: %q", b)
		}
	}
}

// ReadLiteralBytes reads exactly size raw bytes, used when a literal
// appears mid-line (e.g. FETCH's "BODY[] {342}\r\n<raw>") and the caller
// needs to splice it back into the logical response line it interrupted.
func (d *Decoder) ReadLiteralBytes(size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a quoted string, a literal, or a bare atom — whichever
// the next byte on the wire indicates.
func (d *Decoder) ReadString() (string, error) {
	peeked, err := d.r.Peek(1)
	if err != nil {
		return "", err
	}
	switch peeked[0] {
	case '"':
		return d.ReadQuotedString()
	case '{', '~':
		info, err := d.ReadLiteralInfo()
		if err != nil {
			return "", err
		}
		payload, err := d.ReadLiteralBytes(info.Size)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	default:
		return d.ReadAtom()
	}
}

// ReadNString reads an nstring: NIL, or a string per ReadString. The bool
// result is false only for NIL.
func (d *Decoder) ReadNString() (string, bool, error) {
	peeked, err := d.r.Peek(3)
	if err != nil && len(peeked) == 0 {
		return "", false, err
	}
	if len(peeked) >= 3 && strings.EqualFold(string(peeked), "NIL") {
		lookahead, err := d.r.Peek(4)
		if err == io.EOF || len(lookahead) == 3 || (len(lookahead) >= 4 && !isAtomChar(lookahead[3])) {
			consumed := make([]byte, 3)
			_, _ = d.r.Read(consumed)
			return "", false, nil
		}
	}

	s, err := d.ReadString()
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// ReadNumber reads an unsigned 32-bit decimal number.
func (d *Decoder) ReadNumber() (uint32, error) {
	atom, err := d.ReadAtom()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(atom, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("imap: invalid number %q: %w", atom, err)
	}
	return uint32(n), nil
}

// ReadNumber64 reads an unsigned 64-bit decimal number (UIDVALIDITY,
// MODSEQ, and other values that can outgrow uint32).
func (d *Decoder) ReadNumber64() (uint64, error) {
	atom, err := d.ReadAtom()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(atom, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("imap: invalid number %q: %w", atom, err)
	}
	return n, nil
}

// ReadSP consumes the single space separating two grammar productions.
func (d *Decoder) ReadSP() error {
	return d.ExpectByte(' ')
}

// ReadCRLF consumes the line terminator.
func (d *Decoder) ReadCRLF() error {
	cr, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	lf, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	if cr != '\r' || lf != '\n' {
		return fmt.Errorf("imap: expected CRLF, got %q%q", cr, lf)
	}
	return nil
}

// ExpectByte consumes one byte, failing if it isn't expected.
func (d *Decoder) ExpectByte(expected byte) error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	if b != expected {
		return fmt.Errorf("imap: expected %q, got %q", expected, b)
	}
	return nil
}

// PeekByte looks at the next byte without consuming it.
func (d *Decoder) PeekByte() (byte, error) {
	b, err := d.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadList reads a "(" ... ")" production, invoking element for each member
// in turn; element is responsible for consuming exactly one member.
func (d *Decoder) ReadList(element func() error) error {
	if err := d.ExpectByte('('); err != nil {
		return err
	}
	for n := 0; ; n++ {
		b, err := d.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			_, _ = d.r.ReadByte()
			return nil
		}
		if n > 0 {
			if err := d.ReadSP(); err != nil {
				return err
			}
		}
		if err := element(); err != nil {
			return err
		}
	}
}

// ReadFlags reads a parenthesized flag list.
func (d *Decoder) ReadFlags() ([]string, error) {
	var flags []string
	err := d.ReadList(func() error {
		prefix := ""
		if b, err := d.PeekByte(); err == nil && b == '\\' {
			_, _ = d.r.ReadByte()
			prefix = "\\"
		}
		flag, err := d.ReadAtom()
		if err != nil {
			return err
		}
		flags = append(flags, prefix+flag)
		return nil
	})
	return flags, err
}

// isAtomChar reports whether b may appear in an atom: any CHAR except the
// IMAP atom-specials.
func isAtomChar(b byte) bool {
	if b < 0x20 || b > 0x7e {
		return false
	}
	switch b {
	case '(', ')', '{', ' ', '%', '*', '"', '\\', ']':
		return false
	}
	return true
}

// IsAtomSpecial reports whether b must not appear in a bare atom.
func IsAtomSpecial(b byte) bool {
	return !isAtomChar(b)
}

// IsQuotedSpecial reports whether b needs a backslash escape inside a
// quoted string.
func IsQuotedSpecial(b byte) bool {
	return b == '"' || b == '\\'
}
