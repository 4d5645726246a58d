// Package utf7 implements the modified UTF-7 encoding defined in RFC 2152
// as used by IMAP mailbox names (RFC 3501 Section 5.1.3): "&" replaces "+"
// as the shift character, and "," replaces "/" in the base64 alphabet.
// Mailbox names are the only place this module needs it — imap/mailbox.go's
// mailboxNameArg/unquoteMailboxName pass names through Encode/Decode at the
// IMAP boundary
// so the rest of the tree only ever sees UTF-8.
package utf7

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/tern-mail/mailcore"
)

// shiftedAlphabet is RFC 2152's base64 variant: "," stands in for "/", and
// padding is never emitted.
var shiftedAlphabet = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,",
).WithPadding(base64.NoPadding)

// Encode converts a UTF-8 mailbox name to modified UTF-7.
func Encode(name string) string {
	var out strings.Builder
	out.Grow(len(name))

	var shifted []byte
	closeShift := func() {
		if len(shifted) == 0 {
			return
		}
		out.WriteByte('&')
		out.WriteString(shiftedAlphabet.EncodeToString(shifted))
		out.WriteByte('-')
		shifted = shifted[:0]
	}

	for _, r := range name {
		if isDirectASCII(r) {
			closeShift()
			if r == '&' {
				out.WriteString("&-")
			} else {
				out.WriteRune(r)
			}
			continue
		}
		shifted = appendUTF16BE(shifted, r)
	}
	closeShift()

	return out.String()
}

// isDirectASCII reports whether r may appear unshifted in modified UTF-7:
// the printable ASCII range RFC 2152 carries through literally.
func isDirectASCII(r rune) bool {
	return r >= 0x20 && r <= 0x7e
}

// appendUTF16BE appends r's big-endian UTF-16 code units (a surrogate pair
// for anything outside the BMP) to dst.
func appendUTF16BE(dst []byte, r rune) []byte {
	if r < 0x10000 {
		return append(dst, byte(r>>8), byte(r&0xff))
	}
	hi, lo := utf16.EncodeRune(r)
	dst = append(dst, byte(hi>>8), byte(hi&0xff))
	return append(dst, byte(lo>>8), byte(lo&0xff))
}

// Decode converts a modified UTF-7 mailbox name back to UTF-8.
func Decode(name string) (string, error) {
	var out strings.Builder
	out.Grow(len(name))

	for i := 0; i < len(name); {
		if name[i] != '&' {
			out.WriteByte(name[i])
			i++
			continue
		}

		i++
		if i >= len(name) {
			return "", fmt.Errorf("%w: utf7: dangling shift marker at end of %q", mailcore.ErrProtocol, name)
		}
		if name[i] == '-' {
			out.WriteByte('&')
			i++
			continue
		}

		end := strings.IndexByte(name[i:], '-')
		if end < 0 {
			return "", fmt.Errorf("%w: utf7: unterminated shift sequence in %q", mailcore.ErrProtocol, name)
		}
		run, err := decodeShiftedRun(name[i : i+end])
		if err != nil {
			return "", err
		}
		out.WriteString(run)
		i += end + 1
	}

	return out.String(), nil
}

// decodeShiftedRun decodes one "&...-"-delimited base64 span (the
// delimiters already stripped) into its UTF-8 text.
func decodeShiftedRun(encoded string) (string, error) {
	raw, err := shiftedAlphabet.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: utf7: invalid base64 in shift sequence %q: %v", mailcore.ErrProtocol, encoded, err)
	}
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("%w: utf7: shift sequence %q has an odd byte count", mailcore.ErrProtocol, encoded)
	}

	var out strings.Builder
	for j := 0; j < len(raw); j += 2 {
		unit := uint16(raw[j])<<8 | uint16(raw[j+1])
		if !utf16.IsSurrogate(rune(unit)) {
			out.WriteRune(rune(unit))
			continue
		}
		if j+3 >= len(raw) {
			return "", fmt.Errorf("%w: utf7: truncated surrogate pair in %q", mailcore.ErrProtocol, encoded)
		}
		j += 2
		low := uint16(raw[j])<<8 | uint16(raw[j+1])
		r := utf16.DecodeRune(rune(unit), rune(low))
		if r == '�' {
			return "", fmt.Errorf("%w: utf7: invalid surrogate pair in %q", mailcore.ErrProtocol, encoded)
		}
		out.WriteRune(r)
	}
	return out.String(), nil
}
