package mime

import (
	"bytes"
	"io"

	gomessage "github.com/emersion/go-message"
)

// ReEncode re-serializes p as a complete RFC 5322 message (header and
// body both) using current charset/transfer-encoding rules, the
// "re-encode" step of spec.md §4.I's send/resend obligation. p is meant
// to be the root Part Parse returned — the one case where nothing about
// its transfer encoding needs to change (a multipart tree, or a
// non-text root) is passed through as the exact original bytes Parse
// read, via the root's retained raw copy. Only a single-part text root
// is actually rewritten: its body is converted to UTF-8 and re-encoded
// quoted-printable (7bit when it turns out to already be plain ASCII).
func (p *Part) ReEncode() ([]byte, error) {
	if p.entity == nil {
		return nil, nil
	}
	if p.IsMultipart() || p.Type != "text" {
		if p.raw != nil {
			return p.raw, nil
		}
		var buf bytes.Buffer
		if err := gomessage.Write(&buf, p.entity.Header, p.Raw()); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	text, err := io.ReadAll(mustDecode(p))
	if err != nil {
		return nil, err
	}

	header := p.entity.Header
	header.Set("Content-Type", "text/"+p.Subtype+"; charset=utf-8")
	header.Set("Content-Transfer-Encoding", transferEncodingFor(text))

	var buf bytes.Buffer
	if err := gomessage.Write(&buf, header, bytes.NewReader(text)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustDecode(p *Part) io.Reader {
	r, err := p.Decoded()
	if err != nil {
		return p.Raw()
	}
	return r
}

func transferEncodingFor(text []byte) string {
	for _, b := range text {
		if b > 0x7f {
			return "quoted-printable"
		}
	}
	return "7bit"
}
