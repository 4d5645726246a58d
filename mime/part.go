// Package mime implements the attachment/MIME pipeline shared by both
// mailbox drivers: parsing a message into a tree of parts, mailcap
// lookup, and the view/save/pipe/print/decode operations that turn a
// part plus a chosen handler into a spawned external command or a
// decoded file (SPEC_FULL.md §4.E).
package mime

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

func init() {
	gomessage.CharsetReader = charset.Reader
}

// Part is one node of a parsed message's MIME tree. The root part is the
// whole message; Children is non-empty only for multipart types.
type Part struct {
	Type        string // "text", "image", "application", "multipart", ...
	Subtype     string
	Params      map[string]string
	Disposition string // "inline", "attachment", or "" if absent
	Filename    string
	ContentID   string
	Description string
	Encoding    string // Content-Transfer-Encoding, informational: go-message already removed it from Decoded()
	Children    []*Part

	entity *gomessage.Entity
	// raw holds the complete original message bytes, set only on the
	// part Parse returns directly (the root). A multipart Entity's Body
	// is fully consumed by fromEntity's NextPart walk, so Raw() on a
	// multipart part falls back to this instead of re-reading a drained
	// reader.
	raw []byte
}

// Parse reads a complete RFC 5322 message (header plus body, as msg_open
// hands back) into its MIME tree.
func Parse(r io.Reader) (*Part, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("mime: parse: %w", err)
	}
	e, err := gomessage.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mime: parse: %w", err)
	}
	p, err := fromEntity(e)
	if err != nil {
		return nil, err
	}
	p.raw = data
	return p, nil
}

func fromEntity(e *gomessage.Entity) (*Part, error) {
	p := &Part{entity: e, Params: map[string]string{}}

	t, params, err := e.Header.ContentType()
	if err != nil || t == "" {
		t, params = "text/plain", map[string]string{}
	}
	typ, sub, ok := strings.Cut(t, "/")
	if !ok {
		typ, sub = t, ""
	}
	p.Type, p.Subtype, p.Params = strings.ToLower(typ), strings.ToLower(sub), params

	disp, dparams, _ := e.Header.ContentDisposition()
	p.Disposition = strings.ToLower(disp)
	if name := dparams["filename"]; name != "" {
		p.Filename = name
	} else if name := params["name"]; name != "" {
		p.Filename = name
	}
	p.ContentID = strings.Trim(e.Header.Get("Content-Id"), "<>")
	p.Description = e.Header.Get("Content-Description")
	p.Encoding = e.Header.Get("Content-Transfer-Encoding")

	mr := e.MultipartReader()
	if mr == nil {
		return p, nil
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("mime: multipart: %w", err)
		}
		child, err := fromEntity(part)
		if err != nil {
			return nil, err
		}
		p.Children = append(p.Children, child)
	}
	return p, nil
}

// IsMultipart reports whether p has child parts.
func (p *Part) IsMultipart() bool { return p.Type == "multipart" }

// MimeType renders "type/subtype" the way mailcap entries and Content-Type
// headers both spell it.
func (p *Part) MimeType() string { return p.Type + "/" + p.Subtype }

// IsEncryptedMessage reports whether p is a part the signing/encrypting
// collaborator (a Non-goal here, referenced only through this check) would
// need a loaded passphrase to open: PGP/MIME's two-part envelope or an
// S/MIME enveloped-data blob.
func (p *Part) IsEncryptedMessage() bool {
	if p.Type == "multipart" && p.Subtype == "encrypted" {
		return true
	}
	if p.Type == "application" {
		switch p.Subtype {
		case "pgp-encrypted":
			return true
		case "pkcs7-mime", "x-pkcs7-mime":
			return strings.EqualFold(p.Params["smime-type"], "enveloped-data")
		}
	}
	return false
}

// Decoded returns a reader over the part's body with Content-Transfer-
// Encoding already removed by go-message. Leaf text parts are additionally
// converted to UTF-8 when their charset parameter names something else.
func (p *Part) Decoded() (io.Reader, error) {
	if p.entity == nil || p.entity.Body == nil {
		return bytes.NewReader(nil), nil
	}
	if p.Type != "text" {
		return p.entity.Body, nil
	}
	cs := strings.ToLower(p.Params["charset"])
	if cs == "" || cs == "utf-8" || cs == "us-ascii" {
		return p.entity.Body, nil
	}
	r, err := charset.Reader(cs, p.entity.Body)
	if err == nil {
		return r, nil
	}
	// go-message/charset only recognizes IANA-registered names; htmlindex
	// additionally knows the WHATWG aliases (e.g. "windows-1252" quirks,
	// "iso-8859-1" treated as "windows-1252") browsers send in practice.
	if enc, err := htmlindex.Get(cs); err == nil {
		return transform.NewReader(p.entity.Body, enc.NewDecoder()), nil
	}
	return p.entity.Body, nil
}

// Raw returns a reader over the part's body exactly as transmitted
// (transfer-encoded, original charset) — used by save/pipe operations in
// send mode where bytes must round-trip verbatim. For a multipart part
// this returns the complete original message bytes (header included):
// the multipart Entity's own Body was already fully consumed walking its
// children during Parse, so there is nothing left to read from it
// directly.
func (p *Part) Raw() io.Reader {
	if p.IsMultipart() {
		return bytes.NewReader(p.raw)
	}
	if p.entity == nil || p.entity.Body == nil {
		return bytes.NewReader(nil)
	}
	return p.entity.Body
}

// Walk visits p and its descendants depth-first, stopping early if visit
// returns false.
func (p *Part) Walk(visit func(*Part) bool) bool {
	if !visit(p) {
		return false
	}
	for _, c := range p.Children {
		if !c.Walk(visit) {
			return false
		}
	}
	return true
}

// FindByContentID returns the descendant part whose Content-Id equals cid
// (angle brackets already stripped), used to resolve multipart/related
// "cid:" references from an HTML sibling part.
func (p *Part) FindByContentID(cid string) *Part {
	cid = strings.Trim(cid, "<>")
	var found *Part
	p.Walk(func(n *Part) bool {
		if n.ContentID == cid {
			found = n
			return false
		}
		return true
	})
	return found
}
