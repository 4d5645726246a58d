package mime

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/tern-mail/mailcore"
)

// ComposeResult is what running a "compose"/"composetyped" mailcap
// command produced, once re-parsed.
type ComposeResult struct {
	// Path is the nametemplate-staged file the command edited in place.
	Path string
	// Header holds the result's re-parsed MIME headers, populated only
	// for a composetypecommand entry (spec.md step: "re-parse MIME
	// headers from the result").
	Header gomessage.Header
	// HeaderChanged is true whenever Header was re-parsed from a
	// composetyped result; Header is not compared against the part's
	// original header. Callers merge Params/Description from it.
	HeaderChanged bool
}

// Compose implements spec.md §4.E's compose/edit path for a mailcap
// entry carrying a "compose" or "composetyped" field: symlink the
// source file to a nametemplate-named scratch path, spawn the
// command, and — for composetyped — re-parse the result's MIME headers,
// stripping the header block back off via a temp-file shuffle so the
// body the part keeps is header-free again.
func (p *Pipeline) Compose(ctx context.Context, part *Part, entry *Entry, sourcePath string) (*ComposeResult, error) {
	command := entry.Composecommand
	typed := false
	if entry.Composetypecommand != "" {
		command = entry.Composetypecommand
		typed = true
	}
	if command == "" {
		return nil, fmt.Errorf("mime: compose: %w: entry has no compose command", mailcore.ErrViewer)
	}

	staged := p.Registry.New(expandNametemplate(entry.Nametemplate, sanitizeFilename(part.Filename, false)))
	if err := os.Symlink(sourcePath, staged); err != nil {
		return nil, fmt.Errorf("mime: compose: %w", err)
	}

	cmdline, _ := expandCommand(command, staged, part.MimeType(), part.Params)
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("mime: compose: %w: %v", mailcore.ErrViewer, err)
	}

	result := &ComposeResult{Path: staged}
	if !typed {
		return result, nil
	}

	header, err := splitHeaderFromResult(staged)
	if err != nil {
		return nil, fmt.Errorf("mime: compose: %w", err)
	}
	result.Header = header
	result.HeaderChanged = true
	mergeHeaderIntoPart(part, header)
	return result, nil
}

// splitHeaderFromResult re-parses staged as a full RFC 5322 message,
// returning its header and rewriting staged in place to hold only the
// body — the "temp-file shuffle" spec.md's compose step names, needed
// because a composetypecommand is free to rewrite Content-Type/
// Content-Disposition and those changes must flow back into the part
// without leaving a stray header block in the body bytes themselves.
func splitHeaderFromResult(staged string) (gomessage.Header, error) {
	f, err := os.Open(staged)
	if err != nil {
		return gomessage.Header{}, err
	}
	e, err := gomessage.Read(f)
	f.Close()
	if err != nil {
		return gomessage.Header{}, fmt.Errorf("%w: %v", mailcore.ErrDecode, err)
	}

	bodyPath := staged + ".body"
	out, err := os.Create(bodyPath)
	if err != nil {
		return gomessage.Header{}, err
	}
	if _, err := io.Copy(out, e.Body); err != nil {
		out.Close()
		return gomessage.Header{}, err
	}
	out.Close()

	if err := os.Rename(bodyPath, staged); err != nil {
		return gomessage.Header{}, err
	}
	return e.Header, nil
}

// mergeHeaderIntoPart folds the Content-Type parameters and Content-
// Description a composetypecommand's result may have changed back into
// part, per spec.md's "merging parameters/description" clause.
func mergeHeaderIntoPart(part *Part, header gomessage.Header) {
	if t, params, err := header.ContentType(); err == nil && t != "" {
		typ, sub, _ := strings.Cut(t, "/")
		part.Type, part.Subtype = strings.ToLower(typ), strings.ToLower(sub)
		for k, v := range params {
			part.Params[k] = v
		}
	}
	if desc := header.Get("Content-Description"); desc != "" {
		part.Description = desc
	}
}
