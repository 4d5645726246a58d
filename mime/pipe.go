package mime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/tern-mail/mailcore"
)

// isFlowed reports whether part is a "text/plain; format=flowed" body
// (RFC 3676), whose leading space-stuffing must be undone before piping,
// printing, or decode-saving it as ordinary text.
func isFlowed(part *Part) bool {
	if part.Type != "text" || part.Subtype != "plain" {
		return false
	}
	return strings.EqualFold(part.Params["format"], "flowed")
}

// unstuffFlowed copies src to dst, stripping exactly one leading space
// from any line that starts with one — RFC 3676's "space-stuffing"
// undone the same way on receipt as it was added on send.
func unstuffFlowed(dst io.Writer, src io.Reader) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	w := bufio.NewWriter(dst)
	for sc.Scan() {
		line := sc.Text()
		line = strings.TrimPrefix(line, " ")
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return w.Flush()
}

// decodedMaybeUnstuffed returns part's decoded body, with format=flowed
// space-stuffing removed when applicable, buffered into memory since the
// unstuffing pass needs to re-read line by line.
func decodedMaybeUnstuffed(part *Part) (io.Reader, error) {
	r, err := part.Decoded()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrDecode, err)
	}
	if !isFlowed(part) {
		return r, nil
	}
	var buf strings.Builder
	if err := unstuffFlowed(&buf, r); err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrDecode, err)
	}
	return strings.NewReader(buf.String()), nil
}

// PipeAttachment implements spec.md §4.E's pipe_attachment: spawn cmdline
// through a shell, write the part's decoded (and format=flowed-unstuffed)
// body to its stdin, and propagate its exit status.
func PipeAttachment(ctx context.Context, part *Part, cmdline string) error {
	r, err := decodedMaybeUnstuffed(part)
	if err != nil {
		return fmt.Errorf("mime: pipe: %w", err)
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Stdin = r
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mime: pipe: %w: %v", mailcore.ErrViewer, err)
	}
	return nil
}

// PrintAttachment implements spec.md §4.E's print_attachment: identical
// shape to PipeAttachment, against the configured print command rather
// than a user-supplied one.
func PrintAttachment(ctx context.Context, part *Part, printCommand string) error {
	if printCommand == "" {
		return fmt.Errorf("mime: print: %w: no print command configured", mailcore.ErrViewer)
	}
	return PipeAttachment(ctx, part, printCommand)
}

// DecodeSave implements spec.md §4.E's decode-and-save path: decode
// part's body (undoing format=flowed stuffing when applicable) straight
// to path, fsync, and close — the same shape as PipeAttachment but
// writing to a file instead of a child process's stdin.
func DecodeSave(part *Part, path string) error {
	r, err := decodedMaybeUnstuffed(part)
	if err != nil {
		return fmt.Errorf("mime: decode-save: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("mime: decode-save: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("mime: decode-save: %w: %v", mailcore.ErrDecode, err)
	}
	return f.Sync()
}
