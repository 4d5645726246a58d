package mime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/tern-mail/mailcore"
)

// Mode selects how ViewAttachment chooses between a mailcap handler and
// the internal decoder, per spec.md step 2.
type Mode int

const (
	ModeRegular Mode = iota // use mailcap only if the part can't be decoded internally
	ModeMailcap             // always use mailcap
	ModePager               // mailcap only via an autoview entry
)

// Pager is the terminal UI collaborator spec.md treats as external: the
// thing that actually paints decoded or piped-copiousoutput text on
// screen. Non-goal per spec.md §1; referenced only through this
// interface.
type Pager interface {
	// ShowFile displays path (already decoded/staged) with the given
	// banner line, blocking until the user dismisses it.
	ShowFile(ctx context.Context, path, banner string) error
}

// Pipeline ties mailcap lookup, the scratch-file Registry, and the
// external UI collaborators together into the view/save/pipe/print
// operations of spec.md §4.E. Prompt reuses mailcore.Prompter's
// PressAnyKey for the "press any key to continue" wait after every
// needsterminal mailcap command, rather than a bespoke interface
// duplicating it.
type Pipeline struct {
	Mailcaps []Entry
	Registry *Registry
	Pager    Pager
	Prompt   mailcore.Prompter
	// KeepAlive is invoked periodically while waiting on an external
	// viewer command, piped or not, so an IMAP connection doesn't idle out mid-view
	// (spec.md step 9). Nil for POP or a local driver, where no such
	// poll exists.
	KeepAlive func(ctx context.Context) error
}

// ViewResult reports what ViewAttachment actually did, for callers (tests
// included) that need to assert on it without a real terminal.
type ViewResult struct {
	Path      string
	Piped     bool
	UsedPager bool
	ExitCode  int
}

// ViewAttachment implements spec.md §4.E's view_attachment algorithm.
// winWidth sets COLUMNS for the child process environment.
func (p *Pipeline) ViewAttachment(ctx context.Context, part *Part, mode Mode, winWidth int) (*ViewResult, error) {
	if part.IsEncryptedMessage() {
		return nil, fmt.Errorf("mime: view: %w: passphrase not loaded", mailcore.ErrDecode)
	}

	mimeType := part.MimeType()
	useMailcap := mode == ModeMailcap || mode == ModePager
	var entry *Entry
	if mode == ModeRegular && !canDecodeInternally(part) {
		useMailcap = true
	}
	if useMailcap {
		opts := LookupOpts{RequireAutoview: mode == ModePager}
		found, ok := Lookup(p.Mailcaps, mimeType, opts)
		if !ok {
			if mode == ModeMailcap {
				return nil, fmt.Errorf("mime: view: %w: no mailcap entry for %s", mailcore.ErrViewer, mimeType)
			}
			useMailcap = false
		} else {
			entry = found
		}
	}

	if useMailcap && entry.Command == "" {
		return nil, fmt.Errorf("mime: view: %w: mailcap entry for %s has no command", mailcore.ErrViewer, mimeType)
	}

	env := append(os.Environ(), fmt.Sprintf("COLUMNS=%d", winWidth))

	if useMailcap {
		return p.viewViaMailcap(ctx, part, entry, mimeType, env)
	}
	return p.viewInternally(ctx, part, mimeType)
}

func canDecodeInternally(part *Part) bool {
	return part.Type == "text"
}

func (p *Pipeline) viewViaMailcap(ctx context.Context, part *Part, entry *Entry, mimeType string, env []string) (*ViewResult, error) {
	name := sanitizeFilename(part.Filename, false)
	staged := p.Registry.New(expandNametemplate(entry.Nametemplate, name))

	if err := p.stageDecoded(part, staged); err != nil {
		return nil, err
	}

	cmdline, piped := expandCommand(entry.Command, staged, mimeType, part.Params)
	usePager := entry.Copiousoutput

	result := &ViewResult{Path: staged, Piped: piped}

	switch {
	case piped && usePager:
		pagerFile := p.Registry.New("")
		out, err := os.Create(pagerFile)
		if err != nil {
			return nil, fmt.Errorf("mime: view: %w", err)
		}
		defer out.Close()
		cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
		cmd.Env = env
		in, err := os.Open(staged)
		if err != nil {
			return nil, fmt.Errorf("mime: view: %w", err)
		}
		defer in.Close()
		cmd.Stdin = in
		cmd.Stdout = out
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("mime: view: %w: %v", mailcore.ErrViewer, err)
		}
		result.UsedPager = true
		result.Path = pagerFile
		return result, p.showPager(ctx, pagerFile, bannerFor(part, mimeType))

	case piped:
		in, err := os.Open(staged)
		if err != nil {
			return nil, fmt.Errorf("mime: view: %w", err)
		}
		defer in.Close()
		if err := p.runInteractive(ctx, cmdline, env, in); err != nil {
			return nil, err
		}
		return result, p.maybeWaitKey(ctx, entry)

	default:
		if err := p.runInteractive(ctx, cmdline, env, nil); err != nil {
			return nil, err
		}
		return result, p.maybeWaitKey(ctx, entry)
	}
}

func (p *Pipeline) runInteractive(ctx context.Context, cmdline string, env []string, stdin *os.File) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Env = env
	cmd.Stdin = stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mime: view: %w: %v", mailcore.ErrViewer, err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if p.KeepAlive == nil {
		return waitErr(<-done)
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return waitErr(err)
		case <-ticker.C:
			_ = p.KeepAlive(ctx)
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return ctx.Err()
		}
	}
}

func waitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("mime: view: %w: %v", mailcore.ErrViewer, err)
}

func (p *Pipeline) maybeWaitKey(ctx context.Context, entry *Entry) error {
	if entry.NeedsTerminal && p.Prompt != nil {
		return p.Prompt.PressAnyKey("")
	}
	return nil
}

func (p *Pipeline) showPager(ctx context.Context, path, banner string) error {
	if p.Pager == nil {
		return nil
	}
	return p.Pager.ShowFile(ctx, path, banner)
}

func (p *Pipeline) viewInternally(ctx context.Context, part *Part, mimeType string) (*ViewResult, error) {
	pagerFile := p.Registry.New("")
	if err := p.stageDecoded(part, pagerFile); err != nil {
		return nil, err
	}
	banner := bannerFor(part, mimeType)
	return &ViewResult{Path: pagerFile, UsedPager: true}, p.showPager(ctx, pagerFile, banner)
}

func (p *Pipeline) stageDecoded(part *Part, path string) error {
	r, err := part.Decoded()
	if err != nil {
		return fmt.Errorf("mime: view: %w: %v", mailcore.ErrDecode, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mime: view: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("mime: view: %w: %v", mailcore.ErrDecode, err)
	}
	return nil
}

func bannerFor(part *Part, mimeType string) string {
	name := part.Filename
	if name == "" {
		name = mimeType
	}
	return fmt.Sprintf("-- Attachment: %s (%s) --", name, mimeType)
}

// sanitizeFilename strips directory separators from a part's declared
// filename so it can never escape the staging directory, except in send
// mode where a caller-chosen path is trusted.
func sanitizeFilename(name string, sendMode bool) string {
	if name == "" {
		return "attachment"
	}
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if sendMode {
		return name
	}
	return base
}

// ViewAttachmentRelated is ViewAttachment for an HTML part that is one
// child of a multipart/related group: it stages every Content-Id sibling
// to its own scratch file first and rewrites the HTML's "cid:" URLs to
// point at them before handing off to ViewAttachment's normal mailcap/
// pager logic.
func (p *Pipeline) ViewAttachmentRelated(ctx context.Context, group, html *Part, mode Mode, winWidth int) (*ViewResult, error) {
	if group.Type != "multipart" || group.Subtype != "related" {
		return p.ViewAttachment(ctx, html, mode, winWidth)
	}

	staged := map[string]string{}
	for _, sib := range group.Children {
		if sib == html || sib.ContentID == "" {
			continue
		}
		dst := p.Registry.New(sanitizeFilename(sib.Filename, false))
		if err := p.stageDecoded(sib, dst); err != nil {
			return nil, err
		}
		staged[sib.ContentID] = dst
	}

	body, err := html.Decoded()
	if err != nil {
		return nil, fmt.Errorf("mime: view: %w: %v", mailcore.ErrDecode, err)
	}
	raw, err := io.ReadAll(bufio.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mime: view: %w", err)
	}
	text := string(raw)
	for cid, filePath := range staged {
		text = strings.ReplaceAll(text, "cid:"+cid, "file://"+filePath)
	}

	tmp := p.Registry.New("related%s.html")
	if err := os.WriteFile(tmp, []byte(text), 0o600); err != nil {
		return nil, fmt.Errorf("mime: view: %w", err)
	}
	// Re-stage through the normal pipeline using the already-rewritten file
	// rather than html.Decoded() a second time.
	return p.viewStagedFile(ctx, tmp, html, mode, winWidth)
}

func (p *Pipeline) viewStagedFile(ctx context.Context, stagedPath string, html *Part, mode Mode, winWidth int) (*ViewResult, error) {
	mimeType := html.MimeType()
	useMailcap := mode == ModeMailcap || mode == ModePager
	var entry *Entry
	if useMailcap {
		found, ok := Lookup(p.Mailcaps, mimeType, LookupOpts{RequireAutoview: mode == ModePager})
		if !ok {
			if mode == ModeMailcap {
				return nil, fmt.Errorf("mime: view: %w: no mailcap entry for %s", mailcore.ErrViewer, mimeType)
			}
			useMailcap = false
		} else {
			entry = found
		}
	}
	env := append(os.Environ(), fmt.Sprintf("COLUMNS=%d", winWidth))
	if !useMailcap {
		return &ViewResult{Path: stagedPath, UsedPager: true}, p.showPager(ctx, stagedPath, bannerFor(html, mimeType))
	}
	cmdline, piped := expandCommand(entry.Command, stagedPath, mimeType, html.Params)
	result := &ViewResult{Path: stagedPath, Piped: piped}
	if err := p.runInteractive(ctx, cmdline, env, nil); err != nil {
		return nil, err
	}
	return result, p.maybeWaitKey(ctx, entry)
}
