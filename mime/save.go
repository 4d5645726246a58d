package mime

import (
	"fmt"
	"io"
	"os"

	"github.com/tern-mail/mailcore"
)

// SaveOpt selects how SaveAttachment opens the destination, mirroring the
// quad-option prompt ("overwrite / append / cancel") of spec.md §4.E.
type SaveOpt int

const (
	SaveWrite     SaveOpt = iota // fail if path already exists
	SaveAppend                   // append to an existing file
	SaveOverwrite                // truncate and replace
)

// SaveAttachment implements spec.md §4.E's save_attachment for the
// receive-mode, non-message-type case: seek to the part's decoded body
// and write it to path under opt's open discipline, then fsync.
//
// spec.md's receive-mode message-type branch ("treat path as a mailbox
// and append through the generic mailbox interface") is not implemented
// here: mailbox.Driver (SPEC_FULL.md §4.H) exposes Open/Sync/Close and
// per-message MsgOpen/MsgClose, but no generic "append a freshly composed
// message" verb — that capability belongs to the local mbox/Maildir/MH
// driver and SMTP client, both explicit Non-goals. Saving a message/*
// part here always writes its raw decoded bytes as a plain file.
func SaveAttachment(part *Part, path string, opt SaveOpt) error {
	flags := os.O_CREATE | os.O_WRONLY
	switch opt {
	case SaveWrite:
		flags |= os.O_EXCL
	case SaveAppend:
		flags |= os.O_APPEND
	case SaveOverwrite:
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("mime: save: %w", err)
	}
	defer f.Close()

	r, err := part.Decoded()
	if err != nil {
		return fmt.Errorf("mime: save: %w: %v", mailcore.ErrDecode, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("mime: save: %w: %v", mailcore.ErrDecode, err)
	}
	return f.Sync()
}

// SaveAttachmentVerbatim is SaveAttachment's send-mode counterpart: copy
// part's original (still transfer-encoded) bytes verbatim from its
// source file into path, the way spec.md step 6's send-mode branch
// requires for a part being re-sent unmodified.
func SaveAttachmentVerbatim(part *Part, path string, opt SaveOpt) error {
	flags := os.O_CREATE | os.O_WRONLY
	switch opt {
	case SaveWrite:
		flags |= os.O_EXCL
	case SaveAppend:
		flags |= os.O_APPEND
	case SaveOverwrite:
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("mime: save: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, part.Raw()); err != nil {
		return fmt.Errorf("mime: save: %w", err)
	}
	return f.Sync()
}
