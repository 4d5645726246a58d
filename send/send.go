// Package send implements the Send/Resend orchestrator (spec.md §4.I):
// reconstituting a stored message through mailbox.Driver and mime, then
// handing the re-encoded result to the configured MTA boundary.
package send

import (
	"context"
	"fmt"
	"io"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/mailbox"
	"github.com/tern-mail/mailcore/mime"
)

// MTA is the SMTP delivery boundary — a Non-goal here. Send hands the
// envelope and fully re-encoded RFC 5322 bytes to whatever the embedder
// wires up (local sendmail, a submission client, a test double).
type MTA interface {
	Send(ctx context.Context, env *mailcore.Envelope, rfc822 []byte) error
}

// Decryptor is consulted only when the stored copy's root part is itself
// an encrypted envelope (mime.Part.IsEncryptedMessage). Crypto is a
// Non-goal; a nil Decryptor makes Resend fail closed on such a message
// rather than attempt to reconstitute ciphertext, mirroring the check
// mime.ViewAttachment already applies before invoking a pager.
type Decryptor interface {
	Decrypt(ctx context.Context, part *mime.Part) (io.Reader, error)
}

// Orchestrator ties a mailbox.Driver, the mime pipeline, and an MTA
// together.
type Orchestrator struct {
	Driver    mailbox.Driver
	Decryptor Decryptor
	MTA       MTA
}

// Result reports what Resend did.
type Result struct {
	MessageID string
	// Replied is true only when origInReplyTo was given and the
	// regenerated message still references it, per spec.md §4.I's
	// "set the replied flag only ... when the generated message's
	// In-Reply-To/References still point at the original".
	Replied bool
}

// Resend reconstitutes the stored message addressed by uid from mbox
// (decrypting first if it's an encrypted envelope), re-encodes it with
// current charset/transfer-encoding rules, and hands it to the
// configured MTA. origInReplyTo, if non-empty, is the message-id the
// caller expects the outgoing message to still be replying to; Resend
// reports Replied=true only if that holds after reconstitution.
func (o *Orchestrator) Resend(ctx context.Context, mbox string, uid string, origInReplyTo string) (*Result, error) {
	if _, err := o.Driver.Open(ctx, mbox); err != nil {
		return nil, fmt.Errorf("send: open %s: %w", mbox, err)
	}
	msg, err := o.Driver.MsgOpen(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("send: open message %s: %w", uid, err)
	}
	defer o.Driver.MsgClose(ctx, msg)

	part, err := mime.Parse(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("send: reconstitute %s: %w", uid, err)
	}

	if part.IsEncryptedMessage() {
		part, err = o.decrypt(ctx, uid, part)
		if err != nil {
			return nil, err
		}
	}

	raw, err := part.ReEncode()
	if err != nil {
		return nil, fmt.Errorf("send: re-encode %s: %w", uid, err)
	}

	env := msg.Header.Envelope
	if err := o.MTA.Send(ctx, &env, raw); err != nil {
		return nil, fmt.Errorf("send: deliver %s: %w", uid, err)
	}

	result := &Result{MessageID: env.MessageID}
	if origInReplyTo != "" && stillReplying(env, origInReplyTo) {
		result.Replied = true
	}
	return result, nil
}

func (o *Orchestrator) decrypt(ctx context.Context, uid string, part *mime.Part) (*mime.Part, error) {
	if o.Decryptor == nil {
		return nil, fmt.Errorf("%w: message %s is encrypted, no decryptor configured", mailcore.ErrDecode, uid)
	}
	plain, err := o.Decryptor.Decrypt(ctx, part)
	if err != nil {
		return nil, fmt.Errorf("send: decrypt %s: %w", uid, err)
	}
	decrypted, err := mime.Parse(plain)
	if err != nil {
		return nil, fmt.Errorf("send: reconstitute decrypted %s: %w", uid, err)
	}
	return decrypted, nil
}

func stillReplying(env mailcore.Envelope, origMessageID string) bool {
	if env.InReplyTo == origMessageID {
		return true
	}
	for _, ref := range env.References {
		if ref == origMessageID {
			return true
		}
	}
	return false
}
