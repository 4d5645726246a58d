package imap

import (
	"encoding/base64"
	"fmt"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/auth"
	"github.com/tern-mail/mailcore/imap/wire"
)

// Login authenticates with a plaintext username/password via the LOGIN
// command, for servers that don't advertise LOGINDISABLED.
func (s *Session) Login(username, password string) error {
	args := quoteArg(username) + " " + quoteArg(password)
	if _, _, err := s.Command(CommandLogin, args); err != nil {
		return fmt.Errorf("%w: %v", mailcore.ErrAuthFailure, err)
	}
	s.State = ConnStateAuthenticated
	return nil
}

// Authenticate drives a SASL challenge-response exchange via AUTHENTICATE
// (RFC 4959 SASL-IR where advertised), using mech's Start/Next pair —
// normally one built by auth.Registry.Build.
func (s *Session) Authenticate(mech auth.ClientMechanism) error {
	name, ir, err := mech.Start()
	if err != nil {
		return fmt.Errorf("%w: sasl start: %v", mailcore.ErrAuthFailure, err)
	}

	args := name
	sentIR := false
	if ir != nil && s.Caps.Has(CapSASLIR) {
		args += " " + base64.StdEncoding.EncodeToString(ir)
		sentIR = true
	}

	tag, err := s.queue(CommandAuthenticate, args)
	if err != nil {
		return err
	}

	if ir != nil && !sentIR {
		challenge, err := s.ReadContinuation(tag)
		if err != nil {
			return err
		}
		_ = challenge // server's first continuation is empty for most IR-less mechanisms
		if err := s.SendLine(base64.StdEncoding.EncodeToString(ir)); err != nil {
			return err
		}
	}

	for {
		challenge, err := s.tryReadContinuation(tag)
		if err != nil {
			return err
		}
		if challenge == nil {
			break // command completed
		}
		decoded, err := base64.StdEncoding.DecodeString(*challenge)
		if err != nil {
			return fmt.Errorf("%w: decoding server challenge: %v", mailcore.ErrProtocol, err)
		}
		resp, err := mech.Next(decoded)
		if err != nil {
			return fmt.Errorf("%w: sasl next: %v", mailcore.ErrAuthFailure, err)
		}
		if err := s.SendLine(base64.StdEncoding.EncodeToString(resp)); err != nil {
			return err
		}
	}

	sr, _, err := s.awaitTag(tag)
	if err != nil {
		return err
	}
	if sr.Type != StatusResponseTypeOK {
		return fmt.Errorf("%w: %s", mailcore.ErrAuthFailure, sr.Error())
	}
	s.State = ConnStateAuthenticated
	return nil
}

// tryReadContinuation returns the next continuation text for tag, or nil
// (with no error) once tag's tagged response has arrived instead.
func (s *Session) tryReadContinuation(tag string) (*string, error) {
	for {
		for _, c := range s.cmds {
			if c.tag == tag && len(c.continuation) > 0 {
				line := c.continuation[0]
				c.continuation = c.continuation[1:]
				text := stripContinuationPrefix(line)
				return &text, nil
			}
		}
		if _, ok := s.completed[tag]; ok {
			return nil, nil
		}
		if err := s.step(); err != nil {
			return nil, err
		}
	}
}

func stripContinuationPrefix(line string) string {
	if len(line) >= 2 && line[0] == '+' && line[1] == ' ' {
		return line[2:]
	}
	if len(line) >= 1 && line[0] == '+' {
		return line[1:]
	}
	return line
}

func quoteArg(s string) string {
	return wire.QuoteString(s)
}
