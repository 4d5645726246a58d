package pop

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/auth"
)

// Authenticate runs the authenticator chain spec.md §4.F describes: try
// whatever the server offers in decreasing order of strength (OAUTHBEARER
// when the account has a refresh command, any other SASL mechanism the
// server advertised, APOP when the greeting carried a timestamp), falling
// back to the plaintext USER/PASS pair only once everything else has
// declined to apply.
func Authenticate(ctx context.Context, sess *Session, account *mailcore.Account) error {
	password, err := account.ResolvePassword(ctx)
	if err != nil {
		return err
	}
	creds := auth.Credentials{
		Username: account.User,
		AuthzID:  account.Login,
		Password: password,
		Host:     account.Host,
	}

	if account.OAuthRefreshCmd != "" && hasMech(sess.Caps.SASL, "OAUTHBEARER") {
		token, err := account.ResolveOAuthToken(ctx)
		if err != nil {
			return err
		}
		creds.Token = token
		mech, err := auth.DefaultRegistry.Build("OAUTHBEARER", creds)
		if err == nil {
			if err := authViaSASL(sess, "OAUTHBEARER", mech); err == nil {
				sess.State = StateAuthenticated
				return nil
			}
		}
	}

	if len(sess.Caps.SASL) > 0 {
		name, mech, err := auth.Negotiate(sess.Caps.SASL, creds)
		if err == nil {
			if err := authViaSASL(sess, name, mech); err == nil {
				sess.State = StateAuthenticated
				return nil
			}
		}
	}

	if sess.ApopTimestamp != "" {
		if err := authAPOP(sess, account.User, password); err == nil {
			sess.State = StateAuthenticated
			return nil
		}
	}

	if sess.Caps.User != TriNo {
		if err := authUserPass(sess, account.User, password); err != nil {
			return err
		}
		sess.State = StateAuthenticated
		return nil
	}

	return fmt.Errorf("%w: no applicable authentication method for %s", mailcore.ErrAuthFailure, account.Host)
}

func hasMech(offered []string, name string) bool {
	for _, o := range offered {
		if strings.EqualFold(o, name) {
			return true
		}
	}
	return false
}

// authViaSASL drives one AUTH <mech> exchange, base64-framing each
// challenge/response line the way spec.md §4.F's SASL method describes
// ("base64 framing, '+ '-continuation lines").
func authViaSASL(sess *Session, name string, mech auth.ClientMechanism) error {
	_, ir, err := mech.Start()
	if err != nil {
		return fmt.Errorf("%w: sasl start: %v", mailcore.ErrAuthFailure, err)
	}

	cmd := "AUTH " + name
	if ir != nil {
		cmd += " " + base64.StdEncoding.EncodeToString(ir)
	}
	if err := sess.sendLine(cmd); err != nil {
		return err
	}

	for {
		ok, text, continuation, err := sess.readAuthLine()
		if err != nil {
			return err
		}
		if continuation {
			challenge, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				return fmt.Errorf("%w: decoding server challenge: %v", mailcore.ErrProtocol, err)
			}
			resp, err := mech.Next(challenge)
			if err != nil {
				return fmt.Errorf("%w: sasl next: %v", mailcore.ErrAuthFailure, err)
			}
			if err := sess.sendLine(base64.StdEncoding.EncodeToString(resp)); err != nil {
				return err
			}
			continue
		}
		if !ok {
			return fmt.Errorf("%w: %s", mailcore.ErrAuthFailure, text)
		}
		return nil
	}
}

// readAuthLine reads one line during a SASL exchange, distinguishing a
// "+ <challenge>" continuation from a final "+OK"/"-ERR" status.
func (s *Session) readAuthLine() (ok bool, text string, continuation bool, err error) {
	line, err := s.conn.ReadLine()
	if err != nil {
		return false, "", false, err
	}
	switch {
	case strings.HasPrefix(line, "+ "):
		return false, line[2:], true, nil
	case line == "+":
		return false, "", true, nil
	case strings.HasPrefix(line, "+OK"):
		return true, strings.TrimSpace(strings.TrimPrefix(line, "+OK")), false, nil
	case strings.HasPrefix(line, "-ERR"):
		return false, strings.TrimSpace(strings.TrimPrefix(line, "-ERR")), false, nil
	default:
		return false, "", false, fmt.Errorf("%w: unexpected response %q", mailcore.ErrProtocol, line)
	}
}

// authAPOP computes the MD5 digest of the greeting timestamp concatenated
// with the password (RFC 1939 §7) and sends it as a single APOP command.
// The timestamp is not checked here: NewSession captures it only when the
// greeting carries an RFC 822 msg-id-shaped "<...@...>" token, and
// Authenticate calls authAPOP only when one was captured.
func authAPOP(sess *Session, user, password string) error {
	sum := md5.Sum([]byte(sess.ApopTimestamp + password))
	digest := hex.EncodeToString(sum[:])
	ok, msg, err := sess.command(fmt.Sprintf("APOP %s %s", user, digest))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: APOP: %s", mailcore.ErrAuthFailure, msg)
	}
	return nil
}

// authUserPass is the two-command fallback (spec.md §4.F: "USER/PASS:
// two-command fallback").
func authUserPass(sess *Session, user, password string) error {
	ok, msg, err := sess.command("USER " + user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: USER: %s", mailcore.ErrAuthFailure, msg)
	}
	ok, msg, err = sess.command("PASS " + password)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: PASS: %s", mailcore.ErrAuthFailure, msg)
	}
	return nil
}
