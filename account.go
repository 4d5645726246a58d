package mailcore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AccountFlags records which Account fields were populated explicitly by
// the user versus defaulted or parsed from a URL, per the data model in
// SPEC_FULL.md §4.B.
type AccountFlags struct {
	UserFromURL  bool
	PassFromURL  bool
	PortExplicit bool
	SSLExplicit  bool
}

// Scheme identifies the mailbox access protocol encoded in an account URL.
type Scheme string

const (
	SchemePOP  Scheme = "pop"
	SchemePOPS Scheme = "pops"
	SchemeIMAP Scheme = "imap"
	SchemeIMAPS Scheme = "imaps"
)

// IsSSL reports whether the scheme implies an immediate TLS connection
// (as opposed to an in-band STARTTLS/STLS upgrade).
func (s Scheme) IsSSL() bool {
	return s == SchemePOPS || s == SchemeIMAPS
}

// IsIMAP reports whether the scheme addresses an IMAP mailbox.
func (s Scheme) IsIMAP() bool {
	return s == SchemeIMAP || s == SchemeIMAPS
}

// IsPOP reports whether the scheme addresses a POP3 mailbox.
func (s Scheme) IsPOP() bool {
	return s == SchemePOP || s == SchemePOPS
}

// DefaultPort returns the conventional port for the scheme.
func (s Scheme) DefaultPort() int {
	switch s {
	case SchemePOP:
		return 110
	case SchemePOPS:
		return 995
	case SchemeIMAP:
		return 143
	case SchemeIMAPS:
		return 993
	default:
		return 0
	}
}

// CredentialSource is the capability callback the data model uses to fetch
// credentials lazily; the Account itself never stores a password unless
// the caller supplied one explicitly.
type CredentialSource interface {
	// Password returns the account password, prompting the user if
	// necessary. Returns ErrAuthCancelled if the user declines.
	Password(ctx context.Context, a *Account) (string, error)
	// OAuthToken runs the configured external refresh command and
	// returns a bearer token.
	OAuthToken(ctx context.Context, a *Account) (string, error)
}

// Account identifies a mail server identity, as parsed from a
// pop(s)://user:pass@host:port/mbox or imap(s)://... URL, or built up
// programmatically.
type Account struct {
	Scheme   string
	Host     string
	Port     int
	User     string
	Login    string // SASL authentication identity, if distinct from User
	Password *string
	// OAuthRefreshCmd is an external command invoked to mint a bearer
	// token; empty means OAUTHBEARER is not configured for this account.
	OAuthRefreshCmd string
	// Mailbox is the path segment of the URL (POP: informational only,
	// since POP has no paths; IMAP: the mailbox to select).
	Mailbox string
	Flags   AccountFlags

	creds CredentialSource
}

// WithCredentialSource attaches the capability callback used to resolve a
// password or OAuth token on demand.
func (a *Account) WithCredentialSource(c CredentialSource) *Account {
	a.creds = c
	return a
}

// ResolvePassword returns the stored password if one was supplied, or
// fetches one via the credential source.
func (a *Account) ResolvePassword(ctx context.Context) (string, error) {
	if a.Password != nil {
		return *a.Password, nil
	}
	if a.creds == nil {
		return "", fmt.Errorf("mailcore: no credential source configured for %s@%s", a.User, a.Host)
	}
	return a.creds.Password(ctx, a)
}

// ResolveOAuthToken runs the OAuth refresh command via the credential
// source.
func (a *Account) ResolveOAuthToken(ctx context.Context) (string, error) {
	if a.creds == nil {
		return "", fmt.Errorf("mailcore: no credential source configured for %s@%s", a.User, a.Host)
	}
	return a.creds.OAuthToken(ctx, a)
}

// Match implements the two-account equality rule: scheme, host
// (case-insensitive) and user must all agree.
func (a *Account) Match(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return strings.EqualFold(a.Scheme, other.Scheme) &&
		strings.EqualFold(a.Host, other.Host) &&
		a.User == other.User
}

// Addr returns the "host:port" dial target.
func (a *Account) Addr() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// ParseURL parses a pop(s)://user:pass@host:port/mbox or
// imap(s)://user:pass@host:port/mbox URL per SPEC_FULL.md §6.
func ParseURL(raw string) (*Account, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("mailcore: parsing account url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch Scheme(scheme) {
	case SchemePOP, SchemePOPS, SchemeIMAP, SchemeIMAPS:
	default:
		return nil, fmt.Errorf("mailcore: unsupported scheme %q", u.Scheme)
	}

	a := &Account{Scheme: scheme}

	if u.User != nil {
		a.User = u.User.Username()
		a.Flags.UserFromURL = true
		if pass, ok := u.User.Password(); ok {
			a.Password = &pass
			a.Flags.PassFromURL = true
		}
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("mailcore: account url missing host")
	}
	a.Host = host

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("mailcore: invalid port %q: %w", portStr, err)
		}
		a.Port = port
		a.Flags.PortExplicit = true
	} else {
		a.Port = Scheme(scheme).DefaultPort()
	}

	a.Mailbox = strings.TrimPrefix(u.Path, "/")

	return a, nil
}

// String renders the account back into URL form, eliding the password.
func (a *Account) String() string {
	var b strings.Builder
	b.WriteString(a.Scheme)
	b.WriteString("://")
	if a.User != "" {
		b.WriteString(url.User(a.User).String())
		b.WriteByte('@')
	}
	b.WriteString(a.Host)
	if a.Flags.PortExplicit {
		fmt.Fprintf(&b, ":%d", a.Port)
	}
	if a.Mailbox != "" {
		b.WriteByte('/')
		b.WriteString(a.Mailbox)
	}
	return b.String()
}
