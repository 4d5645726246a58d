// Package auth resolves a preference-ordered mechanism name into a SASL
// client, for both the IMAP AUTHENTICATE pipeline and the POP3
// authenticator chain (SPEC_FULL.md §4.F step 1 / §4.G capability
// negotiation). The actual mechanism math — PLAIN, LOGIN, CRAM-MD5,
// EXTERNAL, ANONYMOUS, OAUTHBEARER, XOAUTH2 — comes from
// github.com/emersion/go-sasl rather than a hand-rolled reimplementation.
package auth

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-sasl"
)

// ClientMechanism is the client half of one SASL exchange: an initial
// response plus a Next step for each subsequent server challenge.
type ClientMechanism = sasl.Client

// Credentials carries every field a mechanism factory might consult. Not
// every mechanism uses every field — PLAIN wants Username/Password,
// OAUTHBEARER wants Username/Token/Host/Port, EXTERNAL wants only AuthzID.
type Credentials struct {
	AuthzID  string
	Username string
	Password string
	// Token is an OAuth2 bearer/access token, resolved via
	// Account.ResolveOAuthToken before the mechanism is built.
	Token string
	Host  string
	Port  string
}

// Factory builds a ClientMechanism from resolved credentials.
type Factory func(c Credentials) (ClientMechanism, error)

// Registry is a case-insensitive mechanism-name to Factory lookup. The POP
// and IMAP drivers each walk their own preference order, asking the
// registry to build the first mechanism the server advertised and the
// account has credentials for.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToUpper(name)] = f
}

// Build constructs the named mechanism, or reports it as unsupported.
func (r *Registry) Build(name string, c Credentials) (ClientMechanism, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToUpper(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("auth: unsupported mechanism %q", name)
	}
	return f(c)
}

// Names returns the registered mechanism names, for capability-negotiation
// diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	return names
}

// DefaultRegistry carries the mechanisms SPEC_FULL.md §3 wires into the
// IMAP and POP authenticator chains.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register("PLAIN", func(c Credentials) (ClientMechanism, error) {
		return sasl.NewPlainClient(c.AuthzID, c.Username, c.Password), nil
	})
	DefaultRegistry.Register("LOGIN", func(c Credentials) (ClientMechanism, error) {
		return sasl.NewLoginClient(c.Username, c.Password), nil
	})
	DefaultRegistry.Register("CRAM-MD5", func(c Credentials) (ClientMechanism, error) {
		return sasl.NewCramMD5Client(c.Username, c.Password), nil
	})
	DefaultRegistry.Register("EXTERNAL", func(c Credentials) (ClientMechanism, error) {
		return sasl.NewExternalClient(c.AuthzID), nil
	})
	DefaultRegistry.Register("ANONYMOUS", func(c Credentials) (ClientMechanism, error) {
		return sasl.NewAnonymousClient(c.AuthzID), nil
	})
	DefaultRegistry.Register("OAUTHBEARER", func(c Credentials) (ClientMechanism, error) {
		if c.Token == "" {
			return nil, fmt.Errorf("auth: OAUTHBEARER requires a resolved token")
		}
		var port int
		if c.Port != "" {
			p, err := strconv.Atoi(c.Port)
			if err != nil {
				return nil, fmt.Errorf("auth: invalid port %q for OAUTHBEARER: %w", c.Port, err)
			}
			port = p
		}
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: c.Username,
			Token:    c.Token,
			Host:     c.Host,
			Port:     port,
		}), nil
	})
	DefaultRegistry.Register("XOAUTH2", func(c Credentials) (ClientMechanism, error) {
		if c.Token == "" {
			return nil, fmt.Errorf("auth: XOAUTH2 requires a resolved token")
		}
		return sasl.NewXoauth2Client(c.Username, c.Token), nil
	})
}

// PreferenceOrder is the order mechanisms are tried in when a server
// advertises more than one and the account hasn't pinned a specific
// choice: strongest-proof-of-possession first, then plaintext PLAIN, and
// ANONYMOUS last.
var PreferenceOrder = []string{
	"OAUTHBEARER", "XOAUTH2", "EXTERNAL", "CRAM-MD5", "LOGIN", "PLAIN", "ANONYMOUS",
}

// Negotiate returns the first mechanism in PreferenceOrder that both
// appears in offered (case-insensitive) and builds successfully from c. It
// returns an error satisfying errors.Is(err, mailcore.ErrAuthFailure)-style
// callers can wrap if nothing matches; here it simply reports no match.
func Negotiate(offered []string, c Credentials) (string, ClientMechanism, error) {
	offeredSet := make(map[string]bool, len(offered))
	for _, o := range offered {
		offeredSet[strings.ToUpper(o)] = true
	}
	for _, name := range PreferenceOrder {
		if !offeredSet[name] {
			continue
		}
		mech, err := DefaultRegistry.Build(name, c)
		if err != nil {
			continue
		}
		return name, mech, nil
	}
	return "", nil, fmt.Errorf("auth: no usable mechanism among %v", offered)
}
