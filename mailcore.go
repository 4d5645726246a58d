// Package mailcore implements the network mail-access core of a terminal
// email client: POP3 and IMAP protocol state machines, the on-disk body and
// header caches they share, and the MIME pipeline used to view, save, pipe,
// print and resend message parts.
//
// The terminal UI, configuration/hook loading, SMTP delivery, local mailbox
// drivers and cryptographic signing are all treated as external
// collaborators and are reached only through the interfaces this package
// and its subpackages expose (Prompter, mailbox.Driver, send.MTA, and the
// CredentialSource on Account).
package mailcore

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tern-mail/mailcore/metrics"
)

// Tristate is an explicit three-valued capability flag. Design Note:
// never conflate "unknown" (not yet probed, or probe unsupported) with
// "false" (probed and absent).
type Tristate int

const (
	Unknown Tristate = iota
	Supported
	Unsupported
)

func (t Tristate) String() string {
	switch t {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// QuadOption models a yes/no/ask-yes/ask-no configuration choice. The core
// never prompts directly: Resolve consults the Prompter collaborator only
// when the option is one of the Ask* variants.
type QuadOption int

const (
	OptionNo QuadOption = iota
	OptionYes
	OptionAskYes
	OptionAskNo
)

// Resolve returns the effective boolean answer for this option, consulting
// p only if the option requires a prompt.
func (o QuadOption) Resolve(p Prompter, prompt string) (bool, error) {
	switch o {
	case OptionYes:
		return true, nil
	case OptionNo:
		return false, nil
	case OptionAskYes:
		if p == nil {
			return true, nil
		}
		return p.Confirm(prompt, true)
	case OptionAskNo:
		if p == nil {
			return false, nil
		}
		return p.Confirm(prompt, false)
	default:
		return false, nil
	}
}

// Prompter is the UI collaborator consulted for quad-option prompts,
// reconnect confirmations, and mailcap "press any key" waits. The protocol
// packages never implement it themselves; a terminal UI supplies one.
type Prompter interface {
	// Confirm asks a yes/no question, returning def if the user presses
	// enter with no input.
	Confirm(prompt string, def bool) (bool, error)
	// Input prompts for a line of free text (e.g. a save path).
	Input(prompt string) (string, error)
	// PressAnyKey blocks until the user acknowledges a viewer's output.
	PressAnyKey(prompt string) error
}

// RuntimeConfig is the subset of embedder configuration this package
// defines. Loading it from disk (TOML, hooks, aliases, key bindings) is the
// embedder's job; the struct is tagged so an embedder can decode it with
// go-toml without a translation shim. No package in this module reads these
// fields: the comments below describe each option, and the drivers behave
// the same whatever its value (POP's Open always prunes the body cache, POP
// operations always retry once after reconnecting, and STLS/STARTTLS is
// issued only when the server advertises it).
type RuntimeConfig struct {
	// MarkOld controls whether header-cached-but-body-uncached POP
	// messages are flagged "old" (spec.md §4.F step 4).
	MarkOld bool `toml:"mark_old" json:"mark_old"`
	// CleanCache enables the post-fetch body-cache sweep that deletes
	// entries no longer present in the mailbox (spec.md §4.F step 5).
	CleanCache bool `toml:"clean_cache" json:"clean_cache"`
	// PopLast selects use of the POP LAST command when fetching new mail
	// into a local spool. This module has no spool fetch; Session.Last
	// exists but nothing calls it.
	PopLast bool `toml:"pop_last" json:"pop_last"`
	// PopDeleteAfterFetch selects sending DELE after each RETR when
	// fetching into a local spool (no spool fetch exists in this module).
	PopDeleteAfterFetch bool `toml:"pop_delete" json:"pop_delete"`
	// SSLForceTLS refuses to proceed without STARTTLS/STLS even when the
	// server doesn't advertise it as mandatory.
	SSLForceTLS bool `toml:"ssl_force_tls" json:"ssl_force_tls"`
	// IMAPPollTimeoutSeconds bounds the poll before an IMAP Poll-flagged
	// command is considered fatally stalled; 0 disables the bound.
	IMAPPollTimeoutSeconds int `toml:"imap_poll_timeout" json:"imap_poll_timeout"`
	// IMAPIdleTimeoutSeconds is how long an IDLE is held before it is
	// renewed. Session.Idle takes its timeout as an argument and does not
	// read this field.
	IMAPIdleTimeoutSeconds int `toml:"imap_idle_timeout" json:"imap_idle_timeout"`
	// ReconnectOnLoss chooses whether transport loss triggers an
	// automatic reconnect-and-reindex or surfaces ErrIoLost immediately.
	ReconnectOnLoss QuadOption `toml:"reconnect" json:"reconnect"`
}

// DefaultRuntimeConfig returns the configuration a freshly-started client
// would use absent any embedder overrides.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MarkOld:                true,
		CleanCache:             true,
		PopLast:                true,
		PopDeleteAfterFetch:    false,
		SSLForceTLS:            false,
		IMAPPollTimeoutSeconds: 15,
		IMAPIdleTimeoutSeconds: 29 * 60,
		ReconnectOnLoss:        OptionAskYes,
	}
}

// Runtime is the top-level object Design Note 1 calls for: it owns the
// account registry and configuration view in place of the global mutable
// state the original program kept in file-scope variables.
type Runtime struct {
	Config   RuntimeConfig
	Logger   *slog.Logger
	Prompter Prompter

	mu       sync.Mutex
	accounts []*Account
	metrics  *metrics.Metrics
}

// NewRuntime constructs a Runtime with the given configuration. A nil
// logger defaults to slog.Default(); a nil Prompter means each Ask*
// quad-option resolves to its own default (AskYes to yes, AskNo to no)
// rather than blocking forever.
func NewRuntime(cfg RuntimeConfig, logger *slog.Logger, prompter Prompter) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{Config: cfg, Logger: logger, Prompter: prompter}
}

// RegisterAccount adds an account to the registry, or returns the existing
// match per Account.Match semantics.
func (rt *Runtime) RegisterAccount(a *Account) *Account {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, existing := range rt.accounts {
		if existing.Match(a) {
			return existing
		}
	}
	rt.accounts = append(rt.accounts, a)
	return a
}

// Accounts returns a snapshot of the registered accounts.
func (rt *Runtime) Accounts() []*Account {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Account, len(rt.accounts))
	copy(out, rt.accounts)
	return out
}

// EnableMetrics constructs Prometheus instrumentation registered against
// reg and attaches it to the Runtime; pass prometheus.DefaultRegisterer
// for the global registry or a fresh prometheus.NewRegistry() to isolate
// a test. Metrics are opt-in: a Runtime that never calls this has a nil
// Metrics(), and every counter method on a nil *metrics.Metrics is a
// no-op, so conn/pop/imap code can call them unconditionally.
func (rt *Runtime) EnableMetrics(reg prometheus.Registerer) *metrics.Metrics {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.metrics = metrics.New(reg)
	return rt.metrics
}

// Metrics returns the Runtime's Prometheus instrumentation, or nil if
// EnableMetrics was never called.
func (rt *Runtime) Metrics() *metrics.Metrics {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.metrics
}

// FindAccount returns the registered account matching scheme/host/user, if
// any.
func (rt *Runtime) FindAccount(scheme, host, user string) *Account {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, a := range rt.accounts {
		if strings.EqualFold(a.Scheme, scheme) && strings.EqualFold(a.Host, host) && a.User == user {
			return a
		}
	}
	return nil
}
