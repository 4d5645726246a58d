package mailcore

import "errors"

// Error kinds from the taxonomy in SPEC_FULL.md §2.2 / §7. Callers use
// errors.Is against these sentinels; packages wrap them with context via
// fmt.Errorf("...: %w", ErrX).
var (
	// ErrIoLost indicates a socket or file descriptor closed or failed
	// mid-operation.
	ErrIoLost = errors.New("mailcore: connection lost")

	// ErrProtocol indicates a server response did not parse or violated
	// the expected grammar.
	ErrProtocol = errors.New("mailcore: protocol error")

	// ErrServerRefused indicates a syntactically valid NO/-ERR response;
	// recoverable at the caller's discretion.
	ErrServerRefused = errors.New("mailcore: server refused")

	// ErrAuthFailure indicates credentials were rejected or no
	// authenticator was applicable.
	ErrAuthFailure = errors.New("mailcore: authentication failed")

	// ErrAuthCancelled indicates the user aborted credential entry.
	ErrAuthCancelled = errors.New("mailcore: authentication cancelled")

	// ErrEncryptionUnavailable indicates TLS was required but could not
	// be negotiated.
	ErrEncryptionUnavailable = errors.New("mailcore: encryption unavailable")

	// ErrCache indicates a body/header cache I/O failure; non-fatal,
	// callers degrade to fetching remotely.
	ErrCache = errors.New("mailcore: cache error")

	// ErrDecode indicates MIME decoding produced no output or a
	// malformed structure.
	ErrDecode = errors.New("mailcore: decode error")

	// ErrViewer indicates an external command could not be spawned or
	// exited nonzero.
	ErrViewer = errors.New("mailcore: viewer error")

	// ErrUserAbort indicates a quad-option prompt was answered "no" at
	// a mandatory confirmation.
	ErrUserAbort = errors.New("mailcore: aborted by user")
)
