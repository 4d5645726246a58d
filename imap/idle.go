package imap

import (
	"fmt"
	"time"

	"github.com/tern-mail/mailcore"
)

// Idle issues IDLE (RFC 2177) and blocks dispatching untagged responses —
// the mechanism by which OnExists/OnExpunge/OnFlags fire without any
// command of the caller's own outstanding — until either timeout elapses
// or stop is closed, then sends DONE and waits for the tagged OK.
//
// The caller is expected to refresh the IDLE periodically
// (RuntimeConfig.IMAPIdleTimeoutSeconds), since RFC 2177 recommends
// renewing before a 29-minute server-side inactivity timeout.
func (s *Session) Idle(timeout time.Duration, stop <-chan struct{}) error {
	if !s.Caps.Has(CapIdle) {
		return fmt.Errorf("%w: server does not advertise IDLE", mailcore.ErrServerRefused)
	}

	tag, err := s.queue(CommandIdle, "")
	if err != nil {
		return err
	}
	if _, err := s.ReadContinuation(tag); err != nil {
		return err
	}
	s.idling = true
	defer func() { s.idling = false }()

	deadline := time.Now().Add(timeout)
	for {
		if _, ok := s.completed[tag]; ok {
			break
		}
		if timeout > 0 && time.Now().After(deadline) {
			break
		}
		ready, err := s.conn.Poll(pollSlice(timeout, deadline))
		if err != nil {
			return err
		}
		switch ready {
		case 0: // conn.PollReady
			if err := s.step(); err != nil {
				return err
			}
		case 1: // conn.PollTimeout: nothing to dispatch; check stop below
		default:
			return fmt.Errorf("%w: poll failed during IDLE", mailcore.ErrIoLost)
		}
		select {
		case <-stop:
			goto done
		default:
		}
	}
done:
	if err := s.SendLine("DONE"); err != nil {
		return err
	}
	_, _, err = s.awaitTag(tag)
	return err
}

func pollSlice(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout <= 0 {
		return 2 * time.Second
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	if remaining > 2*time.Second {
		return 2 * time.Second
	}
	return remaining
}
