package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/metrics"
)

// HeaderCache is a keyed store of serialised message headers
// (SPEC_FULL.md §4.D). fileHeaderCache backs both of its on-disk shapes:
// OpenFileHeaderCache keys one file per mailbox path, OpenPOPHeaderCache a
// single file per POP account (POP has no paths to key by).
type HeaderCache interface {
	// Fetch returns the cached header for key, or nil if absent.
	Fetch(key string) (*mailcore.CachedHeader, error)
	// Store saves or overwrites the cached header for key.
	Store(h *mailcore.CachedHeader) error
	// Delete removes the cached header for key, if present.
	Delete(key string) error
	// Close flushes and releases the underlying file.
	Close() error
	// SetMetrics attaches optional Prometheus instrumentation; nil
	// disables it.
	SetMetrics(m *metrics.Metrics)
}

// fileHeaderCache is a gob-encoded map-of-records cache backed by a single
// file, read fully into memory on open and rewritten wholesale on
// mutation. Nothing in the example pack wires a keyed on-disk store for
// this shape (go-message has no cache layer, and the IMAP/POP examples in
// the pack don't persist headers at all) so this uses the stdlib's
// encoding/gob rather than inventing a bespoke binary format or reaching
// for an unrelated KV library — see DESIGN.md.
type fileHeaderCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]*mailcore.CachedHeader
	dirty   bool
	metrics *metrics.Metrics
}

func (c *fileHeaderCache) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

func openFile(path string) (*fileHeaderCache, error) {
	c := &fileHeaderCache{path: path, entries: make(map[string]*mailcore.CachedHeader)}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("%w: opening header cache %q: %v", mailcore.ErrCache, path, err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	if err := dec.Decode(&c.entries); err != nil {
		// A corrupt or empty cache degrades to "miss everything" rather
		// than failing the caller's open.
		c.entries = make(map[string]*mailcore.CachedHeader)
	}
	return c, nil
}

// OpenFileHeaderCache opens (or creates on first Store) the header cache
// file for a local mailbox path.
func OpenFileHeaderCache(dir, mailboxPath string) (HeaderCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	return openFile(filepath.Join(dir, sanitizeID(mailboxPath)+".hcache"))
}

// OpenPOPHeaderCache opens the single neomutt.hcache-equivalent file for a
// POP account, since POP mailboxes have no path to key a per-mailbox file
// by.
func OpenPOPHeaderCache(dir, accountKey string) (HeaderCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	return openFile(filepath.Join(dir, sanitizeID(accountKey)+".pop.hcache"))
}

func (c *fileHeaderCache) Fetch(key string) (*mailcore.CachedHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[key]
	if !ok {
		c.metrics.CacheMiss("header")
		return nil, nil
	}
	c.metrics.CacheHit("header")
	cp := *h
	return &cp, nil
}

func (c *fileHeaderCache) Store(h *mailcore.CachedHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *h
	c.entries[h.Key] = &cp
	c.dirty = true
	return c.flushLocked()
}

func (c *fileHeaderCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	c.dirty = true
	return c.flushLocked()
}

func (c *fileHeaderCache) flushLocked() error {
	if !c.dirty {
		return nil
	}
	tmp := c.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	enc := gob.NewEncoder(f)
	if err := enc.Encode(c.entries); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("%w: %v", mailcore.ErrCache, err)
	}
	c.dirty = false
	return nil
}

func (c *fileHeaderCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}
