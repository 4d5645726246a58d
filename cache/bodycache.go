// Package cache implements the on-disk body cache and header cache shared
// by the POP and IMAP drivers (SPEC_FULL.md §4.C, §4.D).
package cache

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/metrics"
)

// BodyCache is a content-addressed on-disk store of full message bodies,
// rooted at <cache_root>/<url-encoded-host>/<url-encoded-mailbox>/.
type BodyCache struct {
	root    string
	metrics *metrics.Metrics
}

// SetMetrics attaches optional Prometheus instrumentation. Safe to call on
// a nil *BodyCache (the common case when caching is disabled): it is then
// simply a no-op, same as every other BodyCache method is expected not to
// be called in that state except through the nil-checked call sites in the
// driver packages.
func (c *BodyCache) SetMetrics(m *metrics.Metrics) {
	if c == nil {
		return
	}
	c.metrics = m
}

// Open returns a BodyCache rooted under cacheRoot for the given host and
// mailbox path, or nil if cacheRoot is unset or not a directory.
// Directory creation is lazy — it happens on the first Put, not here.
func Open(cacheRoot, host, mailbox string) *BodyCache {
	if cacheRoot == "" {
		return nil
	}
	if fi, err := os.Stat(cacheRoot); err != nil || !fi.IsDir() {
		return nil
	}

	segs := []string{url.PathEscape(host)}
	for _, part := range strings.Split(mailbox, "/") {
		if part == "" {
			continue
		}
		segs = append(segs, url.PathEscape(part))
	}
	dir := filepath.Join(append([]string{cacheRoot}, segs...)...)
	return &BodyCache{root: dir + string(filepath.Separator)}
}

// sanitizeID replaces path separators and control characters in a
// caller-supplied message id so it is always safe as a single path
// component.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteByte('_')
		case r < 0x20:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *BodyCache) path(id string) string {
	return filepath.Join(c.root, sanitizeID(id))
}

func (c *BodyCache) tmpPath(id string) string {
	return c.path(id) + ".tmp"
}

func (c *BodyCache) ensureDir() error {
	if fi, err := os.Stat(c.root); err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("%w: cache path %q exists and is not a directory", mailcore.ErrCache, c.root)
		}
		return nil
	}
	return os.MkdirAll(c.root, 0o700)
}

// Get returns a read handle for a committed entry, or nil (with a nil
// error) if no committed entry exists. An empty id is an ErrCache error.
func (c *BodyCache) Get(id string) (io.ReadCloser, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty cache id", mailcore.ErrCache)
	}
	f, err := os.Open(c.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.metrics.CacheMiss("body")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get %q: %v", mailcore.ErrCache, id, err)
	}
	c.metrics.CacheHit("body")
	return f, nil
}

// Put returns a write handle addressing "<dir>/<id>.tmp", truncated on
// open. The entry is not visible to Get or List until Commit renames it.
func (c *BodyCache) Put(id string) (io.WriteCloser, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty cache id", mailcore.ErrCache)
	}
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(c.tmpPath(id), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: put %q: %v", mailcore.ErrCache, id, err)
	}
	return f, nil
}

// Commit atomically renames the staged ".tmp" file onto the committed
// name. It fails if the staging file is absent.
func (c *BodyCache) Commit(id string) error {
	tmp := c.tmpPath(id)
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("%w: commit %q: no staged write: %v", mailcore.ErrCache, id, err)
	}
	if err := os.Rename(tmp, c.path(id)); err != nil {
		return fmt.Errorf("%w: commit %q: %v", mailcore.ErrCache, id, err)
	}
	return nil
}

// Del unlinks a committed entry. Deleting an absent entry is not an error.
func (c *BodyCache) Del(id string) error {
	if err := os.Remove(c.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: del %q: %v", mailcore.ErrCache, id, err)
	}
	return nil
}

// Exists reports ok iff the entry is a regular, non-empty file.
func (c *BodyCache) Exists(id string) (bool, error) {
	fi, err := os.Stat(c.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: exists %q: %v", mailcore.ErrCache, id, err)
	}
	return fi.Mode().IsRegular() && fi.Size() > 0, nil
}

// Visitor is invoked once per cache entry during List. Returning true
// aborts the iteration early; this still counts as success, per
// SPEC_FULL.md §4.C ("a nonzero callback aborts and is reported as
// success").
type Visitor func(id string, c *BodyCache) (stop bool)

// List iterates committed entries (excluding "." and "..", and any
// in-flight ".tmp" staging files) invoking visit for each. It returns the
// number of entries processed, or -1 if the directory could not be opened
// or closed.
func (c *BodyCache) List(visit Visitor) int {
	f, err := os.Open(c.root)
	if err != nil {
		return -1
	}

	names, err := f.Readdirnames(-1)
	if cerr := f.Close(); err != nil || cerr != nil {
		return -1
	}

	count := 0
	for _, name := range names {
		if name == "." || name == ".." || strings.HasSuffix(name, ".tmp") {
			continue
		}
		count++
		if visit(name, c) {
			break
		}
	}
	return count
}

// Root returns the cache's on-disk root directory, for diagnostics.
func (c *BodyCache) Root() string {
	return c.root
}
