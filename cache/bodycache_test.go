package cache

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenRejectsMissingRoot(t *testing.T) {
	if c := Open(filepath.Join(t.TempDir(), "nonexistent"), "mail.example.com", "INBOX"); c != nil {
		t.Fatalf("Open: expected nil for a missing cache root, got %v", c)
	}
	if c := Open("", "mail.example.com", "INBOX"); c != nil {
		t.Fatalf("Open: expected nil for an empty cache root, got %v", c)
	}
}

func TestOpenEscapesHostAndMailboxSegments(t *testing.T) {
	c := Open(t.TempDir(), "mail.example.com", "Sent/2024")
	if c == nil {
		t.Fatal("Open: expected a non-nil BodyCache")
	}
	if !filepath.IsAbs(c.Root()) {
		t.Fatalf("Root() = %q, want an absolute path", c.Root())
	}
	if filepath.Base(filepath.Clean(c.Root())) != "2024" {
		t.Fatalf("Root() = %q, want the mailbox's last path segment as the leaf dir", c.Root())
	}
}

// TestCommitIsAtomicRenameFromTmp exercises the .tmp-then-os.Rename commit
// path: a Put followed by a Commit must leave no .tmp file behind and make
// the entry visible to Get, and an entry that was only Put (never
// Committed) must stay invisible.
func TestCommitIsAtomicRenameFromTmp(t *testing.T) {
	c := Open(t.TempDir(), "mail.example.com", "INBOX")
	if c == nil {
		t.Fatal("Open: expected a non-nil BodyCache")
	}

	w, err := c.Put("msg-1")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := w.Write([]byte("From: a@b\r\n\r\nbody\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := os.Stat(c.tmpPath("msg-1")); err != nil {
		t.Fatalf("expected staged .tmp file before Commit: %v", err)
	}
	if rc, err := c.Get("msg-1"); err != nil || rc != nil {
		if rc != nil {
			rc.Close()
		}
		t.Fatalf("Get before Commit: rc=%v err=%v, want a miss", rc, err)
	}

	if err := c.Commit("msg-1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := os.Stat(c.tmpPath("msg-1")); !os.IsNotExist(err) {
		t.Fatalf(".tmp file still present after Commit: err=%v", err)
	}

	rc, err := c.Get("msg-1")
	if err != nil {
		t.Fatalf("Get after Commit: %v", err)
	}
	if rc == nil {
		t.Fatal("Get after Commit: expected a hit")
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "From: a@b\r\n\r\nbody\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestCommitWithoutPutFails(t *testing.T) {
	c := Open(t.TempDir(), "mail.example.com", "INBOX")
	if err := c.ensureDir(); err != nil {
		t.Fatalf("ensureDir: %v", err)
	}
	if err := c.Commit("never-put"); err == nil {
		t.Fatal("Commit: expected an error when no .tmp file was ever staged")
	}
}

func TestDelAndExists(t *testing.T) {
	c := Open(t.TempDir(), "mail.example.com", "INBOX")

	if ok, err := c.Exists("msg-1"); err != nil || ok {
		t.Fatalf("Exists before Put: ok=%v err=%v", ok, err)
	}

	w, _ := c.Put("msg-1")
	io.WriteString(w, "x")
	w.Close()
	if err := c.Commit("msg-1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if ok, err := c.Exists("msg-1"); err != nil || !ok {
		t.Fatalf("Exists after Commit: ok=%v err=%v", ok, err)
	}
	if err := c.Del("msg-1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if ok, err := c.Exists("msg-1"); err != nil || ok {
		t.Fatalf("Exists after Del: ok=%v err=%v", ok, err)
	}
	if err := c.Del("msg-1"); err != nil {
		t.Fatalf("Del on an already-absent entry should not error: %v", err)
	}
}

func TestListSkipsTmpFilesAndCountsCommitted(t *testing.T) {
	c := Open(t.TempDir(), "mail.example.com", "INBOX")

	for _, id := range []string{"a", "b", "c"} {
		w, _ := c.Put(id)
		io.WriteString(w, "x")
		w.Close()
	}
	if err := c.Commit("a"); err != nil {
		t.Fatalf("Commit a: %v", err)
	}
	if err := c.Commit("b"); err != nil {
		t.Fatalf("Commit b: %v", err)
	}
	// "c" is left staged (not committed), simulating a write that never
	// completed — List must not count it.

	seen := make(map[string]bool)
	n := c.List(func(id string, bc *BodyCache) bool {
		seen[id] = true
		return false
	})
	if n != 2 {
		t.Fatalf("List returned %d, want 2", n)
	}
	if !seen["a"] || !seen["b"] || seen["c"] {
		t.Fatalf("seen = %v, want exactly a and b", seen)
	}
}

func TestListStopsEarlyOnVisitorTrue(t *testing.T) {
	c := Open(t.TempDir(), "mail.example.com", "INBOX")
	for _, id := range []string{"a", "b"} {
		w, _ := c.Put(id)
		io.WriteString(w, "x")
		w.Close()
		if err := c.Commit(id); err != nil {
			t.Fatalf("Commit %s: %v", id, err)
		}
	}

	calls := 0
	n := c.List(func(id string, bc *BodyCache) bool {
		calls++
		return true
	})
	if calls != 1 {
		t.Fatalf("visitor called %d times, want exactly 1 after stopping early", calls)
	}
	if n != 1 {
		t.Fatalf("List returned %d, want 1 (stopping early still counts as success)", n)
	}
}

func TestSanitizeIDReplacesPathSeparatorsAndControls(t *testing.T) {
	got := sanitizeID("a/b\\c\x00d\x01e")
	if got != "a_b_c_d_e" {
		t.Fatalf("sanitizeID = %q, want %q", got, "a_b_c_d_e")
	}
}

func TestNilBodyCacheMethodsAreSafe(t *testing.T) {
	var c *BodyCache
	c.SetMetrics(nil)
}
