package cache

import (
	"path/filepath"
	"testing"

	"github.com/tern-mail/mailcore"
)

func TestFileHeaderCacheStoreFetchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	hc, err := OpenFileHeaderCache(dir, "INBOX")
	if err != nil {
		t.Fatalf("OpenFileHeaderCache: %v", err)
	}
	defer hc.Close()

	want := &mailcore.CachedHeader{
		Key: "uid-1",
		Envelope: mailcore.Envelope{
			Subject:   "hello",
			MessageID: "<abc@example.com>",
		},
		BodySize:  1234,
		BodyLines: 42,
	}
	if err := hc.Store(want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := hc.Fetch("uid-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got == nil {
		t.Fatal("Fetch: expected a hit")
	}
	if got.Envelope.Subject != want.Envelope.Subject || got.BodySize != want.BodySize || got.BodyLines != want.BodyLines {
		t.Fatalf("Fetch returned %+v, want %+v", got, want)
	}

	if miss, err := hc.Fetch("no-such-key"); err != nil || miss != nil {
		t.Fatalf("Fetch(no-such-key) = %v, %v, want a nil miss", miss, err)
	}
}

// TestFileHeaderCacheSurvivesReopen confirms Store's flushLocked
// .tmp-then-os.Rename write actually lands on disk under the expected name,
// by closing the cache and reopening a fresh one over the same file.
func TestFileHeaderCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	hc, err := OpenFileHeaderCache(dir, "INBOX")
	if err != nil {
		t.Fatalf("OpenFileHeaderCache: %v", err)
	}
	if err := hc.Store(&mailcore.CachedHeader{Key: "uid-1", BodySize: 99}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := hc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenFileHeaderCache(dir, "INBOX")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Fetch("uid-1")
	if err != nil {
		t.Fatalf("Fetch after reopen: %v", err)
	}
	if got == nil || got.BodySize != 99 {
		t.Fatalf("Fetch after reopen = %+v, want a BodySize of 99", got)
	}
}

func TestFileHeaderCacheDelete(t *testing.T) {
	dir := t.TempDir()
	hc, err := OpenFileHeaderCache(dir, "INBOX")
	if err != nil {
		t.Fatalf("OpenFileHeaderCache: %v", err)
	}
	defer hc.Close()

	if err := hc.Store(&mailcore.CachedHeader{Key: "uid-1"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := hc.Delete("uid-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := hc.Fetch("uid-1"); err != nil || got != nil {
		t.Fatalf("Fetch after Delete = %v, %v, want a miss", got, err)
	}
	// Deleting an already-absent key is not an error.
	if err := hc.Delete("uid-1"); err != nil {
		t.Fatalf("Delete on an absent key: %v", err)
	}
}

func TestOpenFileHeaderCacheMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	hc, err := OpenFileHeaderCache(dir, "NewMailbox")
	if err != nil {
		t.Fatalf("OpenFileHeaderCache on a brand new mailbox: %v", err)
	}
	defer hc.Close()

	if got, err := hc.Fetch("anything"); err != nil || got != nil {
		t.Fatalf("Fetch on a fresh cache = %v, %v, want a miss", got, err)
	}
}

func TestOpenPOPHeaderCacheUsesDistinctFileFromIMAP(t *testing.T) {
	dir := t.TempDir()
	pop, err := OpenPOPHeaderCache(dir, "user@example.com")
	if err != nil {
		t.Fatalf("OpenPOPHeaderCache: %v", err)
	}
	defer pop.Close()

	if err := pop.Store(&mailcore.CachedHeader{Key: "1"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	imapCache, err := OpenFileHeaderCache(dir, "user@example.com")
	if err != nil {
		t.Fatalf("OpenFileHeaderCache: %v", err)
	}
	defer imapCache.Close()

	if got, err := imapCache.Fetch("1"); err != nil || got != nil {
		t.Fatalf("IMAP-keyed cache unexpectedly sees the POP cache's entry: %v, %v", got, err)
	}
	if err := imapCache.Store(&mailcore.CachedHeader{Key: "2"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entries, _ := filepath.Glob(filepath.Join(dir, "*"))
	if len(entries) != 2 {
		t.Fatalf("expected two distinct cache files on disk, got %v", entries)
	}
}
