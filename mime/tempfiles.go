package mime

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry is the per-session scratch-file list spec.md's temporary file
// discipline describes: every file staged for a mailcap viewer or the
// internal decoder is registered here and unlinked at Close, unless a
// caller forgets it early after a successful consuming operation (e.g. a
// save that already moved the bytes where the user asked).
type Registry struct {
	dir string

	mu    sync.Mutex
	files map[string]struct{}
}

// NewRegistry returns a Registry staging files under dir, which must
// already exist (callers typically pass their process's os.TempDir() or
// a per-account scratch directory).
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, files: make(map[string]struct{})}
}

// New allocates a path for a fresh scratch file honoring a mailcap
// nametemplate when one was given — so a GUI-less viewer invoked with
// "%s" still sees a sensibly-named file (e.g. "....html") instead of an
// opaque UUID — and registers it for cleanup.
func (r *Registry) New(nametemplate string) string {
	id := uuid.NewString()
	name := expandNametemplate(nametemplate, id)
	if nametemplate != "" && !strings.Contains(nametemplate, "%s") {
		// nametemplate had no %s: keep its literal name, disambiguated by
		// the unique id in front of it ("<id>_<name>" once "/" is
		// flattened below).
		name = filepath.Join(id, nametemplate)
	}
	path := filepath.Join(r.dir, filepath.FromSlash(strings.ReplaceAll(name, "/", "_")))
	r.register(path)
	return path
}

func (r *Registry) register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = struct{}{}
}

// Forget removes path from the cleanup list without deleting it — used
// when an operation has already moved or consumed the file itself.
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}

// Close unlinks every still-registered scratch file. Safe to call once at
// session end; idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	files := r.files
	r.files = make(map[string]struct{})
	r.mu.Unlock()

	for path := range files {
		os.Remove(path)
	}
}
