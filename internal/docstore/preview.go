package docstore

import (
	"sync"

	"github.com/google/uuid"
)

// previewRegistry owns the ephemeral preview handles backing documents
// before a remote URL exists. Every handle is released exactly once: on
// removal, on replacement by a remote link, or at shutdown. A handle left
// behind is a leak.
type previewRegistry struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newPreviewRegistry() *previewRegistry {
	return &previewRegistry{blobs: make(map[string][]byte)}
}

// acquire registers the bytes and returns a handle in blob-URL form.
func (r *previewRegistry) acquire(data []byte) string {
	handle := "blob:" + uuid.NewString()
	r.mu.Lock()
	r.blobs[handle] = data
	r.mu.Unlock()
	return handle
}

// release revokes a handle. Releasing an unknown or already-released handle
// is a no-op.
func (r *previewRegistry) release(handle string) {
	if handle == "" {
		return
	}
	r.mu.Lock()
	delete(r.blobs, handle)
	r.mu.Unlock()
}

// bytes returns the blob behind a live handle, or nil.
func (r *previewRegistry) bytes(handle string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs[handle]
}

// live returns the number of unreleased handles.
func (r *previewRegistry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

// releaseAll revokes every handle, for shutdown.
func (r *previewRegistry) releaseAll() {
	r.mu.Lock()
	r.blobs = make(map[string][]byte)
	r.mu.Unlock()
}
