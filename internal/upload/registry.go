package upload

import (
	"context"
	"sync"
)

// Upload identifies one in-flight transfer and owns its cancellation.
type Upload struct {
	ID     string
	Name   string
	cancel context.CancelFunc
}

// NewUpload creates an Upload whose cancellation ends the returned context.
func NewUpload(parent context.Context, id string, name string) (*Upload, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Upload{ID: id, Name: name, cancel: cancel}, ctx
}

// Cancel aborts the upload. It is safe to call any number of times, before,
// during or after the transfer.
func (u *Upload) Cancel() {
	if u.cancel != nil {
		u.cancel()
	}
}

// Registry maps upload ids to in-flight uploads so that a cancellation
// request can reach the transfer it names.
type Registry struct {
	mu      sync.Mutex
	uploads map[string]*Upload
}

func NewRegistry() *Registry {
	return &Registry{uploads: make(map[string]*Upload)}
}

// Register adds u, replacing any upload already registered under u.ID.
func (r *Registry) Register(u *Upload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[u.ID] = u
}

// Cancel cancels the upload registered under id and reports whether one was
// found. Unknown ids are ignored. The entry is left in place.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	u, ok := r.uploads[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	u.Cancel()
	return true
}

// Remove drops u from the registry if it is still the entry for u.ID, so a
// later upload that reused the id is left alone.
func (r *Registry) Remove(u *Upload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploads[u.ID] == u {
		delete(r.uploads, u.ID)
	}
}

// Get returns the upload registered under id.
func (r *Registry) Get(id string) (*Upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	return u, ok
}

// Len returns the number of registered uploads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}
