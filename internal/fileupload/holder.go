package fileupload

import "sync/atomic"

// Holder publishes the current Backend. Requests read it on every call so a
// configuration reload takes effect without a restart.
type Holder struct {
	current atomic.Pointer[Backend]
}

func NewHolder(b *Backend) *Holder {
	h := &Holder{}
	h.current.Store(b)
	return h
}

func (h *Holder) Backend() *Backend {
	return h.current.Load()
}

// Swap installs b and returns the backend it replaced.
func (h *Holder) Swap(b *Backend) *Backend {
	return h.current.Swap(b)
}
