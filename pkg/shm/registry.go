package shm

import (
	"errors"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registry tracks the buffers opened by this process by name.
type Registry struct {
	buffers cmap.ConcurrentMap[string, *Buffer]
}

func NewRegistry() *Registry {
	return &Registry{buffers: cmap.New[*Buffer]()}
}

// Add registers b. It returns false if a buffer with the same name is
// already registered.
func (r *Registry) Add(b *Buffer) bool {
	return r.buffers.SetIfAbsent(b.Name(), b)
}

func (r *Registry) Get(name string) (*Buffer, bool) {
	return r.buffers.Get(name)
}

// Remove unregisters and returns the named buffer without closing it.
func (r *Registry) Remove(name string) (*Buffer, bool) {
	return r.buffers.Pop(name)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := r.buffers.Keys()
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return r.buffers.Count()
}

// CloseAll unregisters and closes every buffer.
func (r *Registry) CloseAll() error {
	var errs []error
	for _, name := range r.buffers.Keys() {
		if b, ok := r.buffers.Pop(name); ok {
			errs = append(errs, b.Close())
		}
	}
	return errors.Join(errs...)
}
