// Package fanout provides an ordered set of subscriber callbacks.
//
// Each registration gets its own handle, so the same function registered
// twice is two subscribers and removing one leaves the other in place.
// Set is not safe for concurrent use; owners synchronize access.
package fanout

import (
	"container/list"
	"sync/atomic"
)

// Handle identifies one registration.
type Handle[T any] struct {
	fn      func(T)
	elem    *list.Element
	removed atomic.Bool
}

// Active reports whether the handle is still registered.
func (h *Handle[T]) Active() bool {
	return !h.removed.Load()
}

// Set is an ordered multiset of callbacks with O(1) removal by handle.
type Set[T any] struct {
	subs list.List
}

// Add registers fn at the end of the set.
func (s *Set[T]) Add(fn func(T)) *Handle[T] {
	h := &Handle[T]{fn: fn}
	h.elem = s.subs.PushBack(h)
	return h
}

// Remove unregisters h. Removing an already removed handle is a no-op.
func (s *Set[T]) Remove(h *Handle[T]) {
	if h == nil || !h.removed.CompareAndSwap(false, true) {
		return
	}
	s.subs.Remove(h.elem)
}

// Len returns the number of registered handles.
func (s *Set[T]) Len() int {
	return s.subs.Len()
}

// Snapshot returns the handles in registration order.
func (s *Set[T]) Snapshot() []*Handle[T] {
	out := make([]*Handle[T], 0, s.subs.Len())
	for e := s.subs.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Handle[T]))
	}
	return out
}

// Deliver calls every still-active handle with v, in order. A panicking
// callback is recovered and reported to onPanic; delivery continues.
func Deliver[T any](handles []*Handle[T], v T, onPanic func(recovered any)) {
	for _, h := range handles {
		Call(h, v, onPanic)
	}
}

// Call invokes a single handle if it is still active.
func Call[T any](h *Handle[T], v T, onPanic func(recovered any)) {
	if !h.Active() {
		return
	}
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	h.fn(v)
}
