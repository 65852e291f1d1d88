// Package registry provides a small generic concurrent registry used for
// tool sets and provider model caches.
package registry

import "github.com/alphadose/haxmap"

type Registry[T any] interface {
	Get(name string) (T, bool)
	// Add inserts value under name and reports whether the insert happened.
	// An existing entry is left untouched and Add returns false.
	Add(name string, value T) bool
	GetOrAdd(name string, value func() T) (T, bool)
	Del(name string)
	// ForEach visits every entry until the callback returns false.
	ForEach(fn func(name string, value T) bool)
}

type registry[T any] struct {
	values *haxmap.Map[string, T]
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) Add(name string, value T) bool {
	_, loaded := r.values.GetOrCompute(name, func() T { return value })
	return !loaded
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	return r.values.GetOrCompute(name, valueFn)
}

func (r *registry[T]) Del(name string) {
	r.values.Del(name)
}

func (r *registry[T]) ForEach(fn func(string, T) bool) {
	r.values.ForEach(fn)
}
