// Package memory implements the per-entity typed memory store: keyed slots
// with an optional expiry, where a registered key is either present or absent.
package memory

import (
	"encoding/json"
	"fmt"
)

// Handle is the type-erased view of a Key used for registration,
// preconditions and erasure.
type Handle interface {
	Name() string
	Persistent() bool
	info() *keyInfo
}

type keyInfo struct {
	name       string
	persistent bool
	empty      func(any) bool
	encode     func(any) (json.RawMessage, error)
	decode     func(json.RawMessage) (any, error)
}

// Key identifies a memory slot holding values of type T. Keys compare by
// identity: two keys created with the same name are still distinct.
type Key[T any] struct {
	k *keyInfo
}

func (k Key[T]) Name() string     { return k.k.name }
func (k Key[T]) Persistent() bool { return k.k.persistent }
func (k Key[T]) info() *keyInfo   { return k.k }
func (k Key[T]) String() string   { return k.k.name }

type KeyOption func(*keyInfo)

// Persist marks the key as saved in brain snapshots. Values round-trip
// through encoding/json.
func Persist() KeyOption {
	return func(i *keyInfo) { i.persistent = true }
}

func NewKey[T any](name string, opts ...KeyOption) Key[T] {
	i := &keyInfo{name: name}
	i.encode = func(v any) (json.RawMessage, error) { return json.Marshal(v) }
	i.decode = func(raw json.RawMessage) (any, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("memory %s: %w", name, err)
		}
		return v, nil
	}
	for _, o := range opts {
		o(i)
	}
	return Key[T]{k: i}
}

// NewSliceKey creates a key whose empty value is treated as absent.
func NewSliceKey[E any](name string, opts ...KeyOption) Key[[]E] {
	k := NewKey[[]E](name, opts...)
	k.k.empty = func(v any) bool {
		s, _ := v.([]E)
		return len(s) == 0
	}
	return k
}

// NewSetKey creates a set-valued key whose empty value is treated as absent.
func NewSetKey[E comparable](name string, opts ...KeyOption) Key[map[E]struct{}] {
	k := NewKey[map[E]struct{}](name, opts...)
	k.k.empty = func(v any) bool {
		m, _ := v.(map[E]struct{})
		return len(m) == 0
	}
	return k
}

// Unit is the value type of flag keys.
type Unit struct{}

func NewFlagKey(name string, opts ...KeyOption) Key[Unit] {
	return NewKey[Unit](name, opts...)
}
