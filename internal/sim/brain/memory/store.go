package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Status is a precondition on a memory slot.
type Status uint8

const (
	Present Status = iota
	Absent
	// Registered holds for any registered key regardless of content.
	Registered
)

func (s Status) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case Registered:
		return "registered"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// NoExpiry is the TTL of values that never expire.
const NoExpiry int64 = -1

var ErrUnregistered = errors.New("memory key not registered")

type UnregisteredKeyError struct {
	Key string
}

func (e *UnregisteredKeyError) Error() string {
	return fmt.Sprintf("memory key %q not registered", e.Key)
}

func (e *UnregisteredKeyError) Unwrap() error { return ErrUnregistered }

type slot struct {
	value any
	ttl   int64
}

// Store holds one entity's memories. It is owned by a single brain and is
// not safe for concurrent use.
type Store struct {
	keys  []Handle
	slots map[*keyInfo]*slot
}

func NewStore(keys ...Handle) *Store {
	s := &Store{slots: make(map[*keyInfo]*slot, len(keys))}
	for _, k := range keys {
		s.Register(k)
	}
	return s
}

// Register adds k as an absent slot. Registering twice is a no-op.
func (s *Store) Register(k Handle) {
	if _, ok := s.slots[k.info()]; ok {
		return
	}
	s.slots[k.info()] = nil
	s.keys = append(s.keys, k)
}

func (s *Store) IsRegistered(k Handle) bool {
	_, ok := s.slots[k.info()]
	return ok
}

// Keys returns the registered keys in registration order.
func (s *Store) Keys() []Handle {
	return append([]Handle(nil), s.keys...)
}

func (s *Store) mustRegistered(k Handle) {
	if !s.IsRegistered(k) {
		panic(&UnregisteredKeyError{Key: k.Name()})
	}
}

func (s *Store) put(k Handle, v any, ttl int64) {
	s.mustRegistered(k)
	i := k.info()
	if isNil(v) || (i.empty != nil && i.empty(v)) {
		s.slots[i] = nil
		return
	}
	s.slots[i] = &slot{value: v, ttl: ttl}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// Set stores v without expiry. Writing an empty collection erases the key.
func Set[T any](s *Store, k Key[T], v T) {
	s.put(k, v, NoExpiry)
}

// SetWithTTL stores v for ttl ticks: it is visible for ttl-1 further Tick
// calls and gone after the ttl-th. A ttl of zero or less erases k.
func SetWithTTL[T any](s *Store, k Key[T], v T, ttl int64) {
	if ttl <= 0 {
		s.Erase(k)
		return
	}
	s.put(k, v, ttl)
}

// Get returns the current value. It panics with *UnregisteredKeyError if k
// was never registered.
func Get[T any](s *Store, k Key[T]) (T, bool) {
	s.mustRegistered(k)
	return value[T](s, k)
}

// Lookup is Get that reports unregistered keys as an error.
func Lookup[T any](s *Store, k Key[T]) (T, bool, error) {
	if !s.IsRegistered(k) {
		var zero T
		return zero, false, &UnregisteredKeyError{Key: k.Name()}
	}
	v, ok := value[T](s, k)
	return v, ok, nil
}

func value[T any](s *Store, k Key[T]) (T, bool) {
	var zero T
	sl := s.slots[k.k]
	if sl == nil {
		return zero, false
	}
	return sl.value.(T), true
}

// IsValue reports whether k is present and equal to v.
func IsValue[T comparable](s *Store, k Key[T], v T) bool {
	got, ok := Get(s, k)
	return ok && got == v
}

func (s *Store) Erase(k Handle) {
	s.mustRegistered(k)
	s.slots[k.info()] = nil
}

// Has checks k against st. Unregistered keys never satisfy any status.
func (s *Store) Has(k Handle, st Status) bool {
	sl, ok := s.slots[k.info()]
	if !ok {
		return false
	}
	switch st {
	case Present:
		return sl != nil
	case Absent:
		return sl == nil
	default:
		return true
	}
}

// TimeUntilExpiry returns the remaining ticks of k, or NoExpiry when the
// value never expires or is absent.
func (s *Store) TimeUntilExpiry(k Handle) int64 {
	s.mustRegistered(k)
	sl := s.slots[k.info()]
	if sl == nil {
		return NoExpiry
	}
	return sl.ttl
}

// Tick ages every expiring value by one tick and erases those that ran out.
func (s *Store) Tick() {
	for i, sl := range s.slots {
		if sl == nil || sl.ttl < 0 {
			continue
		}
		sl.ttl--
		if sl.ttl <= 0 {
			s.slots[i] = nil
		}
	}
}

// Clear erases every value but keeps the registrations.
func (s *Store) Clear() {
	for i := range s.slots {
		s.slots[i] = nil
	}
}

// Entry is the serialized form of one present, persistent memory.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	TTL   int64           `json:"ttl"`
}

// Encode returns entries for every present persistent key, sorted by name.
func (s *Store) Encode() ([]Entry, error) {
	var out []Entry
	for _, k := range s.keys {
		if !k.Persistent() {
			continue
		}
		sl := s.slots[k.info()]
		if sl == nil {
			continue
		}
		raw, err := k.info().encode(sl.value)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", k.Name(), err)
		}
		out = append(out, Entry{Key: k.Name(), Value: raw, TTL: sl.ttl})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Decode seeds the store from entries. Entries naming unknown or
// non-persistent keys, or carrying unparsable values, are skipped and
// returned as errors. Entries with a TTL of zero have already expired and
// are dropped; a negative TTL means no expiry.
func (s *Store) Decode(entries []Entry) []error {
	byName := make(map[string]Handle, len(s.keys))
	for _, k := range s.keys {
		if k.Persistent() {
			byName[k.Name()] = k
		}
	}
	var errs []error
	for _, e := range entries {
		k, ok := byName[e.Key]
		if !ok {
			errs = append(errs, fmt.Errorf("memory %s: %w", e.Key, ErrUnregistered))
			continue
		}
		v, err := k.info().decode(e.Value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ttl := e.TTL
		switch {
		case ttl == 0:
			continue
		case ttl < 0:
			ttl = NoExpiry
		}
		s.put(k, v, ttl)
	}
	return errs
}

// CopyPresent writes every present value of src into s for keys registered
// in both stores.
func (s *Store) CopyPresent(src *Store) {
	for i, sl := range src.slots {
		if sl == nil {
			continue
		}
		if _, ok := s.slots[i]; ok {
			cp := *sl
			s.slots[i] = &cp
		}
	}
}
