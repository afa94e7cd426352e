package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type walkTarget struct {
	X, Y, Z int
	Speed   float64
}

func TestTTLExpiresAfterExactlyNTicks(t *testing.T) {
	k := NewKey[int]("counter")
	s := NewStore(k)

	SetWithTTL(s, k, 7, 3)
	for i := 0; i < 2; i++ {
		s.Tick()
		v, ok := Get(s, k)
		require.True(t, ok, "tick %d", i+1)
		require.Equal(t, 7, v)
	}
	require.EqualValues(t, 1, s.TimeUntilExpiry(k))
	s.Tick()
	_, ok := Get(s, k)
	require.False(t, ok)
	require.True(t, s.Has(k, Absent))
}

func TestNonPositiveTTLErases(t *testing.T) {
	k := NewKey[int]("deadline")
	s := NewStore(k)

	Set(s, k, 1)
	SetWithTTL(s, k, 2, -5)
	require.True(t, s.Has(k, Absent))

	SetWithTTL(s, k, 3, 0)
	require.True(t, s.Has(k, Absent))

	SetWithTTL(s, k, 4, -1)
	for i := 0; i < 1000; i++ {
		s.Tick()
	}
	require.True(t, s.Has(k, Absent))
}

func TestDecodeDropsExpiredEntries(t *testing.T) {
	soon := NewKey[int]("soon", Persist())
	forever := NewKey[int]("forever", Persist())
	s := NewStore(soon, forever)

	errs := s.Decode([]Entry{
		{Key: "soon", Value: []byte(`1`), TTL: 0},
		{Key: "forever", Value: []byte(`2`), TTL: NoExpiry},
	})
	require.Empty(t, errs)
	require.True(t, s.Has(soon, Absent))
	require.True(t, IsValue(s, forever, 2))
	require.Equal(t, NoExpiry, s.TimeUntilExpiry(forever))
}

func TestNoExpiryValueSurvivesTicks(t *testing.T) {
	k := NewKey[string]("name")
	s := NewStore(k)
	Set(s, k, "bob")
	for i := 0; i < 100; i++ {
		s.Tick()
	}
	require.True(t, IsValue(s, k, "bob"))
	require.Equal(t, NoExpiry, s.TimeUntilExpiry(k))
}

func TestEmptyCollectionIsErase(t *testing.T) {
	k := NewSliceKey[string]("visible")
	set := NewSetKey[int]("seen")
	s := NewStore(k, set)

	Set(s, k, []string{"a"})
	require.True(t, s.Has(k, Present))
	Set(s, k, []string{})
	require.False(t, s.Has(k, Present))
	require.True(t, s.Has(k, Absent))

	Set(s, set, map[int]struct{}{})
	require.False(t, s.Has(set, Present))
}

func TestNilPointerIsErase(t *testing.T) {
	k := NewKey[*walkTarget]("target")
	s := NewStore(k)
	Set(s, k, &walkTarget{X: 1})
	require.True(t, s.Has(k, Present))
	Set(s, k, nil)
	require.True(t, s.Has(k, Absent))
}

func TestThreeStates(t *testing.T) {
	known := NewKey[int]("known")
	unknown := NewKey[int]("unknown")
	s := NewStore(known)

	require.True(t, s.Has(known, Registered))
	require.True(t, s.Has(known, Absent))
	require.False(t, s.Has(unknown, Registered))
	require.False(t, s.Has(unknown, Absent))
	require.False(t, s.Has(unknown, Present))

	_, _, err := Lookup(s, unknown)
	var uerr *UnregisteredKeyError
	require.ErrorAs(t, err, &uerr)
	require.True(t, errors.Is(err, ErrUnregistered))
	require.Equal(t, "unknown", uerr.Key)

	require.Panics(t, func() { Get(s, unknown) })
	require.Panics(t, func() { Set(s, unknown, 1) })

	_, ok, err := Lookup(s, known)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeysCompareByIdentity(t *testing.T) {
	a := NewKey[int]("same")
	b := NewKey[int]("same")
	s := NewStore(a)
	require.False(t, s.IsRegistered(b))
}

func TestClearKeepsRegistrations(t *testing.T) {
	k := NewKey[int]("x")
	s := NewStore(k, k)
	require.Len(t, s.Keys(), 1)
	Set(s, k, 1)
	s.Clear()
	require.True(t, s.Has(k, Absent))
}

func TestEncodeDecodePersistentOnly(t *testing.T) {
	home := NewKey[walkTarget]("home", Persist())
	scratch := NewKey[int]("scratch")
	s := NewStore(home, scratch)
	SetWithTTL(s, home, walkTarget{X: 4, Y: 64, Z: -2, Speed: 0.6}, 40)
	Set(s, scratch, 9)

	entries, err := s.Encode()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "home", entries[0].Key)
	require.EqualValues(t, 40, entries[0].TTL)

	entries = append(entries,
		Entry{Key: "gone", Value: []byte(`1`)},
		Entry{Key: "home", Value: []byte(`"bad"`)},
	)
	fresh := NewStore(home, scratch)
	errs := fresh.Decode(entries)
	require.Len(t, errs, 2)

	got, ok := Get(fresh, home)
	require.True(t, ok)
	require.Equal(t, walkTarget{X: 4, Y: 64, Z: -2, Speed: 0.6}, got)
	require.EqualValues(t, 40, fresh.TimeUntilExpiry(home))
	require.True(t, fresh.Has(scratch, Absent))
}

func TestCopyPresent(t *testing.T) {
	a := NewKey[int]("a")
	b := NewKey[int]("b")
	src := NewStore(a, b)
	SetWithTTL(src, a, 1, 5)
	Set(src, b, 2)

	dst := NewStore(a)
	dst.CopyPresent(src)
	v, ok := Get(dst, a)
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.EqualValues(t, 5, dst.TimeUntilExpiry(a))
	require.False(t, dst.IsRegistered(b))

	src.Tick()
	require.EqualValues(t, 5, dst.TimeUntilExpiry(a))
}
