package schedule

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const villagerDay = `
# settler day
at 10    idle
at 2000  work
at 9000  meet
at 11000 idle
at 12000 rest
`

func TestParseAndLookup(t *testing.T) {
	s, err := Parse("settler", villagerDay, 24000)
	require.NoError(t, err)

	want := []Entry{
		{Start: 10, Activity: Idle},
		{Start: 2000, Activity: Work},
		{Start: 9000, Activity: Meet},
		{Start: 11000, Activity: Idle},
		{Start: 12000, Activity: Rest},
	}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		at   uint64
		want Activity
	}{
		{0, Rest},
		{10, Idle},
		{1999, Idle},
		{2000, Work},
		{10000, Meet},
		{23999, Rest},
		{24000 + 2500, Work},
	} {
		got, ok := s.ActivityAt(tc.at)
		require.True(t, ok)
		require.Equal(t, tc.want, got, "at %d", tc.at)
	}
}

func TestEmptySchedule(t *testing.T) {
	_, ok := Empty.ActivityAt(100)
	require.False(t, ok)
	var nilSched *Schedule
	_, ok = nilSched.ActivityAt(100)
	require.False(t, ok)
}

func TestBuilderRejectsBadEntries(t *testing.T) {
	_, err := NewBuilder(100).ChangeAt(100, Idle).Build()
	require.Error(t, err)
	_, err = NewBuilder(100).ChangeAt(5, Idle).ChangeAt(5, Work).Build()
	require.Error(t, err)
	_, err = NewBuilder(100).ChangeAt(5, "").Build()
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("broken", "at idle 10", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schedule broken")
}
