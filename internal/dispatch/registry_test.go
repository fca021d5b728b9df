package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatchesInRegistrationOrder(t *testing.T) {
	var r Registry[int]
	var got []string

	r.Add(func(v int) error { got = append(got, "a"); return nil })
	r.Add(func(v int) error { got = append(got, "b"); return nil })
	r.Add(func(v int) error { got = append(got, "a"); return nil })

	require.NoError(t, r.Dispatch(1))
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestRegistryHandlerCanRemoveItselfDuringDispatch(t *testing.T) {
	var r Registry[int]
	calls := map[string]int{}

	var selfID ID
	selfID = r.Add(func(int) error {
		calls["self"]++
		r.Remove(selfID)
		return nil
	})
	r.Add(func(int) error { calls["other"]++; return nil })

	require.NoError(t, r.Dispatch(1))
	require.NoError(t, r.Dispatch(2))

	assert.Equal(t, 1, calls["self"])
	assert.Equal(t, 2, calls["other"])
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemovingLaterHandlerKeepsCurrentSnapshot(t *testing.T) {
	var r Registry[int]
	var later ID
	laterCalls := 0

	r.Add(func(int) error {
		r.Remove(later)
		return nil
	})
	later = r.Add(func(int) error { laterCalls++; return nil })

	require.NoError(t, r.Dispatch(1))
	require.NoError(t, r.Dispatch(2))

	// The first dispatch still sees the snapshot taken before removal.
	assert.Equal(t, 1, laterCalls)
}

func TestRegistryReportsErrorsWithoutStopping(t *testing.T) {
	var r Registry[string]
	boom := errors.New("boom")
	ran := false

	r.Add(func(string) error { return boom })
	r.Add(func(string) error { panic("bad handler") })
	r.Add(func(string) error { ran = true; return nil })

	err := r.Dispatch("x")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panicked")
	assert.True(t, ran)
}

func TestRegistryRemoveUnknownID(t *testing.T) {
	var r Registry[int]
	id := r.Add(func(int) error { return nil })

	assert.False(t, r.Remove(id+100))
	assert.True(t, r.Remove(id))
	assert.False(t, r.Remove(id))
	assert.Zero(t, r.Len())
}
