package elf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringTableDefault(t *testing.T) {
	st := DefaultStringTable()
	require.Equal(t, 1, st.Len())

	foo := st.Insert("foo")
	bar := st.Insert("bar")
	require.Equal(t, 9, st.Len())

	got, err := st.Get(foo)
	require.NoError(t, err)
	require.Equal(t, "foo", got)

	got, err = st.Get(bar)
	require.NoError(t, err)
	require.Equal(t, "bar", got)
}

func TestStringTableFromBuf(t *testing.T) {
	st := NewStringTable([]byte{0, 'A', 'B', 'C', 0})

	got, err := st.Get(0)
	require.NoError(t, err)
	require.Equal(t, "", got)

	got, err = st.Get(1)
	require.NoError(t, err)
	require.Equal(t, "ABC", got)
}

func TestStringTableGetOutOfRange(t *testing.T) {
	st := NewStringTable([]byte{0, 'x', 'y'}) // no trailing NUL after "xy"

	_, err := st.Get(1)
	require.Error(t, err)
	var badOffset BadStringOffsetError
	require.ErrorAs(t, err, &badOffset)

	_, err = st.Get(10)
	require.Error(t, err)
}

func TestStringTableInsertThenGetRoundTrips(t *testing.T) {
	st := DefaultStringTable()
	off := st.Insert("hello")
	got, err := st.Get(off)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
	require.Equal(t, byte(0), st.Bytes()[off+len("hello")])
}
