package merkledb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := decodeErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		require.ErrorIs(t, err, inner)
		require.Equal(t, "oops: inner: (2) aabb", err.Error())
	})

	t.Run("large data includes prefix and suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		s := decodeErrf(data, 0, nil, "oops").Error()
		require.Contains(t, s, "(200)")
		require.Contains(t, s, "...")
	})
}

func TestIndexError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := indexErrf(GroupAddr("wallets", []byte{1}), []byte{0xAB}, inner, "oops %d", 1)
	require.ErrorIs(t, err, inner)
	require.Equal(t, "wallets[01]/ab: oops 1: inner", err.Error())

	require.Equal(t, "users: inner", (&IndexError{Addr: Addr("users"), Err: inner}).Error())
}

func TestSafelyCall(t *testing.T) {
	t.Run("returns handle errors as is", func(t *testing.T) {
		err := safelyCall(func() error {
			panic(&ConcurrentMutationError{Addr: Addr("a")})
		})
		var cme *ConcurrentMutationError
		require.ErrorAs(t, err, &cme)
		require.Equal(t, "a", cme.Addr.Name())
	})

	t.Run("returns sentinel errors as is", func(t *testing.T) {
		err := safelyCall(func() error { panic(ErrIndexOutOfRange) })
		require.Equal(t, ErrIndexOutOfRange, err)
	})

	t.Run("wraps other panics", func(t *testing.T) {
		boom := errors.New("boom")
		err := safelyCall(func() error { panic(boom) })
		require.ErrorIs(t, err, boom)
		require.NotEqual(t, boom, err)

		err = safelyCall(func() error { panic("text") })
		require.ErrorContains(t, err, "text")
	})

	t.Run("passes returned errors through", func(t *testing.T) {
		boom := errors.New("boom")
		require.Equal(t, boom, safelyCall(func() error { return boom }))
		require.NoError(t, safelyCall(func() error { return nil }))
	})
}
