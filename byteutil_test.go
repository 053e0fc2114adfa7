package merkledb

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarbytes_RoundTrip(t *testing.T) {
	got := appendVarbytes([]byte{0xFF}, []byte("hi"))
	require.Equal(t, []byte{0xFF, 2, 'h', 'i'}, got)

	d := makeByteDecoder(got[1:])
	v, err := d.VarBytes()
	require.NoError(t, err)
	require.Equal(t, "hi", string(v))
	require.Empty(t, d.Buf)
	require.Equal(t, 3, d.Off())

	_, err = d.Byte()
	require.Error(t, err)
}

func TestByteDecoder_Errors(t *testing.T) {
	t.Run("invalid uvarint", func(t *testing.T) {
		d := makeByteDecoder([]byte{0x80})
		_, err := d.Uvarint()
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		require.Equal(t, 0, de.Off)
	})

	t.Run("length overflows int", func(t *testing.T) {
		d := makeByteDecoder(binary.AppendUvarint(nil, uint64(math.MaxInt)+1))
		_, err := d.VarBytes()
		require.ErrorContains(t, err, "does not fit")
	})

	t.Run("truncated varbytes", func(t *testing.T) {
		d := makeByteDecoder([]byte{5, 'a'})
		_, err := d.VarBytes()
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		require.Equal(t, 1, de.Off)
	})
}

func TestParseMetaKey(t *testing.T) {
	for _, addr := range []Address{Addr("a"), GroupAddr("wallets", []byte{1, 2}), GroupAddr("g", nil)} {
		mk, err := parseMetaKey(addr.metaKey())
		require.NoError(t, err)
		require.True(t, addr.Equal(mk.addr), "%v", addr)
		require.False(t, mk.header)
	}

	mk, err := parseMetaKey(groupHeaderKey("g"))
	require.NoError(t, err)
	require.True(t, mk.header)

	_, err = parseMetaKey(append(metaNamePrefix("x"), 0x07))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 2, de.Off)
}
