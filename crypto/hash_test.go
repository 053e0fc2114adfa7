package crypto

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_HexRoundTrip(t *testing.T) {
	require := require.New(t)

	original := HashBytes(nil)
	parsed, err := ParseHash(original.String())
	require.NoError(err)
	require.Equal(original, parsed)

	_, err = ParseHash("abc")
	require.Error(err)
	_, err = ParseHash(fmt.Sprintf("%064s", "zz"))
	require.Error(err)
}

func TestHash_KnownDigestOfEmptyInput(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil).String())
}

func TestHash_ZeroHash(t *testing.T) {
	require := require.New(t)
	require.True(ZeroHash.IsZero())
	require.Equal(make([]byte, HashSize), ZeroHash.Bytes())
	require.False(HashBytes(nil).IsZero())
}

func TestHash_DebugFormat(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = 1
	}
	require.Equal(t, "Hash(01010101...)", fmt.Sprintf("%#v", h))

	for i := range h {
		h[i] = 128
	}
	require.Equal(t, "Hash(80808080...)", h.GoString())
	require.Equal(t, "8080808080808080808080808080808080808080808080808080808080808080", h.String())
}

func TestHash_JSONRoundTrip(t *testing.T) {
	require := require.New(t)

	var h Hash
	for i := range h {
		h[i] = 207
	}
	raw, err := json.Marshal(h)
	require.NoError(err)
	require.Equal(`"`+h.String()+`"`, string(raw))

	var back Hash
	require.NoError(json.Unmarshal(raw, &back))
	require.Equal(h, back)
}

func TestHashStream_MatchesOneShot(t *testing.T) {
	require := require.New(t)

	require.Equal(HashBytes(nil), NewHashStream().Update(nil).Sum())

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0}
	require.Equal(HashBytes(data), NewHashStream().Update(data[:5]).Update(data[5:]).Sum())
	require.Equal(HashBytes(data), HashOf(data[:3], data[3:7], data[7:]))
}

func TestHashFromBytes(t *testing.T) {
	require := require.New(t)

	h := HashBytes([]byte("x"))
	back, err := HashFromBytes(h.Bytes())
	require.NoError(err)
	require.Equal(h, back)

	_, err = HashFromBytes([]byte{1, 2, 3})
	require.Error(err)
}
