package journal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	seq, ts, id, err := parseSegmentName("123-20230101T000000-11223344aabbccdd")
	require.NoError(t, err)
	require.Equal(t, uint32(123), seq)
	require.Equal(t, uint32(1672531200), ts)
	require.Equal(t, uint64(0x11223344_aabbccdd), id)
}

func TestParseName_Invalid(t *testing.T) {
	for _, name := range []string{"", "x-20230101T000000-1", "1-notatime-1", "1-20230101T000000-zz"} {
		_, _, _, err := parseSegmentName(name)
		require.Error(t, err, name)
	}
}

func TestFormatName(t *testing.T) {
	name := formatSegmentName("x", "y", 123, 1672531200, 0x11223344_aabbccdd)
	require.Equal(t, "x000000000123-20230101T000000-11223344aabbccddy", name)
}

func TestRecordHeaderHasLowBitClear(t *testing.T) {
	for _, size := range []int{0, 1, 63, 64, 127, 128, 1 << 20} {
		h := appendRecordHeader(nil, size, 7)
		require.Zero(t, h[0]&recordFlagCommit, "size %d", size)
	}
}
