package placement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJumpHash(t *testing.T) {
	for key := uint64(0); key < 2000; key++ {
		k := crc(key, 0)
		require.Equal(t, 0, jumpHash(k, 1))

		prev := jumpHash(k, 1)
		for n := 2; n <= 32; n++ {
			got := jumpHash(k, n)
			require.GreaterOrEqual(t, got, 0)
			require.Less(t, got, n)
			// Growing the bucket count only moves keys into the new bucket.
			if got != prev {
				require.Equal(t, n-1, got)
			}
			prev = got
		}
	}
}

func TestJumpHash_Spread(t *testing.T) {
	counts := make([]int, 8)
	for key := uint64(0); key < 8000; key++ {
		counts[jumpHash(crc(key, 1), 8)]++
	}
	for b, c := range counts {
		require.InDelta(t, 1000, c, 200, "bucket %d", b)
	}
}

func TestCRC(t *testing.T) {
	require.Equal(t, crc(42, 7), crc(42, 7))
	require.NotEqual(t, crc(42, 7), crc(42, 8))
	require.NotEqual(t, crc(42, 7), crc(43, 7))
}

func TestPower2Bits(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint
	}{
		{in: 1, want: 0},
		{in: 2, want: 1},
		{in: 3, want: 2},
		{in: 4, want: 2},
		{in: 5, want: 3},
		{in: 8, want: 3},
		{in: 9, want: 4},
		{in: 1024, want: 10},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, power2Bits(tt.in), "power2Bits(%d)", tt.in)
	}
}

func TestSearchHashes(t *testing.T) {
	h := []uint64{0, 10, 20, 30}
	tests := []struct {
		v    uint64
		want int
	}{
		{v: 0, want: 0},
		{v: 5, want: 0},
		{v: 10, want: 1},
		{v: 25, want: 2},
		{v: 30, want: 3},
		{v: 1 << 40, want: 3},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, searchHashes(h, tt.v), "search %d", tt.v)
	}
	require.Equal(t, 0, searchHashes([]uint64{0}, 99))
}

func TestGoldenHash(t *testing.T) {
	require.Zero(t, goldenHash(0, 23))
	for key := uint64(1); key < 1000; key++ {
		require.Less(t, goldenHash(key, 23), uint64(1)<<23)
	}
}

func TestMix96(t *testing.T) {
	require.Equal(t, mix96(1, 2, 3), mix96(1, 2, 3))
	require.NotEqual(t, mix96(1, 2, 3), mix96(2, 2, 3))
}
