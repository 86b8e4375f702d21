package smallvec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVec_Append(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		spilled bool
	}{
		{name: "empty", count: 0, spilled: false},
		{name: "inline", count: InlineCap, spilled: false},
		{name: "spilled", count: InlineCap + 5, spilled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Vec[int]
			for i := 0; i < tt.count; i++ {
				v.Append(i * 10)
			}
			require.Equal(t, tt.count, v.Len())
			require.Equal(t, tt.spilled, v.Spilled())
			for i := 0; i < tt.count; i++ {
				require.Equal(t, i*10, v.At(i))
			}
		})
	}
}

func TestVec_WithCapacity(t *testing.T) {
	v := WithCapacity[uint32](20)
	for i := 0; i < 20; i++ {
		v.Append(uint32(i))
	}
	require.True(t, v.Spilled())
	require.Len(t, v.Slice(), 20)

	v.Set(3, 99)
	require.Equal(t, uint32(99), v.At(3))

	small := WithCapacity[uint32](2)
	small.Append(7)
	require.False(t, small.Spilled())
	require.Equal(t, []uint32{7}, small.Slice())
}
