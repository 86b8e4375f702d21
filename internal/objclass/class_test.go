package objclass

import (
	"testing"

	"github.com/stretchr/testify/require"

	zerrors "github.com/zzenonn/zplace/internal/errors"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name      string
		class     string
		wantSize  int
		wantCount int
		wantErr   bool
	}{
		{name: "replicated", class: "RP_3G1", wantSize: 3, wantCount: 1},
		{name: "case insensitive", class: "rp_2gx", wantSize: 2, wantCount: MaxGroupCount},
		{name: "erasure coded", class: "EC_4P2G1", wantSize: 6, wantCount: 1},
		{name: "unknown", class: "RP_9G9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Lookup(tt.class)
			if tt.wantErr {
				require.ErrorIs(t, err, zerrors.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSize, a.GroupSize)
			require.Equal(t, tt.wantCount, a.GroupCount)
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		attr    Attr
		wantErr bool
	}{
		{name: "replicated", attr: Attr{Name: "rp_5g1", GroupSize: 5, GroupCount: 1}},
		{name: "erasure coded", attr: Attr{Name: "EC_6P3G1", GroupSize: 9, GroupCount: 1, DataShards: 6, ParityShards: 3}},
		{name: "size mismatch", attr: Attr{Name: "EC_BAD", GroupSize: 5, GroupCount: 1, DataShards: 4, ParityShards: 2}, wantErr: true},
		{name: "too many shards for the codec", attr: Attr{Name: "EC_HUGE", GroupSize: 300, GroupCount: 1, DataShards: 200, ParityShards: 100}, wantErr: true},
		{name: "parity only", attr: Attr{Name: "P1", GroupSize: 1, ParityShards: 1}, wantErr: true},
		{name: "no name", attr: Attr{GroupSize: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.attr)
			if tt.wantErr {
				require.ErrorIs(t, err, zerrors.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			got, err := r.Lookup(tt.attr.Name)
			require.NoError(t, err)
			require.Equal(t, tt.attr.GroupSize, got.GroupSize)
		})
	}
}

func TestAttr_GroupSizeFor(t *testing.T) {
	r := NewRegistry()
	a, err := r.Lookup("RP_XSF")
	require.NoError(t, err)
	require.Equal(t, 7, a.GroupSizeFor(7))

	a, err = r.Lookup("RP_2G1")
	require.NoError(t, err)
	require.Equal(t, 2, a.GroupSizeFor(7))
}

func TestRegistry_List(t *testing.T) {
	list := NewRegistry().List()
	require.Len(t, list, len(builtin))
	for i := 1; i < len(list); i++ {
		require.Less(t, list[i-1].Name, list[i].Name)
	}
}
