package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
)

func TestUniform_ArenaLayout(t *testing.T) {
	m, err := Uniform(3, 2, 2, 4)
	require.NoError(t, err)

	require.Equal(t, uint32(3), m.Version())
	require.Equal(t, 1+2+4, m.DomainCount())
	require.Equal(t, 16, m.TargetCount())

	root, err := m.Root()
	require.NoError(t, err)
	require.Equal(t, 0, root.Index)
	require.Equal(t, 1, root.FirstChild)
	require.Equal(t, 2, root.ChildCount)
	require.Equal(t, 16, root.TargetCount)

	pds := m.FindDomains(domain.CompPerfDomain)
	require.Len(t, pds, 2)
	require.Equal(t, 3, pds[0].FirstChild)
	require.Equal(t, 5, pds[1].FirstChild)
	require.Equal(t, 8, pds[1].FirstTarget)

	nodes := m.FindDomains(domain.CompNode)
	require.Len(t, nodes, 4)
	for i, n := range nodes {
		require.True(t, n.IsLeaf())
		require.Equal(t, i*4, n.FirstTarget)
		for _, tg := range m.SubtreeTargets(&nodes[i]) {
			require.Equal(t, n.Index, tg.Domain)
		}
	}

	require.Nil(t, m.FindDomains(domain.CompRank))
}

func TestBuild_Validation(t *testing.T) {
	leaf := func(id uint32, targets ...uint32) DomainSpec {
		d := DomainSpec{Type: domain.CompNode, ID: id}
		for _, tid := range targets {
			d.Targets = append(d.Targets, TargetSpec{ID: tid})
		}
		return d
	}

	tests := []struct {
		name string
		root DomainSpec
	}{
		{
			name: "duplicate target",
			root: DomainSpec{Children: []DomainSpec{leaf(0, 1, 2), leaf(1, 2, 3)}},
		},
		{
			name: "duplicate domain",
			root: DomainSpec{Children: []DomainSpec{leaf(0, 1), leaf(0, 2)}},
		},
		{
			name: "uneven depth",
			root: DomainSpec{Children: []DomainSpec{
				leaf(0, 1),
				{Type: domain.CompNode, ID: 1, Children: []DomainSpec{{Type: domain.CompRank, ID: 0, Targets: []TargetSpec{{ID: 5}}}}},
			}},
		},
		{
			name: "empty leaf",
			root: DomainSpec{Children: []DomainSpec{leaf(0)}},
		},
		{
			name: "inverted levels",
			root: DomainSpec{Children: []DomainSpec{{Type: domain.CompNode, Children: []DomainSpec{{Type: domain.CompPerfDomain, Targets: []TargetSpec{{ID: 1}}}}}}},
		},
		{
			name: "shared failure sequence",
			root: DomainSpec{Children: []DomainSpec{{Type: domain.CompNode, Targets: []TargetSpec{
				{ID: 0, Status: domain.StatusDown, Fseq: 4},
				{ID: 1, Status: domain.StatusDownOut, Fseq: 4},
			}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(1, tt.root)
			require.Error(t, err)
			require.True(t, errors.Is(err, zerrors.ErrInvalidArgument))
		})
	}
}

func TestMap_FindTarget(t *testing.T) {
	m, err := Uniform(1, 4, 4)
	require.NoError(t, err)

	tg, err := m.FindTarget(7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), tg.ID)
	require.Equal(t, 7, tg.Index)

	_, err = m.FindTarget(99)
	require.ErrorIs(t, err, zerrors.ErrNotFound)
}

func TestMap_Apply(t *testing.T) {
	m, err := Uniform(1, 4, 4)
	require.NoError(t, err)

	next, err := m.Apply(5, TargetUpdate{ID: 3, Status: domain.StatusDown, Fseq: 5})
	require.NoError(t, err)
	require.Equal(t, uint32(5), next.Version())

	tg, _ := next.FindTarget(3)
	require.Equal(t, domain.StatusDown, tg.Status)
	old, _ := m.FindTarget(3)
	require.Equal(t, domain.StatusUpIn, old.Status)

	_, err = next.Apply(4)
	require.ErrorIs(t, err, zerrors.ErrInvalidArgument)

	_, err = next.Apply(6, TargetUpdate{ID: 4, Status: domain.StatusDown, Fseq: 5})
	require.ErrorIs(t, err, zerrors.ErrInvalidArgument)

	_, err = next.Apply(6, TargetUpdate{ID: 400, Status: domain.StatusDown})
	require.ErrorIs(t, err, zerrors.ErrNotFound)
}

func TestMap_IsAdding(t *testing.T) {
	m, err := Uniform(1, 2, 2)
	require.NoError(t, err)
	require.False(t, m.IsAdding())

	next, err := m.Apply(2, TargetUpdate{ID: 1, Status: domain.StatusUp, InVersion: 3})
	require.NoError(t, err)
	require.True(t, next.IsAdding())
	require.True(t, next.HasStatus(domain.StatusUp))
	require.False(t, next.HasStatus(domain.StatusDrain))
}

func TestComponent_EffectiveStatus(t *testing.T) {
	tests := []struct {
		name         string
		comp         Component
		allowVersion uint32
		want         domain.Status
	}{
		{name: "down in the past", comp: Component{Status: domain.StatusDown, Fseq: 3}, allowVersion: 5, want: domain.StatusDown},
		{name: "down in the future", comp: Component{Status: domain.StatusDown, Fseq: 8}, allowVersion: 5, want: domain.StatusUpIn},
		{name: "drain in the future", comp: Component{Status: domain.StatusDrain, Fseq: 8}, allowVersion: 5, want: domain.StatusUpIn},
		{name: "up brand new", comp: Component{Status: domain.StatusUp, Fseq: 1, InVersion: 9}, allowVersion: 5, want: domain.StatusNew},
		{name: "up reintegrating", comp: Component{Status: domain.StatusUp, Fseq: 4, InVersion: 9}, allowVersion: 5, want: domain.StatusDownOut},
		{name: "up already in", comp: Component{Status: domain.StatusUp, Fseq: 4, InVersion: 5}, allowVersion: 5, want: domain.StatusUp},
		{name: "upin", comp: Component{Status: domain.StatusUpIn}, allowVersion: 0, want: domain.StatusUpIn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.comp.EffectiveStatus(tt.allowVersion))
		})
	}
}

func TestComponent_Excluded(t *testing.T) {
	require.True(t, (&Component{Status: domain.StatusNew}).Excluded(true))
	require.False(t, (&Component{Status: domain.StatusNew}).Excluded(false))
	require.True(t, (&Component{Status: domain.StatusUp, Fseq: 1}).Excluded(true))
	require.False(t, (&Component{Status: domain.StatusUp, Fseq: 2}).Excluded(true))
	require.False(t, (&Component{Status: domain.StatusUpIn}).Excluded(true))
}
