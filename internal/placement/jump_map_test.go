package placement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/topology"
)

func newJumpMap(t *testing.T, m *topology.Map) *JumpMap {
	t.Helper()
	j, err := NewJumpMap(m, testOptions())
	require.NoError(t, err)
	return j
}

func TestJumpMap_PlaceHealthy(t *testing.T) {
	m := uniformMap(t, 1, 4, 4)
	j := newJumpMap(t, m)

	for _, lv := range []uint32{0, 1} {
		for lo := uint64(1); lo <= 32; lo++ {
			md := object(lo, "RP_3G1")
			md.LayoutVersion = lv

			layout, err := j.Place(md, nil, 0)
			require.NoError(t, err)
			require.Equal(t, 3, layout.GroupSize)
			require.Equal(t, 1, layout.GroupCount)
			require.Len(t, layout.Shards, 3)

			again, err := j.Place(md, nil, 0)
			require.NoError(t, err)
			require.Equal(t, layout, again, "layout must be reproducible")

			targets := make(map[int]bool)
			doms := make(map[int]bool)
			for i, s := range layout.Shards {
				require.Equal(t, i, s.Index)
				require.GreaterOrEqual(t, s.Target, 0)
				require.False(t, s.Rebuilding)
				require.False(t, s.Reintegrating)
				targets[s.Target] = true
				doms[domainOf(t, m, s.Target)] = true
			}
			require.Len(t, targets, 3, "oid %d v%d: %s", lo, lv, layout)
			if lv == 1 {
				require.Len(t, doms, 3, "oid %d: %s", lo, layout)
			}
		}
	}
}

func TestJumpMap_PlaceMultiGroup(t *testing.T) {
	m := uniformMap(t, 1, 4, 4)
	j := newJumpMap(t, m)

	layout, err := j.Place(object(7, "RP_2G2"), nil, 0)
	require.NoError(t, err)
	require.Len(t, layout.Shards, 4)

	seen := make(map[int]bool)
	for g := 0; g < layout.GroupCount; g++ {
		grp := layout.Group(g)
		require.NotEqual(t, domainOf(t, m, grp[0].Target), domainOf(t, m, grp[1].Target))
		for _, s := range grp {
			require.False(t, seen[s.Target], "target %d used twice: %s", s.Target, layout)
			seen[s.Target] = true
		}
	}

	// A class without a group count stripes over every target it can.
	layout, err = j.Place(object(7, "RP_2GX"), nil, 0)
	require.NoError(t, err)
	require.Equal(t, 8, layout.GroupCount)
}

func TestJumpMap_PlaceSingleGroup(t *testing.T) {
	m := uniformMap(t, 1, 4, 4)
	j := newJumpMap(t, m)

	layout, err := j.Place(object(9, "RP_2GX"), &domain.ShardMetadata{GroupIndex: 3}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, layout.GroupCount)
	require.Equal(t, 6, layout.Shards[0].Index)
	require.Equal(t, 7, layout.Shards[1].Index)

	_, err = j.Place(object(9, "RP_2GX"), &domain.ShardMetadata{GroupIndex: 8}, 0)
	require.ErrorIs(t, err, zerrors.ErrInvalidArgument)
}

func TestJumpMap_LayoutVersion(t *testing.T) {
	j := newJumpMap(t, uniformMap(t, 1, 4, 4))
	md := object(1, "RP_2G1")
	md.LayoutVersion = 2

	_, err := j.Place(md, nil, 0)
	require.ErrorIs(t, err, zerrors.ErrInvalidArgument)
}

// failSlot marks the target of one slot down at version.
func failSlot(t *testing.T, m *topology.Map, layout *domain.Layout, slot int, version, fseq uint32) *topology.Map {
	t.Helper()
	next, err := m.Apply(version, topology.TargetUpdate{
		ID:     uint32(layout.Shards[slot].Target),
		Status: domain.StatusDown,
		Fseq:   fseq,
	})
	require.NoError(t, err)
	return next
}

func TestJumpMap_FindRebuild(t *testing.T) {
	base := uniformMap(t, 1, 4, 4)
	md := object(0xabcdef, "RP_3G1")

	layout, err := newJumpMap(t, base).Place(md, nil, 0)
	require.NoError(t, err)

	failed := failSlot(t, base, layout, 1, 100, 100)
	j := newJumpMap(t, failed)

	tests := []struct {
		name     string
		version  uint32
		capacity int
		wantLen  int
		wantErr  error
	}{
		{name: "failure visible", version: 100, capacity: 8, wantLen: 1},
		{name: "failure after rebuild version", version: 99, capacity: 8, wantLen: 0},
		{name: "no room for output", version: 100, capacity: 0, wantErr: zerrors.ErrRecordTooBig},
		{name: "version newer than map", version: 101, capacity: 8, wantErr: zerrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := j.FindRebuild(md, nil, tt.version, tt.capacity)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, items, tt.wantLen)
			if tt.wantLen == 0 {
				return
			}

			item := items[0]
			require.Equal(t, 1, item.Shard)
			require.Equal(t, domain.WorkRebuild, item.Kind)
			require.NotEqual(t, layout.Shards[1].Target, item.Target)

			spareDom := domainOf(t, failed, item.Target)
			require.NotEqual(t, domainOf(t, failed, layout.Shards[0].Target), spareDom)
			require.NotEqual(t, domainOf(t, failed, layout.Shards[2].Target), spareDom)
		})
	}

	// The current layout sends the failed slot to the same spare.
	current, err := j.Place(md, nil, 0)
	require.NoError(t, err)
	items, err := j.FindRebuild(md, nil, 100, 8)
	require.NoError(t, err)
	require.Equal(t, items[0].Target, current.Shards[1].Target)
	require.True(t, current.Shards[1].Rebuilding)
	require.Equal(t, uint32(100), current.Shards[1].Fseq)
}

func TestJumpMap_FindRebuildVersions(t *testing.T) {
	base := uniformMap(t, 1, 4, 4)
	md := object(0x5eed, "RP_3G1")

	layout, err := newJumpMap(t, base).Place(md, nil, 0)
	require.NoError(t, err)

	m := failSlot(t, base, layout, 0, 100, 100)
	m = failSlot(t, m, layout, 2, 101, 101)
	j := newJumpMap(t, m)

	early, err := j.FindRebuild(md, nil, 100, 8)
	require.NoError(t, err)
	late, err := j.FindRebuild(md, nil, 101, 8)
	require.NoError(t, err)

	require.Len(t, early, 1)
	require.Equal(t, 0, early[0].Shard)
	require.Len(t, late, 2)

	shards := map[int]bool{}
	for _, it := range late {
		shards[it.Shard] = true
	}
	require.True(t, shards[0])
	require.True(t, shards[2])
}

func TestJumpMap_FindRebuildCascade(t *testing.T) {
	base := uniformMap(t, 1, 8, 2)

	for lo := uint64(1); lo <= 8; lo++ {
		md := object(lo, "RP_2G1")
		layout, err := newJumpMap(t, base).Place(md, nil, 0)
		require.NoError(t, err)

		m := failSlot(t, base, layout, 0, 10, 10)
		m = failSlot(t, m, layout, 1, 15, 15)

		before, err := newJumpMap(t, m).FindRebuild(md, nil, 15, 8)
		require.NoError(t, err)
		require.Len(t, before, 2)
		spare := before[0].Target

		// The spare that took over shard 0 fails after shard 1 did.
		m, err = m.Apply(20, topology.TargetUpdate{ID: uint32(spare), Status: domain.StatusDown, Fseq: 20})
		require.NoError(t, err)
		j := newJumpMap(t, m)

		tests := []struct {
			name       string
			version    uint32
			wantShards []int
		}{
			{name: "first failure", version: 10, wantShards: []int{0}},
			{name: "second failure", version: 15, wantShards: []int{0, 1}},
			{name: "spare failure", version: 20, wantShards: []int{1, 0}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				items, err := j.FindRebuild(md, nil, tt.version, 8)
				require.NoError(t, err)
				require.Len(t, items, len(tt.wantShards), "oid %d: %v", lo, items)
				for i, it := range items {
					require.Equal(t, tt.wantShards[i], it.Shard, "oid %d: %v", lo, items)
					require.NotEqual(t, layout.Shards[0].Target, it.Target)
					require.NotEqual(t, layout.Shards[1].Target, it.Target)
				}
				if tt.version < 20 {
					return
				}
				require.NotEqual(t, spare, items[1].Target, "oid %d: %v", lo, items)
				require.NotEqual(t, items[0].Target, items[1].Target)
			})
		}

		current, err := j.Place(md, nil, 0)
		require.NoError(t, err)
		require.Equal(t, uint32(20), current.Shards[0].Fseq)
		require.True(t, current.Shards[0].Rebuilding)
		require.NotEqual(t, spare, current.Shards[0].Target)
	}
}

func TestJumpMap_SparesExhausted(t *testing.T) {
	// RP_2GX stripes over all 16 targets, leaving no spare.
	base := uniformMap(t, 1, 4, 4)

	for lo := uint64(1); lo <= 4; lo++ {
		md := object(lo, "RP_2GX")
		layout, err := newJumpMap(t, base).Place(md, nil, 0)
		require.NoError(t, err)
		require.Len(t, layout.Shards, 16)

		j := newJumpMap(t, failSlot(t, base, layout, 0, 2, 2))

		current, err := j.Place(md, nil, 0)
		require.NoError(t, err)
		require.Equal(t, -1, current.Shards[0].Target, "oid %d: %s", lo, current)
		require.Equal(t, -1, current.Shards[0].Index)
		require.Equal(t, layout.Shards[1:], current.Shards[1:])

		items, err := j.FindRebuild(md, nil, 2, 16)
		require.NoError(t, err)
		require.Empty(t, items, "oid %d", lo)
	}
}

func TestJumpMap_Drain(t *testing.T) {
	base := uniformMap(t, 1, 4, 4)
	md := object(0xd1a1, "RP_3G1")

	layout, err := newJumpMap(t, base).Place(md, nil, 0)
	require.NoError(t, err)
	drained := layout.Shards[1]

	m, err := base.Apply(10, topology.TargetUpdate{ID: uint32(drained.Target), Status: domain.StatusDrain, Fseq: 7})
	require.NoError(t, err)
	j := newJumpMap(t, m)

	ext, err := j.Place(md, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 4, ext.GroupSize)
	require.True(t, ext.Shards[1].Rebuilding)
	require.NotEqual(t, drained.Target, ext.Shards[1].Target)
	require.Equal(t, domain.Shard{Index: 1, Target: drained.Target, Fseq: 7}, ext.Shards[3])

	ro, err := j.Place(md, nil, ModeReadOnly)
	require.NoError(t, err)
	require.Equal(t, 3, ro.GroupSize)

	items, err := j.FindRebuild(md, nil, 10, 8)
	require.NoError(t, err)
	require.Equal(t, []domain.WorkItem{{Shard: 1, Target: ext.Shards[1].Target, Kind: domain.WorkRebuild}}, items)
}

func TestJumpMap_FindReintegration(t *testing.T) {
	base := uniformMap(t, 1, 4, 4)
	md := object(0x4e1, "RP_3G1")

	healthy := newJumpMap(t, base)
	items, err := healthy.FindReintegration(md, nil, 1, 8)
	require.NoError(t, err)
	require.Empty(t, items)

	layout, err := healthy.Place(md, nil, 0)
	require.NoError(t, err)
	back := layout.Shards[1].Target

	m, err := base.Apply(10, topology.TargetUpdate{ID: uint32(back), Status: domain.StatusUp, Fseq: 5})
	require.NoError(t, err)
	j := newJumpMap(t, m)

	items, err = j.FindReintegration(md, nil, 10, 8)
	require.NoError(t, err)
	require.Contains(t, items, domain.WorkItem{Shard: 1, Target: back, Kind: domain.WorkReintegration})

	// The transition happened at fseq 5; an older pass sees nothing yet.
	items, err = j.FindReintegration(md, nil, 4, 8)
	require.NoError(t, err)
	require.Empty(t, items)

	ext, err := j.Place(md, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 4, ext.GroupSize)
	require.NotEqual(t, back, ext.Shards[1].Target)
	require.Equal(t, back, ext.Shards[3].Target)
	require.Equal(t, 1, ext.Shards[3].Index)
	require.True(t, ext.Shards[3].Reintegrating)
}

func TestJumpMap_FindAddition(t *testing.T) {
	root := topology.DomainSpec{Type: domain.CompRoot}
	var id uint32
	for n := uint32(0); n < 5; n++ {
		node := topology.DomainSpec{Type: domain.CompNode, ID: n}
		status := domain.StatusUpIn
		if n == 4 {
			status = domain.StatusNew
			node.Status = status
			node.Version = 2
		}
		for k := 0; k < 4; k++ {
			node.Targets = append(node.Targets, topology.TargetSpec{ID: id, Rank: n, Status: status})
			id++
		}
		root.Children = append(root.Children, node)
	}
	m, err := topology.Build(2, root)
	require.NoError(t, err)
	require.True(t, m.IsAdding())

	j := newJumpMap(t, m)
	require.Equal(t, 5, j.Query().DomainCount)

	total := 0
	for lo := uint64(1); lo <= 64; lo++ {
		md := object(lo, "RP_3G1")

		// Nothing lands on the new node until it is added.
		layout, err := j.Place(md, nil, ModeReadOnly)
		require.NoError(t, err)
		for _, s := range layout.Shards {
			require.Less(t, s.Target, 16, "oid %d: %s", lo, layout)
		}

		items, err := j.FindAddition(md, nil, 2, 8)
		require.NoError(t, err)
		require.LessOrEqual(t, len(items), 3)

		// The extended layout carries every new target as an extra copy.
		ext, err := j.Place(md, nil, 0)
		require.NoError(t, err)
		extra := make(map[int]domain.Shard)
		for _, s := range ext.Shards[3:] {
			if s.Target >= 0 {
				extra[s.Target] = s
			}
		}
		require.Len(t, extra, len(items), "oid %d: %s", lo, ext)
		for _, it := range items {
			require.Equal(t, domain.WorkAddition, it.Kind)
			s, ok := extra[it.Target]
			require.True(t, ok, "oid %d: target %d missing from %s", lo, it.Target, ext)
			require.Equal(t, it.Shard, s.Index)
			require.True(t, s.Reintegrating)
		}
		total += len(items)
	}
	require.Positive(t, total)
}

// perfDomainOf maps a leaf domain position to the index of its
// performance domain.
func perfDomainOf(m *topology.Map) func(dom int) int {
	pds := m.FindDomains(domain.CompPerfDomain)
	return func(dom int) int {
		for i, pd := range pds {
			if dom >= pd.FirstChild && dom < pd.FirstChild+pd.ChildCount {
				return i
			}
		}
		return -1
	}
}

func TestJumpMap_PerformanceDomains(t *testing.T) {
	// 2 performance domains of 4 nodes of 4 targets.
	m := uniformMap(t, 1, 2, 4, 4)
	j := newJumpMap(t, m)
	require.Equal(t, 8, j.Query().DomainCount)

	pdOf := perfDomainOf(m)

	for lo := uint64(1); lo <= 16; lo++ {
		layout, err := j.Place(object(lo, "RP_2G1"), nil, 0)
		require.NoError(t, err)

		d0 := domainOf(t, m, layout.Shards[0].Target)
		d1 := domainOf(t, m, layout.Shards[1].Target)
		require.NotEqual(t, d0, d1)
		require.Equal(t, pdOf(d0), pdOf(d1), "oid %d left its performance domain: %s", lo, layout)
	}
}

func TestJumpMap_PerformanceDomainAffinity(t *testing.T) {
	m := uniformMap(t, 1, 2, 4, 4)
	j := newJumpMap(t, m)
	pdOf := perfDomainOf(m)

	tests := []struct {
		name string
		pda  uint32
	}{
		{name: "default", pda: 0},
		{name: "smaller than a group", pda: 1},
		{name: "not a multiple of the group size", pda: 3},
		{name: "whole object", pda: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for lo := uint64(1); lo <= 16; lo++ {
				md := object(lo, "RP_2G2")
				md.PDA = tt.pda

				layout, err := j.Place(md, nil, 0)
				require.NoError(t, err)
				for g := 0; g < layout.GroupCount; g++ {
					grp := layout.Group(g)
					d0 := domainOf(t, m, grp[0].Target)
					d1 := domainOf(t, m, grp[1].Target)
					require.NotEqual(t, d0, d1)
					require.Equal(t, pdOf(d0), pdOf(d1), "oid %d group %d split: %s", lo, g, layout)
				}
			}
		})
	}
}
