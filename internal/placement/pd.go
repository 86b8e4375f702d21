package placement

import (
	"github.com/zzenonn/zplace/internal/bitmap"
	"github.com/zzenonn/zplace/internal/domain"
	"github.com/zzenonn/zplace/internal/smallvec"
	"github.com/zzenonn/zplace/internal/topology"
)

// pdSet is the subset of performance domains an object is confined to.
type pdSet struct {
	// pda is the number of consecutive shards that share a PD.
	pda  int
	doms *smallvec.Vec[int]
}

// selectPDs picks ceil(shards/pda) performance domains, capped by how many
// the map has, with jump hash and linear probing on collisions. It returns
// nil when the map has no performance-domain level.
func selectPDs(m *topology.Map, oid domain.ObjectID, shards, pda int) *pdSet {
	level := pdLevel(m)
	if level == nil || level.Count == 0 || pda <= 0 {
		return nil
	}

	nr := (shards + pda - 1) / pda
	if nr > level.Count {
		nr = level.Count
	}
	if nr < 1 {
		nr = 1
	}

	set := &pdSet{pda: pda, doms: smallvec.WithCapacity[int](nr)}
	used := bitmap.New(level.Count)
	key := oid.Key()
	for i := 0; i < nr; i++ {
		key = crc(key, uint32(i))
		idx := jumpHash(key, level.Count)
		for used.IsSet(idx) {
			idx = (idx + 1) % level.Count
		}
		used.Set(idx)
		set.doms.Append(level.Start + idx)
	}
	return set
}

func pdLevel(m *topology.Map) *topology.Level {
	for _, l := range m.Levels() {
		if l.Type == domain.CompPerfDomain {
			return &l
		}
	}
	return nil
}

// domainFor returns the arena position of the PD that holds shard, or the
// root when no PD is selected.
func (p *pdSet) domainFor(shard int) int {
	if p == nil || p.doms.Len() == 0 {
		return 0
	}
	return p.doms.At((shard / p.pda) % p.doms.Len())
}

func (p *pdSet) Len() int {
	if p == nil {
		return 0
	}
	return p.doms.Len()
}
