package placement

import (
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/topology"
)

// diffAllow is the mask a diff target must satisfy to be reported.
const diffAllow = domain.StatusUpIn | domain.StatusUp | domain.StatusDrain | domain.StatusNew

// diffLayouts lists the slots whose target differs between orig and post.
// In reintegration mode a slot that orig marks as rebuilding is reported
// even when its target did not change. Entries keep slot order.
func diffLayouts(m *topology.Map, orig, post *domain.Layout, reint bool, kind domain.WorkKind, logger log.FieldLogger) []diffEntry {
	var out []diffEntry
	for i := range orig.Shards {
		o, n := orig.Shards[i], post.Shards[i]
		moved := n.Target != o.Target
		if !moved && !(reint && o.Rebuilding) {
			continue
		}
		if n.Target < 0 {
			continue
		}

		t, err := m.FindTarget(uint32(n.Target))
		if err != nil {
			logger.WithError(err).Errorf("diff target of shard %d", n.Index)
			continue
		}
		// Targets unavailable under diffAllow are logged and left out.
		if !t.Available(diffAllow, m.Version()) {
			logger.Errorf("diff target %d of shard %d is %s, skipping", t.ID, n.Index, t.Status)
			continue
		}

		k := kind
		if !moved {
			k = domain.WorkRebuild
		}
		out = append(out, diffEntry{slot: i, shard: n.Index, target: t, kind: k})
	}
	return out
}

// diffEntry is one shard that moves between two layouts.
type diffEntry struct {
	slot   int
	shard  int
	target *topology.Target
	kind   domain.WorkKind
}

// fillDiff converts diff entries into work items, skipping targets whose
// transition happens after version.
func fillDiff(entries []diffEntry, version uint32, capacity int) ([]domain.WorkItem, error) {
	var out []domain.WorkItem
	for _, e := range entries {
		if e.target.TransitionVersion() > version {
			continue
		}
		out = append(out, domain.WorkItem{Shard: e.shard, Target: int(e.target.ID), Kind: e.kind})
	}
	if len(out) > capacity {
		return nil, zerrors.RecordTooBigError(len(out), capacity)
	}
	return out, nil
}

// fillRebuild walks the sorted remap list up to version and emits every
// failed shard that got a spare.
func fillRebuild(remap *remapList, layout *domain.Layout, version uint32, capacity int, addition bool) ([]domain.WorkItem, error) {
	var out []domain.WorkItem
	for _, f := range remap.items {
		if f.fseq > version {
			break
		}
		switch f.status {
		case domain.StatusDown, domain.StatusDrain, domain.StatusUp:
		case domain.StatusNew:
			if !addition {
				continue
			}
		default:
			continue
		}
		if layout.Shards[f.slot].Index == -1 || f.tgtID < 0 {
			continue
		}
		out = append(out, domain.WorkItem{Shard: layout.Shards[f.slot].Index, Target: f.tgtID, Kind: domain.WorkRebuild})
	}
	if len(out) > capacity {
		return nil, zerrors.RecordTooBigError(len(out), capacity)
	}
	return out, nil
}
