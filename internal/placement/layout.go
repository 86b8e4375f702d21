package placement

import (
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/domain"
	"github.com/zzenonn/zplace/internal/topology"
)

// op selects which targets count as available while a layout is computed.
type op uint8

const (
	opPlace op = iota
	opPlaceExtended
	opRebuild
	opReint
	opAdd
)

func (o op) allow() domain.Status {
	switch o {
	case opReint:
		return domain.StatusUpIn | domain.StatusUp
	case opAdd:
		return domain.StatusUpIn | domain.StatusUp | domain.StatusNew
	}
	return domain.StatusUpIn
}

func (o op) String() string {
	return [...]string{"place", "place_extended", "rebuild", "reint", "add"}[o]
}

// objPlacement is the geometry of one layout computation.
type objPlacement struct {
	groupSize  int
	groupCount int
	// offset is the global shard number of the first slot; non-zero when a
	// single group is computed.
	offset int
	pds    *pdSet
}

// extension is a slot appended to a group while a target is mid-transition.
type extension struct {
	slot          int
	shard         int
	target        int
	fseq          uint32
	reintegrating bool
}

// layoutRun computes one layout over a map under one availability policy.
type layoutRun struct {
	m            *topology.Map
	md           domain.ObjectMetadata
	jop          *objPlacement
	op           op
	allowVersion uint32
	domainNr     int
	log          log.FieldLogger

	sel    *selector
	bits   *bits
	layout *domain.Layout
	remap  *remapList
	// drains holds the original targets of slots that are being drained.
	drains []extension
}

func newLayoutRun(m *topology.Map, fdom domain.CompType, domainNr int, md domain.ObjectMetadata, jop *objPlacement, o op, allowVersion uint32, logger log.FieldLogger) *layoutRun {
	return &layoutRun{
		m:            m,
		md:           md,
		jop:          jop,
		op:           o,
		allowVersion: allowVersion,
		domainNr:     domainNr,
		log:          logger,
		sel: &selector{
			m:             m,
			fdom:          fdom,
			layoutVersion: md.LayoutVersion,
			allow:         o.allow(),
			allowVersion:  allowVersion,
			groupSize:     jop.groupSize,
			log:           logger,
		},
		bits:   newBits(m.DomainCount(), m.TargetCount()),
		layout: domain.NewLayout(m.Version(), jop.groupSize, jop.groupCount),
		remap:  &remapList{},
	}
}

// run picks a target for every slot, queues the unavailable ones and
// resolves their spares.
func (r *layoutRun) run() {
	key := r.md.ID.Key()
	gs := r.jop.groupSize

	for g := 0; g < r.jop.groupCount; g++ {
		r.bits.grpUsed.Reset(r.m.DomainCount())
		r.bits.grpReal.Reset(r.m.DomainCount())

		var failed []*failedShard
		for k := g * gs; k < (g+1)*gs; k++ {
			shard := r.jop.offset + k
			tgt, dom := r.sel.pick(r.bits, r.jop.pds.domainFor(shard), key, shard)
			if tgt < 0 {
				r.log.WithField("shard", shard).Warn("no target found for shard")
				continue
			}

			t := r.m.Target(tgt)
			slot := &r.layout.Shards[k]
			slot.Index = shard
			slot.Target = int(t.ID)
			slot.Fseq = t.Fseq

			if t.Available(r.sel.allow, r.allowVersion) {
				if dom >= 0 {
					r.bits.grpReal.Set(dom)
				}
				continue
			}

			f := &failedShard{
				slot:       k,
				shard:      shard,
				fseq:       t.Fseq,
				status:     t.Status,
				origTarget: tgt,
				tgtID:      -1,
			}
			r.remap.insert(f)
			failed = append(failed, f)

			if r.op == opPlaceExtended && t.Status == domain.StatusDrain {
				r.drains = append(r.drains, extension{slot: k, shard: shard, target: int(t.ID), fseq: t.Fseq})
			}
		}

		if len(failed) > 0 {
			snap := r.bits.snapshotGroup()
			for _, f := range failed {
				f.group = snap
			}
		}
	}

	if r.remap.Len() > 0 {
		r.remapShards()
	}
	r.dump()
}

// hasNextSpare reports whether another spare may be drawn. A group that
// already spans every fault domain has nowhere to go.
func (r *layoutRun) hasNextSpare(sparesLeft int) bool {
	if r.jop.groupSize == r.domainNr && r.jop.groupSize > 1 {
		return false
	}
	return sparesLeft > 0
}

// remapShards walks the remap list in order and finds a spare for every
// entry. An unavailable candidate either defers the entry (it failed after
// allowVersion), is skipped (it failed no later than the entry), or takes
// the entry's place in the list (it failed later).
func (r *layoutRun) remapShards() {
	r.remap.dump(r.log, r.md.ID, "before remap:")

	key := r.md.ID.Key()
	sparesLeft := r.m.TargetCount() - len(r.layout.Shards)
	if sparesLeft < 0 {
		sparesLeft = 0
	}

	for cur := 0; cur < r.remap.Len(); {
		f := r.remap.items[cur]
		slot := &r.layout.Shards[f.slot]

		spare, dom := -1, -1
		spareAvail := r.hasNextSpare(sparesLeft)
		if spareAvail {
			b := r.bits
			if f.group != nil {
				b = r.bits.forGroup(f.group)
			}
			rebuildKey := crc(key, uint32(f.shard))
			spare, dom = r.sel.pick(b, r.jop.pds.domainFor(f.shard), crc(key, uint32(rebuildKey)), f.shard)
			sparesLeft--
			if r.sel.layoutVersion == 0 {
				spareAvail = sparesLeft > 0
			}
			if spare < 0 {
				spareAvail = false
			}
		}

		if spareAvail {
			t := r.m.Target(spare)
			if !t.Available(r.sel.allow, r.allowVersion) {
				switch {
				case t.Fseq > r.allowVersion:
					r.log.Debugf("%s: spare %d fseq %d beyond version %d, deferring shard %d",
						r.md.ID, t.ID, t.Fseq, r.allowVersion, f.shard)
					spareAvail = false
				case t.Fseq <= f.fseq:
					continue
				default:
					f.fseq = t.Fseq
					f.status = t.Status
					r.remap.remove(cur)
					r.remap.insert(f)
					continue
				}
			}
		}

		if spareAvail {
			t := r.m.Target(spare)
			slot.Target = int(t.ID)
			slot.Fseq = f.fseq
			switch f.status {
			case domain.StatusDown, domain.StatusDrain:
				slot.Rebuilding = true
			case domain.StatusUp, domain.StatusNew:
				slot.Reintegrating = true
			}
			f.tgtID = int(t.ID)
			if dom >= 0 && f.group != nil {
				f.group.real.Set(dom)
			}
		} else {
			if sparesLeft <= 0 {
				r.log.WithField("shard", f.shard).Warn("spare targets exhausted")
			}
			slot.Index = -1
			slot.Target = -1
		}
		cur++
	}

	r.remap.dump(r.log, r.md.ID, "after remap:")
}

func (r *layoutRun) dump() {
	if !isDebug(r.log) {
		return
	}
	r.log.Debugf("%s layout for %s: %s", r.op, r.md.ID, r.layout)
}

// extendLayout grows every group by the largest number of extensions any
// group received and appends the extensions to their groups. Unused extra
// slots are left unplaced.
func extendLayout(l *domain.Layout, ext []extension) *domain.Layout {
	if len(ext) == 0 {
		return l
	}

	counts := make([]int, l.GroupCount)
	grow := 0
	for _, e := range ext {
		g := e.slot / l.GroupSize
		counts[g]++
		if counts[g] > grow {
			grow = counts[g]
		}
	}

	out := domain.NewLayout(l.Version, l.GroupSize+grow, l.GroupCount)
	for g := 0; g < l.GroupCount; g++ {
		copy(out.Group(g), l.Group(g))
	}

	filled := make([]int, l.GroupCount)
	for _, e := range ext {
		g := e.slot / l.GroupSize
		pos := g*out.GroupSize + l.GroupSize + filled[g]
		filled[g]++
		out.Shards[pos] = domain.Shard{
			Index:         e.shard,
			Target:        e.target,
			Fseq:          e.fseq,
			Reintegrating: e.reintegrating,
		}
	}
	return out
}
