package placement

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/topology"
)

const (
	// targetBits is the minimum key range of one target.
	targetBits = 10
	// domainBits covers about a million domains.
	domainBits = 20
	// targetHashBits caps the key range of a ring.
	targetHashBits = 45
	// ringHashBits allows up to 8 million rings.
	ringHashBits = 23

	domainPrime = 23
	targetPrime = 13
)

// ringAllow is what a ring slot may hold without a remap.
const ringAllow = domain.StatusUpIn | domain.StatusUp | domain.StatusNew

// RingMap places the shards of an object on consecutive positions of a
// pseudo-random ring of targets. Consecutive positions sit in different
// fault domains, so a group of shards walks round-robin across domains.
type RingMap struct {
	m    *topology.Map
	opts Options
	log  log.FieldLogger

	domainNr int
	targetNr int
	// rings hold target arena positions.
	rings        [][]int
	targetHashes []uint64
	ringHashes   []uint64
	targetHBits  uint
}

var _ Strategy = (*RingMap)(nil)

type ringDomain struct {
	comp    *topology.Domain
	targets []*topology.Target
}

// NewRingMap builds opts.RingCount rings over the fault domains of m.
func NewRingMap(m *topology.Map, opts Options) (*RingMap, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.WithField("strategy", KindRing)

	if _, err := m.Root(); err != nil {
		logger.WithError(err).Error("could not find root node in pool map")
		return nil, err
	}

	var doms []ringDomain
	fdoms := m.FindDomains(opts.FaultDomain)
	for i := range fdoms {
		d := &fdoms[i]
		if d.Version > m.Version() || d.TargetCount == 0 {
			continue
		}
		rd := ringDomain{comp: d}
		for k := range m.SubtreeTargets(d) {
			rd.targets = append(rd.targets, m.Target(d.FirstTarget+k))
		}
		doms = append(doms, rd)
	}
	if len(doms) == 0 {
		return nil, zerrors.InvalidArgumentError("pool map has no %s domains with targets", opts.FaultDomain)
	}

	r := &RingMap{m: m, opts: opts, log: logger, domainNr: len(doms)}
	for _, d := range doms {
		r.targetNr += len(d.targets)
	}
	if r.targetNr > opts.MaxBits {
		return nil, zerrors.AllocationError("ring", r.targetNr, opts.MaxBits)
	}

	for i := 0; i < opts.RingCount; i++ {
		r.rings = append(r.rings, r.buildRing(doms, uint32(i+1)))
	}
	r.buildHashes()

	logger.Debugf("built %d rings over %d domains, %d targets", len(r.rings), r.domainNr, r.targetNr)
	return r, nil
}

func shuffleKey(seed, id, prime uint32) uint32 {
	return mix96(seed, id%prime, id)
}

// buildRing shuffles domains and targets with seed and deals one target per
// domain per round. Components are grouped by version first, so members
// added later interleave with the existing order instead of reshuffling it.
func (r *RingMap) buildRing(src []ringDomain, seed uint32) []int {
	doms := make([]ringDomain, len(src))
	for i, d := range src {
		doms[i] = ringDomain{comp: d.comp, targets: shuffleTargets(d.targets, seed)}
	}

	sort.SliceStable(doms, func(a, b int) bool { return doms[a].comp.Version < doms[b].comp.Version })

	var merged []ringDomain
	for start := 0; start < len(doms); {
		end := start
		for end < len(doms) && doms[end].comp.Version == doms[start].comp.Version {
			end++
		}
		group := doms[start:end]
		sort.SliceStable(group, func(a, b int) bool {
			ka := shuffleKey(seed, group[a].comp.ID, domainPrime)
			kb := shuffleKey(seed, group[b].comp.ID, domainPrime)
			if ka != kb {
				return ka < kb
			}
			return group[a].comp.ID < group[b].comp.ID
		})

		next := make([]ringDomain, 0, len(merged)+len(group))
		for i := 0; i < len(merged) || i < len(group); i++ {
			if i < len(merged) {
				next = append(next, merged[i])
			}
			if i < len(group) {
				next = append(next, group[i])
			}
		}
		merged = next
		start = end
	}

	ring := make([]int, 0, r.targetNr)
	for round := 0; len(ring) < r.targetNr; round++ {
		for _, d := range merged {
			if round < len(d.targets) {
				ring = append(ring, d.targets[round].Index)
			}
		}
	}
	return ring
}

func shuffleTargets(src []*topology.Target, seed uint32) []*topology.Target {
	tgts := append([]*topology.Target(nil), src...)
	sort.SliceStable(tgts, func(a, b int) bool {
		if tgts[a].Version != tgts[b].Version {
			return tgts[a].Version < tgts[b].Version
		}
		ka := shuffleKey(seed, tgts[a].ID, targetPrime)
		kb := shuffleKey(seed, tgts[b].ID, targetPrime)
		if ka != kb {
			return ka < kb
		}
		return tgts[a].ID < tgts[b].ID
	})
	return tgts
}

// buildHashes spreads targets and rings evenly over their key ranges.
func (r *RingMap) buildHashes() {
	perDom := uint32(r.targetNr / r.domainNr)
	r.targetHBits = domainBits + targetBits + power2Bits(perDom)
	if r.targetHBits > targetHashBits {
		r.targetHBits = targetHashBits
	}

	stride := float64(uint64(1)<<r.targetHBits) / float64(r.targetNr)
	r.targetHashes = make([]uint64, r.targetNr)
	hash := 0.0
	for i := range r.targetHashes {
		r.targetHashes[i] = uint64(hash)
		hash += stride
	}

	stride = float64(uint64(1)<<ringHashBits) / float64(len(r.rings))
	r.ringHashes = make([]uint64, len(r.rings))
	hash = 0
	for i := range r.ringHashes {
		r.ringHashes[i] = uint64(hash)
		hash += stride
	}
}

func (r *RingMap) ringFor(oid domain.ObjectID) []int {
	return r.rings[searchHashes(r.ringHashes, goldenHash(oid.Lo, ringHashBits))]
}

func (r *RingMap) begin(oid domain.ObjectID) int {
	h := oid.Lo
	h ^= h << 39
	h += h << 9
	h -= h << 17
	h = goldenHash(h, targetHashBits)
	h &= (uint64(1) << r.targetHBits) - 1
	return searchHashes(r.targetHashes, h)
}

func (r *RingMap) Map() *topology.Map {
	return r.m
}

func (r *RingMap) Query() Info {
	return Info{
		Strategy:    KindRing,
		DomainCount: r.domainNr,
		TargetCount: r.targetNr,
		FaultDomain: r.opts.FaultDomain,
		MapVersion:  r.m.Version(),
	}
}

type ringPlacement struct {
	begin      int
	groupSize  int
	groupCount int
	shardID    int
}

func (r *RingMap) placementFor(md domain.ObjectMetadata, shard *domain.ShardMetadata) (*ringPlacement, error) {
	attr, err := r.opts.Classes.Lookup(md.Class)
	if err != nil {
		r.log.WithError(err).WithField("oid", md.ID.String()).Error("can not find object class")
		return nil, err
	}

	rop := &ringPlacement{begin: r.begin(md.ID), groupSize: attr.GroupSizeFor(r.domainNr)}
	if rop.groupSize <= 0 || rop.groupSize > r.domainNr {
		return nil, zerrors.InvalidArgumentError("group size %d of class %s is larger than domain nr %d",
			rop.groupSize, attr.Name, r.domainNr)
	}

	grpMax := r.targetNr / rop.groupSize
	if grpMax == 0 {
		grpMax = 1
	}
	rop.groupCount = attr.GroupCount
	if rop.groupCount == 0 || rop.groupCount > grpMax {
		rop.groupCount = grpMax
	}

	if shard != nil {
		if int(shard.GroupIndex) >= rop.groupCount {
			return nil, zerrors.InvalidArgumentError("group %d out of range, object has %d groups", shard.GroupIndex, rop.groupCount)
		}
		rop.shardID = int(shard.GroupIndex) * rop.groupSize
		rop.begin += rop.groupSize * int(shard.GroupIndex)
		rop.groupCount = 1
	}
	if n := rop.groupSize * rop.groupCount; n > r.opts.MaxBits {
		return nil, zerrors.AllocationError("layout", n, r.opts.MaxBits)
	}
	return rop, nil
}

// nextSpare moves idx to the next spare position, walking the ring
// backwards from begin and skipping the span held by the object.
func (r *RingMap) nextSpare(rop *ringPlacement, idx int) (int, bool) {
	if rop.groupSize == r.domainNr && rop.groupSize > 1 {
		return idx, false
	}

	total := r.targetNr
	maxDist := total - rop.groupSize*rop.groupCount

	var dist int
	if idx <= rop.begin {
		dist = rop.begin - idx
	} else {
		dist = rop.begin + total - idx
	}
	if (dist+rop.groupSize)%r.domainNr == 0 {
		dist += rop.groupSize
	}
	dist++
	if dist > maxDist {
		return idx, false
	}

	if rop.begin >= dist {
		return rop.begin - dist, true
	}
	return total - (dist - rop.begin), true
}

func (r *RingMap) fill(md domain.ObjectMetadata, rop *ringPlacement) (*domain.Layout, *remapList) {
	logger := r.log.WithField("oid", md.ID.String())
	ring := r.ringFor(md.ID)
	layout := domain.NewLayout(r.m.Version(), rop.groupSize, rop.groupCount)
	remap := &remapList{}

	start := rop.begin
	for g, k := 0, 0; g < rop.groupCount; g++ {
		avail := k+rop.groupSize <= r.targetNr
		for j := 0; j < rop.groupSize; j, k = j+1, k+1 {
			if !avail {
				continue
			}
			t := r.m.Target(ring[(start+j)%r.targetNr])
			slot := &layout.Shards[k]
			slot.Index = rop.shardID + k
			slot.Target = int(t.ID)
			slot.Fseq = t.Fseq
			if !t.Available(ringAllow, r.m.Version()) {
				remap.insert(&failedShard{slot: k, shard: slot.Index, fseq: t.Fseq, status: t.Status, origTarget: t.Index, tgtID: -1})
			}
		}
		start += rop.groupSize
	}

	r.remapShards(md, rop, ring, layout, remap, logger)
	if isDebug(logger) {
		logger.Debugf("ring layout: %s", layout)
	}
	return layout, remap
}

func (r *RingMap) remapShards(md domain.ObjectMetadata, rop *ringPlacement, ring []int, layout *domain.Layout, remap *remapList, logger log.FieldLogger) {
	remap.dump(logger, md.ID, "before remap:")

	version := r.m.Version()
	idx := rop.begin
	for cur := 0; cur < remap.Len(); {
		f := remap.items[cur]
		slot := &layout.Shards[f.slot]

		var spare *topology.Target
		next, ok := r.nextSpare(rop, idx)
		if ok {
			idx = next
			spare = r.m.Target(ring[idx])
			if !spare.Available(ringAllow, version) {
				switch {
				case spare.Fseq > version:
					ok = false
				case spare.Fseq <= f.fseq:
					continue
				default:
					f.fseq = spare.Fseq
					f.status = spare.Status
					remap.remove(cur)
					remap.insert(f)
					continue
				}
			}
		}

		if ok {
			slot.Target = int(spare.ID)
			slot.Fseq = f.fseq
			if f.status == domain.StatusDown || f.status == domain.StatusDrain {
				slot.Rebuilding = true
			}
			f.tgtID = int(spare.ID)
		} else {
			slot.Index = -1
			slot.Target = -1
		}
		cur++
	}

	remap.dump(logger, md.ID, "after remap:")
}

// Place computes the layout of an object. Ring layouts are never extended.
func (r *RingMap) Place(md domain.ObjectMetadata, shard *domain.ShardMetadata, _ Mode) (*domain.Layout, error) {
	rop, err := r.placementFor(md, shard)
	if err != nil {
		return nil, err
	}
	layout, _ := r.fill(md, rop)
	return layout, nil
}

// FindRebuild reports the spares of failures up to rebuildVersion. Objects
// without redundancy have nothing to rebuild.
func (r *RingMap) FindRebuild(md domain.ObjectMetadata, shard *domain.ShardMetadata, rebuildVersion uint32, capacity int) ([]domain.WorkItem, error) {
	if rebuildVersion > r.m.Version() {
		return nil, zerrors.InvalidArgumentError("version %d is newer than map version %d", rebuildVersion, r.m.Version())
	}
	rop, err := r.placementFor(md, shard)
	if err != nil {
		return nil, err
	}
	if rop.groupSize == 1 {
		r.log.WithField("oid", md.ID.String()).Debug("not replicated object")
		return nil, nil
	}
	layout, remap := r.fill(md, rop)
	return fillRebuild(remap, layout, rebuildVersion, capacity, false)
}

func (r *RingMap) FindReintegration(domain.ObjectMetadata, *domain.ShardMetadata, uint32, int) ([]domain.WorkItem, error) {
	return nil, zerrors.NotImplementedError("reintegration", KindRing)
}

func (r *RingMap) FindAddition(domain.ObjectMetadata, *domain.ShardMetadata, uint32, int) ([]domain.WorkItem, error) {
	return nil, zerrors.NotImplementedError("addition", KindRing)
}
