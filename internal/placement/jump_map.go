package placement

import (
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/topology"
)

// JumpMap places shards by descending the fault-domain tree with jump
// consistent hashing. It is immutable and safe for concurrent use.
type JumpMap struct {
	m    *topology.Map
	opts Options
	log  log.FieldLogger
	// domainNr is the number of domains at the fault-domain level.
	domainNr int
}

var _ Strategy = (*JumpMap)(nil)

// NewJumpMap validates m for jump placement.
func NewJumpMap(m *topology.Map, opts Options) (*JumpMap, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.WithField("strategy", KindJump)

	if _, err := m.Root(); err != nil {
		logger.WithError(err).Error("could not find root node in pool map")
		return nil, err
	}

	doms := m.FindDomains(opts.FaultDomain)
	if len(doms) == 0 {
		return nil, zerrors.InvalidArgumentError("pool map has no %s domains", opts.FaultDomain)
	}

	depth := 0
	for _, l := range m.Levels() {
		if l.Type > opts.FaultDomain {
			depth++
		}
	}
	if depth > maxStack {
		return nil, zerrors.InvalidArgumentError("%d levels above the %s level, at most %d supported", depth, opts.FaultDomain, maxStack)
	}

	if m.DomainCount() > opts.MaxBits {
		return nil, zerrors.AllocationError("domain bitmap", m.DomainCount(), opts.MaxBits)
	}
	if m.TargetCount() > opts.MaxBits {
		return nil, zerrors.AllocationError("target bitmap", m.TargetCount(), opts.MaxBits)
	}

	logger.Debugf("jump map over %s, %d %s domains", m, len(doms), opts.FaultDomain)
	return &JumpMap{m: m, opts: opts, log: logger, domainNr: len(doms)}, nil
}

func (j *JumpMap) Map() *topology.Map {
	return j.m
}

func (j *JumpMap) Query() Info {
	return Info{
		Strategy:    KindJump,
		DomainCount: j.domainNr,
		TargetCount: j.m.TargetCount(),
		FaultDomain: j.opts.FaultDomain,
		MapVersion:  j.m.Version(),
	}
}

// placementFor resolves the geometry of an object.
func (j *JumpMap) placementFor(md domain.ObjectMetadata, shard *domain.ShardMetadata) (*objPlacement, error) {
	logger := j.log.WithField("oid", md.ID.String())

	attr, err := j.opts.Classes.Lookup(md.Class)
	if err != nil {
		logger.WithError(err).Error("can not find object class")
		return nil, err
	}
	if md.LayoutVersion > 1 {
		return nil, zerrors.InvalidArgumentError("unsupported layout version %d", md.LayoutVersion)
	}

	gs := attr.GroupSizeFor(j.domainNr)
	if gs <= 0 || gs > j.domainNr {
		return nil, zerrors.InvalidArgumentError("group size %d of class %s exceeds %d %s domains",
			gs, attr.Name, j.domainNr, j.opts.FaultDomain)
	}

	grpMax := j.m.TargetCount() / gs
	if grpMax == 0 {
		grpMax = 1
	}
	gc := attr.GroupCount
	if gc == 0 || gc > grpMax {
		gc = grpMax
	}

	jop := &objPlacement{groupSize: gs, groupCount: gc}
	if shard != nil {
		if int(shard.GroupIndex) >= gc {
			return nil, zerrors.InvalidArgumentError("group %d out of range, object has %d groups", shard.GroupIndex, gc)
		}
		jop.offset = int(shard.GroupIndex) * gs
		jop.groupCount = 1
	}

	if n := gs * jop.groupCount; n > j.opts.MaxBits {
		return nil, zerrors.AllocationError("layout", n, j.opts.MaxBits)
	}

	if md.LayoutVersion > 0 && j.m.HasLevel(domain.CompPerfDomain) {
		pda := int(md.PDA)
		if pda == 0 {
			pda = gs
		}
		// Keep every redundancy group inside one performance domain.
		pda = (pda + gs - 1) / gs * gs
		jop.pds = selectPDs(j.m, md.ID, gs*gc, pda)
	}

	logger.Debugf("grp_size=%d grp_nr=%d offset=%d pds=%d (metadata version %d)",
		jop.groupSize, jop.groupCount, jop.offset, jop.pds.Len(), md.Version)
	return jop, nil
}

func (j *JumpMap) run(md domain.ObjectMetadata, jop *objPlacement, o op, allowVersion uint32) *layoutRun {
	r := newLayoutRun(j.m, j.opts.FaultDomain, j.domainNr, md, jop, o, allowVersion,
		j.log.WithFields(log.Fields{"oid": md.ID.String(), "op": o.String()}))
	r.run()
	return r
}

// Place computes the layout of an object. Unless mode is read-only, a pool
// with targets being added or drained gets an extended layout: each group
// also carries the slots of the post-transition layout that differ, marked
// reintegrating, and the draining targets that still hold data.
func (j *JumpMap) Place(md domain.ObjectMetadata, shard *domain.ShardMetadata, mode Mode) (*domain.Layout, error) {
	jop, err := j.placementFor(md, shard)
	if err != nil {
		return nil, err
	}

	o := opPlaceExtended
	if mode&ModeReadOnly != 0 {
		o = opPlace
	}
	r := j.run(md, jop, o, j.m.Version())
	layout := r.layout

	if o != opPlaceExtended {
		return layout, nil
	}

	ext := append([]extension(nil), r.drains...)
	// While targets are being added, slots that would move onto a new
	// target carry that target as an extra copy.
	if j.m.IsAdding() {
		post := j.run(md, jop, opAdd, j.m.Version())
		for i := range layout.Shards {
			n := post.layout.Shards[i]
			if n.Target == layout.Shards[i].Target || n.Target < 0 {
				continue
			}
			ext = append(ext, extension{slot: i, shard: n.Index, target: n.Target, fseq: n.Fseq, reintegrating: true})
		}
	}
	if len(ext) > 0 {
		layout = extendLayout(layout, ext)
		j.log.WithField("oid", md.ID.String()).Debugf("extended layout: %s", layout)
	}
	return layout, nil
}

// FindRebuild computes the layout as of rebuildVersion and reports the
// spares of every failure up to that version.
func (j *JumpMap) FindRebuild(md domain.ObjectMetadata, shard *domain.ShardMetadata, rebuildVersion uint32, capacity int) ([]domain.WorkItem, error) {
	if err := j.checkVersion(rebuildVersion); err != nil {
		return nil, err
	}
	jop, err := j.placementFor(md, shard)
	if err != nil {
		return nil, err
	}
	r := j.run(md, jop, opRebuild, rebuildVersion)
	return fillRebuild(r.remap, r.layout, rebuildVersion, capacity, false)
}

// FindReintegration diffs the current layout against the one where
// reintegrating targets are back in.
func (j *JumpMap) FindReintegration(md domain.ObjectMetadata, shard *domain.ShardMetadata, reintVersion uint32, capacity int) ([]domain.WorkItem, error) {
	return j.findDiff(md, shard, reintVersion, capacity, opReint, domain.WorkReintegration)
}

// FindAddition diffs the current layout against the one where newly added
// targets take part.
func (j *JumpMap) FindAddition(md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int) ([]domain.WorkItem, error) {
	return j.findDiff(md, shard, version, capacity, opAdd, domain.WorkAddition)
}

func (j *JumpMap) findDiff(md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int, o op, kind domain.WorkKind) ([]domain.WorkItem, error) {
	if err := j.checkVersion(version); err != nil {
		return nil, err
	}
	jop, err := j.placementFor(md, shard)
	if err != nil {
		return nil, err
	}
	// Nothing is moving in: both layouts would be the same.
	if !j.m.IsAdding() {
		return nil, nil
	}

	orig := j.run(md, jop, opPlace, j.m.Version())
	post := j.run(md, jop, o, j.m.Version())
	entries := diffLayouts(j.m, orig.layout, post.layout, o == opReint, kind, j.log.WithField("oid", md.ID.String()))
	return fillDiff(entries, version, capacity)
}

func (j *JumpMap) checkVersion(v uint32) error {
	if v > j.m.Version() {
		j.log.Errorf("pl_map version(%d) < rebuild version(%d)", j.m.Version(), v)
		return zerrors.InvalidArgumentError("version %d is newer than map version %d", v, j.m.Version())
	}
	return nil
}
